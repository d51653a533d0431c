package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"medquery/internal/domain"
)

// MemoryPatientsRepo backs tests and DB-less development.
// Records are kept in insertion order so search and aggregation
// results are stable across calls.
type MemoryPatientsRepo struct {
	mu      sync.RWMutex
	order   []string // external ids, insertion order
	records map[string]domain.PatientRecord
}

func NewMemoryPatientsRepo() *MemoryPatientsRepo {
	return &MemoryPatientsRepo{records: map[string]domain.PatientRecord{}}
}

var _ PatientsRepository = (*MemoryPatientsRepo)(nil)

func (r *MemoryPatientsRepo) SearchPatients(_ context.Context, f PatientFilter, limit, offset int) ([]domain.PatientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var out []domain.PatientRecord
	skipped := 0
	for _, id := range r.order {
		p := r.records[id]
		if !matchesFilter(p, f) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, p.Clone())
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryPatientsRepo) GetPatient(_ context.Context, id, name string) (*domain.PatientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id != "" {
		if p, ok := r.records[strings.ToUpper(id)]; ok {
			c := p.Clone()
			return &c, nil
		}
	}
	if name != "" {
		for _, extID := range r.order {
			p := r.records[extID]
			if strings.EqualFold(p.Name, name) {
				c := p.Clone()
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (r *MemoryPatientsRepo) AggregateByMedication(_ context.Context, f PatientFilter) ([]MedicationCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[string]int{}
	var seen []string
	for _, id := range r.order {
		p := r.records[id]
		if !matchesFilter(p, f) {
			continue
		}
		for _, m := range p.Medications {
			if _, ok := counts[m]; !ok {
				seen = append(seen, m)
			}
			counts[m]++
		}
	}
	out := make([]MedicationCount, 0, len(seen))
	for _, m := range seen {
		out = append(out, MedicationCount{Medication: m, Count: counts[m]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func (r *MemoryPatientsRepo) CountPatients(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

func (r *MemoryPatientsRepo) UpsertPatients(_ context.Context, records []domain.PatientRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range records {
		key := strings.ToUpper(p.ID)
		if _, ok := r.records[key]; !ok {
			r.order = append(r.order, key)
		}
		r.records[key] = p.Clone()
	}
	return len(records), nil
}

func matchesFilter(p domain.PatientRecord, f PatientFilter) bool {
	if f.MinAge != nil && p.Age < *f.MinAge {
		return false
	}
	if len(f.Conditions) > 0 {
		found := false
		for _, want := range f.Conditions {
			for _, have := range p.Conditions {
				if have == want {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}
