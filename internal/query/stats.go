package query

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"medquery/internal/domain"
)

// Criteria 人群筛选条件，所有给定的判定取 AND
type Criteria struct {
	MinAge     *int
	MaxAge     *int
	Condition  string // exact membership in conditions
	Medication string // exact membership in medications
	Gender     string // case-insensitive equality
}

// AgeRange 可选的年龄过滤（用于 medication 占比）
type AgeRange struct {
	MinAge *int
	MaxAge *int
}

func (r AgeRange) String() string {
	parts := []string{}
	if r.MinAge != nil {
		parts = append(parts, fmt.Sprintf("min_age=%d", *r.MinAge))
	}
	if r.MaxAge != nil {
		parts = append(parts, fmt.Sprintf("max_age=%d", *r.MaxAge))
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

// AgeStats 年龄聚合结果
// Median is sorted(ages)[len/2] — the upper-middle element for
// even-length inputs. Existing consumers rely on this exact value,
// so it is preserved as-is rather than averaging the middle pair.
type AgeStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Median  int     `json:"median"`
}

// FrequencyEntry 单个取值的出现次数与占比
type FrequencyEntry struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FieldStats 按字段聚合的结果（age / gender / conditions / medications）
type FieldStats struct {
	Field         string           `json:"field"`
	TotalPatients int              `json:"total_patients"`
	Age           *AgeStats        `json:"age,omitempty"`
	Distribution  []FrequencyEntry `json:"distribution,omitempty"` // gender
	UniqueValues  int              `json:"unique_values,omitempty"`
	MostCommon    []FrequencyEntry `json:"most_common,omitempty"` // top 5 by count
}

// MedicationShare 服药人群占比
type MedicationShare struct {
	Medication             string  `json:"medication"`
	TotalPatientsInGroup   int     `json:"total_patients_in_group"`
	PatientsWithMedication int     `json:"patients_with_medication"`
	Percentage             float64 `json:"percentage"`
	AgeFilter              string  `json:"age_filter"`
}

// MatchesCriteria reports whether a record satisfies every present
// predicate in the criteria.
func MatchesCriteria(p domain.PatientRecord, c Criteria) bool {
	if c.MinAge != nil && p.Age < *c.MinAge {
		return false
	}
	if c.MaxAge != nil && p.Age > *c.MaxAge {
		return false
	}
	if c.Condition != "" && !contains(p.Conditions, c.Condition) {
		return false
	}
	if c.Medication != "" && !contains(p.Medications, c.Medication) {
		return false
	}
	if c.Gender != "" && !strings.EqualFold(p.Gender, c.Gender) {
		return false
	}
	return true
}

// FilterByCriteria returns the cohort matching the criteria.
func FilterByCriteria(records []domain.PatientRecord, c Criteria) []domain.PatientRecord {
	var out []domain.PatientRecord
	for _, p := range records {
		if MatchesCriteria(p, c) {
			out = append(out, p)
		}
	}
	return out
}

// Aggregate computes per-field statistics over a cohort.
// Unknown fields and empty cohorts produce an error value, never a panic.
func Aggregate(records []domain.PatientRecord, field string) (*FieldStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no patients provided")
	}

	switch field {
	case "age":
		ages := make([]int, 0, len(records))
		for _, p := range records {
			// zero means "unknown age" in seeded data; excluded
			if p.Age > 0 {
				ages = append(ages, p.Age)
			}
		}
		if len(ages) == 0 {
			return nil, fmt.Errorf("no age data available")
		}
		sorted := append([]int{}, ages...)
		sort.Ints(sorted)
		sum := 0
		for _, a := range sorted {
			sum += a
		}
		return &FieldStats{
			Field:         field,
			TotalPatients: len(records),
			Age: &AgeStats{
				Count:   len(ages),
				Average: round1(float64(sum) / float64(len(ages))),
				Min:     sorted[0],
				Max:     sorted[len(sorted)-1],
				Median:  sorted[len(sorted)/2],
			},
		}, nil

	case "gender":
		values := make([]string, 0, len(records))
		for _, p := range records {
			g := p.Gender
			if g == "" {
				g = "Unknown"
			}
			values = append(values, g)
		}
		dist := frequencies(values, len(values), 0)
		return &FieldStats{
			Field:         field,
			TotalPatients: len(records),
			Distribution:  dist,
			UniqueValues:  len(dist),
		}, nil

	case "conditions":
		var values []string
		for _, p := range records {
			values = append(values, p.Conditions...)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("no condition data available")
		}
		all := frequencies(values, len(records), 0)
		return &FieldStats{
			Field:         field,
			TotalPatients: len(records),
			UniqueValues:  len(all),
			MostCommon:    frequencies(values, len(records), 5),
		}, nil

	case "medications":
		var values []string
		for _, p := range records {
			values = append(values, p.Medications...)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("no medication data available")
		}
		all := frequencies(values, len(records), 0)
		return &FieldStats{
			Field:         field,
			TotalPatients: len(records),
			UniqueValues:  len(all),
			MostCommon:    frequencies(values, len(records), 5),
		}, nil
	}

	return nil, fmt.Errorf("statistics not available for field: %s", field)
}

// PercentageWithMedication returns the share of a cohort taking the
// given medication, optionally restricted by an age range first.
func PercentageWithMedication(records []domain.PatientRecord, medication string, ageFilter *AgeRange) (*MedicationShare, error) {
	group := records
	filterDesc := "None"
	if ageFilter != nil && (ageFilter.MinAge != nil || ageFilter.MaxAge != nil) {
		group = FilterByCriteria(records, Criteria{MinAge: ageFilter.MinAge, MaxAge: ageFilter.MaxAge})
		filterDesc = ageFilter.String()
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("no patients match the criteria")
	}
	with := len(FilterByCriteria(group, Criteria{Medication: medication}))
	return &MedicationShare{
		Medication:             medication,
		TotalPatientsInGroup:   len(group),
		PatientsWithMedication: with,
		Percentage:             round1(float64(with) / float64(len(group)) * 100),
		AgeFilter:              filterDesc,
	}, nil
}

// frequencies counts values preserving first-encountered order, then
// orders by count descending with ties kept in encounter order. A
// non-zero top truncates the result.
func frequencies(values []string, total int, top int) []FrequencyEntry {
	counts := map[string]int{}
	var order []string
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	entries := make([]FrequencyEntry, 0, len(order))
	for _, v := range order {
		entries = append(entries, FrequencyEntry{
			Value:      v,
			Count:      counts[v],
			Percentage: round1(float64(counts[v]) / float64(total) * 100),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	if top > 0 && len(entries) > top {
		entries = entries[:top]
	}
	return entries
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
