package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medquery/internal/access"
	"medquery/internal/domain"
	"medquery/internal/query"
	"medquery/internal/repository"
	"medquery/internal/store"
)

// fakeKV is an in-memory KV with call counters.
type fakeKV struct {
	values map[string]string
	gets   int
	sets   int
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.gets++
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", store.ErrMiss
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.sets++
	f.values[key] = value
	return nil
}

var _ store.KV = (*fakeKV)(nil)

func newService(t *testing.T, cache store.KV) *QueryService {
	t.Helper()
	logger := zap.NewNop()
	policy := access.NewPolicy()
	repo := repository.NewMemoryPatientsRepo()
	_, err := repo.UpsertPatients(context.Background(), []domain.PatientRecord{
		{ID: "P001", Name: "Jane Smith", Age: 42, Gender: "F",
			Conditions:  []string{"Type 2 Diabetes"},
			Medications: []string{"Metformin"}},
		{ID: "P002", Name: "David Chen", Age: 67, Gender: "M"},
	})
	require.NoError(t, err)

	orchestrator := query.NewOrchestrator(policy, nil, nil, logger)
	svc := NewQueryService(policy, repo, orchestrator, cache, time.Minute, logger)
	require.NoError(t, svc.LoadSnapshotFromRepo(context.Background(), 100))
	return svc
}

func TestProcessQuery_WithoutCache(t *testing.T) {
	svc := newService(t, nil)
	user := domain.User{Role: domain.RoleClinician}

	result := svc.ProcessQuery(context.Background(), user, "Summarize patient ID P001")
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "Patient: Jane Smith")
}

func TestProcessQuery_CachesSuccessfulResults(t *testing.T) {
	kv := newFakeKV()
	svc := newService(t, kv)
	user := domain.User{Role: domain.RoleClinician}

	first := svc.ProcessQuery(context.Background(), user, "Summarize patient ID P001")
	require.True(t, first.Success)
	assert.Equal(t, 1, kv.sets)

	second := svc.ProcessQuery(context.Background(), user, "Summarize patient ID P001")
	assert.Equal(t, first, second)
	assert.Equal(t, 2, kv.gets)
	// served from cache, nothing written again
	assert.Equal(t, 1, kv.sets)
}

func TestProcessQuery_CacheKeyedByRole(t *testing.T) {
	kv := newFakeKV()
	svc := newService(t, kv)

	clinician := svc.ProcessQuery(context.Background(),
		domain.User{Role: domain.RoleClinician}, "Summarize patient ID P001")
	researcher := svc.ProcessQuery(context.Background(),
		domain.User{Role: domain.RoleResearcher}, "Summarize patient ID P001")

	assert.Contains(t, clinician.Message, "Jane Smith")
	assert.NotContains(t, researcher.Message, "Jane Smith")
	assert.Equal(t, 2, kv.sets)
}

func TestLoadSnapshotFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patients.json")
	data := `[
		{"id":"P0101","name":"Olivia Wilson","age":63,"gender":"F",
		 "conditions":["Hypertension"],"medications":["Amlodipine"],
		 "notes":"Stable.","address":"55 Oak Dr, Riverton",
		 "visit_dates":["2024-03-01"]}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	svc := newService(t, nil)
	require.NoError(t, svc.LoadSnapshotFromFile(context.Background(), path))

	snapshot := svc.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "P0101", snapshot[0].ID)
	assert.Equal(t, []string{"Hypertension"}, snapshot[0].Conditions)

	// the repository was seeded too
	p, err := svc.repo.GetPatient(context.Background(), "P0101", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Olivia Wilson", p.Name)
}

func TestLoadSnapshotFromFile_MissingFile(t *testing.T) {
	svc := newService(t, nil)
	err := svc.LoadSnapshotFromFile(context.Background(), "/nonexistent/patients.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read patient data file")
}

func TestLoadSnapshotFromFile_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not an array"), 0o644))

	svc := newService(t, nil)
	err := svc.LoadSnapshotFromFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse patient data file")
}

func TestHealth(t *testing.T) {
	svc := newService(t, nil)

	info := svc.Health(context.Background())
	assert.Equal(t, "healthy", info.Status)
	assert.Equal(t, 2, info.SnapshotRecords)
	require.NotNil(t, info.DBRecords)
	assert.Equal(t, 2, *info.DBRecords)
	assert.False(t, info.BridgeEnabled)
	assert.False(t, info.GenerativeEnabled)
}
