package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medquery/internal/domain"
)

func seedMemoryRepo(t *testing.T) *MemoryPatientsRepo {
	t.Helper()
	repo := NewMemoryPatientsRepo()
	_, err := repo.UpsertPatients(context.Background(), []domain.PatientRecord{
		{ID: "P0001", Name: "Jane Smith", Age: 42,
			Conditions:  []string{"Type 2 Diabetes"},
			Medications: []string{"Metformin"}},
		{ID: "P0002", Name: "David Chen", Age: 67,
			Conditions:  []string{"Type 2 Diabetes", "Hypertension"},
			Medications: []string{"Metformin", "Lisinopril"}},
		{ID: "P0003", Name: "Maria Lopez", Age: 34,
			Conditions:  []string{"Asthma"},
			Medications: []string{"Albuterol"}},
	})
	require.NoError(t, err)
	return repo
}

func TestMemoryRepo_SearchPreservesInsertionOrder(t *testing.T) {
	repo := seedMemoryRepo(t)

	out, err := repo.SearchPatients(context.Background(), PatientFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "P0001", out[0].ID)
	assert.Equal(t, "P0002", out[1].ID)
	assert.Equal(t, "P0003", out[2].ID)
}

func TestMemoryRepo_SearchFilters(t *testing.T) {
	repo := seedMemoryRepo(t)
	minAge := 60

	out, err := repo.SearchPatients(context.Background(), PatientFilter{MinAge: &minAge}, 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "P0002", out[0].ID)

	out, err = repo.SearchPatients(context.Background(), PatientFilter{Conditions: []string{"Type 2 Diabetes"}}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemoryRepo_SearchLimitAndOffset(t *testing.T) {
	repo := seedMemoryRepo(t)

	out, err := repo.SearchPatients(context.Background(), PatientFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "P0002", out[0].ID)
}

func TestMemoryRepo_GetPatient(t *testing.T) {
	repo := seedMemoryRepo(t)
	ctx := context.Background()

	p, err := repo.GetPatient(ctx, "p0001", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Jane Smith", p.Name)

	p, err = repo.GetPatient(ctx, "", "maria lopez")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "P0003", p.ID)

	// missing is (nil, nil), not an error
	p, err = repo.GetPatient(ctx, "P9999", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemoryRepo_GetPatientReturnsCopy(t *testing.T) {
	repo := seedMemoryRepo(t)

	p, err := repo.GetPatient(context.Background(), "P0001", "")
	require.NoError(t, err)
	p.Conditions[0] = "mutated"

	again, err := repo.GetPatient(context.Background(), "P0001", "")
	require.NoError(t, err)
	assert.Equal(t, "Type 2 Diabetes", again.Conditions[0])
}

func TestMemoryRepo_AggregateByMedication(t *testing.T) {
	repo := seedMemoryRepo(t)

	counts, err := repo.AggregateByMedication(context.Background(), PatientFilter{})
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, MedicationCount{Medication: "Metformin", Count: 2}, counts[0])

	filtered, err := repo.AggregateByMedication(context.Background(), PatientFilter{Conditions: []string{"Asthma"}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Albuterol", filtered[0].Medication)
}

func TestMemoryRepo_UpsertReplacesByID(t *testing.T) {
	repo := seedMemoryRepo(t)
	ctx := context.Background()

	n, err := repo.UpsertPatients(ctx, []domain.PatientRecord{{ID: "P0001", Name: "Jane Smith", Age: 43}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := repo.CountPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	p, err := repo.GetPatient(ctx, "P0001", "")
	require.NoError(t, err)
	assert.Equal(t, 43, p.Age)
}
