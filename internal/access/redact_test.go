package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medquery/internal/domain"
)

func sampleRecord() domain.PatientRecord {
	return domain.PatientRecord{
		ID:          "P0001",
		Name:        "Jane Smith",
		Address:     "123 Maple St, Springfield",
		Age:         42,
		Gender:      "F",
		Conditions:  []string{"Type 2 Diabetes", "Hypertension"},
		Medications: []string{"Metformin", "Lisinopril"},
		Notes:       "Patient has responded well to Metformin.",
		VisitDates:  []string{"2024-01-15", "2024-06-20"},
	}
}

func TestRedact_ClinicianSeesEverything(t *testing.T) {
	policy := NewPolicy()
	rec := sampleRecord()

	out := Redact(rec, policy.Profile(domain.RoleClinician))
	assert.Equal(t, rec.Name, out.Name)
	assert.Equal(t, rec.Address, out.Address)
	assert.Equal(t, rec.Notes, out.Notes)
	assert.Equal(t, rec.Conditions, out.Conditions)
	assert.Empty(t, out.RedactedFields)
}

func TestRedact_ResearcherLosesIdentity(t *testing.T) {
	policy := NewPolicy()
	out := Redact(sampleRecord(), policy.Profile(domain.RoleResearcher))

	assert.Equal(t, domain.RedactionMarker, out.Name)
	assert.Equal(t, domain.RedactionMarker, out.Address)
	// medical detail survives
	assert.Equal(t, []string{"Type 2 Diabetes", "Hypertension"}, out.Conditions)
	assert.Equal(t, "Patient has responded well to Metformin.", out.Notes)
	assert.ElementsMatch(t, []string{"name", "address"}, out.RedactedFields)
}

func TestRedact_TraineeGetsListFieldsEmptied(t *testing.T) {
	policy := NewPolicy()
	out := Redact(sampleRecord(), policy.Profile(domain.RoleTrainee))

	assert.Equal(t, domain.RedactionMarker, out.Name)
	assert.Equal(t, domain.RedactionMarker, out.Address)
	assert.Equal(t, domain.RedactionMarker, out.Notes)
	// list-typed fields become empty lists, not markers
	assert.Equal(t, []string{}, out.Conditions)
	assert.Equal(t, []string{}, out.Medications)
	assert.Equal(t, []string{}, out.VisitDates)
	// age and gender remain visible to trainees
	assert.Equal(t, 42, out.Age)
	assert.Equal(t, "F", out.Gender)
}

func TestRedact_InputRecordNotModified(t *testing.T) {
	policy := NewPolicy()
	rec := sampleRecord()

	out := Redact(rec, policy.Profile(domain.RoleTrainee))
	out.Conditions = append(out.Conditions, "mutated")

	assert.Equal(t, "Jane Smith", rec.Name)
	assert.Equal(t, []string{"Type 2 Diabetes", "Hypertension"}, rec.Conditions)
}

func TestRedactAll(t *testing.T) {
	policy := NewPolicy()
	records := []domain.PatientRecord{sampleRecord(), {ID: "P0002", Name: "David Chen", Age: 67}}

	out := RedactAll(records, policy.Profile(domain.RoleResearcher))
	require.Len(t, out, 2)
	assert.Equal(t, domain.RedactionMarker, out[0].Name)
	assert.Equal(t, domain.RedactionMarker, out[1].Name)
	assert.Equal(t, "P0002", out[1].ID)
}
