package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medquery/internal/access"
	"medquery/internal/domain"
)

func summaryRecord() domain.PatientRecord {
	return domain.PatientRecord{
		ID:          "P0001",
		Name:        "Jane Smith",
		Address:     "123 Maple St, Springfield",
		Age:         42,
		Gender:      "F",
		Conditions:  []string{"Type 2 Diabetes", "Hypertension"},
		Medications: []string{"Metformin", "Lisinopril"},
		Notes:       "A1C trending down.",
		VisitDates:  []string{"2024-06-20", "2023-11-02", "2024-01-15"},
	}
}

func TestSummarize_FullRecord(t *testing.T) {
	policy := access.NewPolicy()
	sanitized := access.Redact(summaryRecord(), policy.Profile(domain.RoleClinician))

	got := Summarize(sanitized, DefaultSummaryOptions())
	want := strings.Join([]string{
		"Patient: Jane Smith",
		"Demographics: 42 years old, F",
		"Conditions: Type 2 Diabetes, Hypertension",
		"Current Medications: Metformin, Lisinopril",
		"Clinical Notes: A1C trending down.",
		"Visit History: 3 visits, most recent on 2024-06-20",
		"Address: 123 Maple St, Springfield",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestSummarize_Deterministic(t *testing.T) {
	policy := access.NewPolicy()
	sanitized := access.Redact(summaryRecord(), policy.Profile(domain.RoleResearcher))

	first := Summarize(sanitized, DefaultSummaryOptions())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Summarize(sanitized, DefaultSummaryOptions()))
	}
}

func TestSummarize_RedactedNameFallsBackToID(t *testing.T) {
	policy := access.NewPolicy()
	sanitized := access.Redact(summaryRecord(), policy.Profile(domain.RoleResearcher))

	got := Summarize(sanitized, DefaultSummaryOptions())
	require.True(t, strings.HasPrefix(got, "Patient ID: P0001"))
	assert.NotContains(t, got, "Jane Smith")
	assert.NotContains(t, got, "Address:")
	// medical sections still present for researchers
	assert.Contains(t, got, "Conditions: Type 2 Diabetes, Hypertension")
}

func TestSummarize_EmptySectionsSkipped(t *testing.T) {
	sanitized := domain.SanitizedRecord{PatientRecord: domain.PatientRecord{
		ID: "P0009", Age: 30, Gender: "M",
	}}
	got := Summarize(sanitized, DefaultSummaryOptions())

	assert.Equal(t, "Patient ID: P0009\nDemographics: 30 years old, M", got)
}

func TestSummarize_OptionsDisableSections(t *testing.T) {
	policy := access.NewPolicy()
	sanitized := access.Redact(summaryRecord(), policy.Profile(domain.RoleClinician))

	opts := DefaultSummaryOptions()
	opts.IncludeNotes = false
	opts.IncludeVisits = false

	got := Summarize(sanitized, opts)
	assert.NotContains(t, got, "Clinical Notes:")
	assert.NotContains(t, got, "Visit History:")
	assert.Contains(t, got, "Conditions:")
}

func TestSummarize_MostRecentVisitIsLexicographicMax(t *testing.T) {
	sanitized := domain.SanitizedRecord{PatientRecord: domain.PatientRecord{
		ID: "P0010", Age: 55, Gender: "F",
		VisitDates: []string{"2023-12-31", "2025-01-01", "2024-07-04"},
	}}
	got := Summarize(sanitized, DefaultSummaryOptions())
	assert.Contains(t, got, "Visit History: 3 visits, most recent on 2025-01-01")
}
