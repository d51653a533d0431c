package query

import (
	"fmt"
	"strings"

	"medquery/internal/domain"
)

// SummaryOptions 控制摘要包含哪些区块（默认全开）
type SummaryOptions struct {
	IncludeDemographics bool
	IncludeConditions   bool
	IncludeMedications  bool
	IncludeNotes        bool
	IncludeVisits       bool
}

// DefaultSummaryOptions enables every section.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{
		IncludeDemographics: true,
		IncludeConditions:   true,
		IncludeMedications:  true,
		IncludeNotes:        true,
		IncludeVisits:       true,
	}
}

// Summarize renders one sanitized record as labeled lines in fixed
// order. Redacted or empty sections are skipped. No randomness:
// identical input yields byte-identical output.
func Summarize(p domain.SanitizedRecord, opts SummaryOptions) string {
	var parts []string

	if p.Name != "" && p.Name != domain.RedactionMarker {
		parts = append(parts, fmt.Sprintf("Patient: %s", p.Name))
	} else {
		parts = append(parts, fmt.Sprintf("Patient ID: %s", p.ID))
	}

	if opts.IncludeDemographics {
		parts = append(parts, fmt.Sprintf("Demographics: %d years old, %s", p.Age, p.Gender))
	}

	if opts.IncludeConditions && len(p.Conditions) > 0 {
		parts = append(parts, fmt.Sprintf("Conditions: %s", strings.Join(p.Conditions, ", ")))
	}

	if opts.IncludeMedications && len(p.Medications) > 0 {
		parts = append(parts, fmt.Sprintf("Current Medications: %s", strings.Join(p.Medications, ", ")))
	}

	if opts.IncludeNotes && p.Notes != "" && p.Notes != domain.RedactionMarker {
		parts = append(parts, fmt.Sprintf("Clinical Notes: %s", p.Notes))
	}

	if opts.IncludeVisits && len(p.VisitDates) > 0 {
		// Dates are ISO YYYY-MM-DD, so the lexicographic maximum is
		// the chronologically most recent visit.
		mostRecent := p.VisitDates[0]
		for _, d := range p.VisitDates[1:] {
			if d > mostRecent {
				mostRecent = d
			}
		}
		parts = append(parts, fmt.Sprintf("Visit History: %d visits, most recent on %s", len(p.VisitDates), mostRecent))
	}

	if p.Address != "" && p.Address != domain.RedactionMarker {
		parts = append(parts, fmt.Sprintf("Address: %s", p.Address))
	}

	return strings.Join(parts, "\n")
}
