package access

import (
	"medquery/internal/domain"
)

// Redact applies a profile to one record: list-typed fields in the
// redaction set become empty lists, scalar fields become the redaction
// marker, everything else passes through on a deep copy. Pure function
// of (record, profile); the input record is never modified.
func Redact(record domain.PatientRecord, profile PermissionProfile) domain.SanitizedRecord {
	out := domain.SanitizedRecord{
		PatientRecord:  record.Clone(),
		RedactedFields: append([]string{}, profile.RedactedFields...),
	}
	for _, field := range profile.RedactedFields {
		switch field {
		case "name":
			out.Name = domain.RedactionMarker
		case "address":
			out.Address = domain.RedactionMarker
		case "notes":
			out.Notes = domain.RedactionMarker
		case "gender":
			out.Gender = domain.RedactionMarker
		case "conditions":
			out.Conditions = []string{}
		case "medications":
			out.Medications = []string{}
		case "visit_dates":
			out.VisitDates = []string{}
		}
	}
	return out
}

// RedactAll sanitizes a whole snapshot for one role.
func RedactAll(records []domain.PatientRecord, profile PermissionProfile) []domain.SanitizedRecord {
	out := make([]domain.SanitizedRecord, 0, len(records))
	for _, r := range records {
		out = append(out, Redact(r, profile))
	}
	return out
}
