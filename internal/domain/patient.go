package domain

// RedactionMarker replaces scalar fields a role may not view.
const RedactionMarker = "[REDACTED]"

// PatientRecord 患者领域模型（对应 patients 表及其关联表）
// The core only reads copies; the storage layer owns the rows.
type PatientRecord struct {
	// 稳定外部标识（如 "P0001"），unique
	ID string `json:"id" db:"external_id"`

	// 身份信息（PII）
	Name    string `json:"name" db:"name"`
	Address string `json:"address" db:"address"`

	// 人口统计
	Age    int    `json:"age" db:"age"`       // non-negative
	Gender string `json:"gender" db:"gender"` // Male/Female/Other/Unknown

	// 医疗细节
	Conditions  []string `json:"conditions"`  // ordered, from patient_conditions
	Medications []string `json:"medications"` // ordered, from patient_medications
	Notes       string   `json:"notes" db:"notes"`

	// 就诊历史（ISO dates, YYYY-MM-DD）
	VisitDates []string `json:"visit_dates"`
}

// Clone returns a deep copy so redaction never aliases the snapshot.
func (p PatientRecord) Clone() PatientRecord {
	out := p
	out.Conditions = append([]string(nil), p.Conditions...)
	out.Medications = append([]string(nil), p.Medications...)
	out.VisitDates = append([]string(nil), p.VisitDates...)
	return out
}

// SanitizedRecord 按角色脱敏后的患者视图
// Produced per request, discarded after use; never persisted.
type SanitizedRecord struct {
	PatientRecord

	// RedactedFields 本次脱敏替换掉的字段名（JSON field names）
	RedactedFields []string `json:"redacted_fields"`
}
