package domain

// QueryCategory 查询语义类别（the unit of permission enforcement）
// Derived from query text, never stored.
type QueryCategory string

const (
	CategoryHelp              QueryCategory = "help"
	CategoryIndividualPatient QueryCategory = "individual_patient"
	CategoryAggregateStats    QueryCategory = "aggregate_stats"
	CategoryGeneral           QueryCategory = "general"
)

// QueryResult 查询结果（the only object returned across the core's boundary）
// Denials and not-found are Success=true: they are valid outcomes,
// not errors.
type QueryResult struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	AccessLevel    Role     `json:"access_level"`
	RedactedFields []string `json:"redacted_fields"`
}
