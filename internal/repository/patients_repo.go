package repository

import (
	"context"

	"medquery/internal/domain"
)

// PatientFilter 患者检索过滤器
type PatientFilter struct {
	MinAge     *int     // age >= MinAge
	Conditions []string // any of these condition names
}

// MedicationCount 按药物聚合的计数
type MedicationCount struct {
	Medication string `json:"medication"`
	Count      int    `json:"count"`
}

// PatientsRepository 患者 Repository 接口
// 使用强类型领域模型；查询永不修改存储的数据（UpsertPatients 仅用于
// 独立的 seeding 步骤）。
type PatientsRepository interface {
	// SearchPatients returns up to limit records matching the filter.
	SearchPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]domain.PatientRecord, error)

	// GetPatient resolves one record by external id or exact name.
	// Returns (nil, nil) when nothing matches.
	GetPatient(ctx context.Context, id, name string) (*domain.PatientRecord, error)

	// AggregateByMedication counts patients per medication over the
	// filtered cohort, sorted by count descending.
	AggregateByMedication(ctx context.Context, f PatientFilter) ([]MedicationCount, error)

	// CountPatients returns the total number of stored records.
	CountPatients(ctx context.Context) (int, error)

	// UpsertPatients inserts or replaces records by external id.
	// Seeding only; never called on the query path.
	UpsertPatients(ctx context.Context, records []domain.PatientRecord) (int, error)
}
