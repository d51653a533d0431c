package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 患者库表结构（seeding 时执行，幂等）
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id          BIGSERIAL PRIMARY KEY,
		external_id VARCHAR(32) NOT NULL UNIQUE,
		name        VARCHAR(255),
		age         INTEGER NOT NULL DEFAULT 0,
		gender      VARCHAR(8),
		address     VARCHAR(255),
		notes       TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS conditions (
		id   BIGSERIAL PRIMARY KEY,
		name VARCHAR(128) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		id   BIGSERIAL PRIMARY KEY,
		name VARCHAR(128) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS patient_conditions (
		id           BIGSERIAL PRIMARY KEY,
		patient_id   BIGINT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		condition_id BIGINT NOT NULL REFERENCES conditions(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS patient_medications (
		id            BIGSERIAL PRIMARY KEY,
		patient_id    BIGINT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		medication_id BIGINT NOT NULL REFERENCES medications(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id         BIGSERIAL PRIMARY KEY,
		patient_id BIGINT NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		visit_date VARCHAR(10) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_patients_age ON patients(age)`,
	`CREATE INDEX IF NOT EXISTS ix_visits_patient_date ON visits(patient_id, visit_date)`,
}

// EnsureSchema creates the patient tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
