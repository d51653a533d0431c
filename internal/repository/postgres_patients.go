package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"medquery/internal/domain"
)

// PostgresPatientsRepo 患者 Repository 实现
// 规范化 schema：patients / conditions / medications 以及
// patient_conditions / patient_medications / visits 关联表。
type PostgresPatientsRepo struct {
	db *sql.DB
}

func NewPostgresPatientsRepo(db *sql.DB) *PostgresPatientsRepo {
	return &PostgresPatientsRepo{db: db}
}

var _ PatientsRepository = (*PostgresPatientsRepo)(nil)

// patientSelect pulls the related lists as ordered arrays so one row
// maps to one complete record.
const patientSelect = `
	SELECT
		p.external_id,
		COALESCE(p.name, '') AS name,
		p.age,
		COALESCE(p.gender, '') AS gender,
		COALESCE(p.address, '') AS address,
		COALESCE(p.notes, '') AS notes,
		COALESCE((
			SELECT array_agg(c.name ORDER BY pc.id)
			FROM patient_conditions pc
			JOIN conditions c ON c.id = pc.condition_id
			WHERE pc.patient_id = p.id
		), '{}') AS conditions,
		COALESCE((
			SELECT array_agg(m.name ORDER BY pm.id)
			FROM patient_medications pm
			JOIN medications m ON m.id = pm.medication_id
			WHERE pm.patient_id = p.id
		), '{}') AS medications,
		COALESCE((
			SELECT array_agg(v.visit_date ORDER BY v.id)
			FROM visits v
			WHERE v.patient_id = p.id
		), '{}') AS visit_dates
	FROM patients p
`

func scanPatient(row interface{ Scan(...any) error }) (*domain.PatientRecord, error) {
	var p domain.PatientRecord
	var conditions, medications, visits pq.StringArray
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Gender,
		&p.Address,
		&p.Notes,
		&conditions,
		&medications,
		&visits,
	); err != nil {
		return nil, err
	}
	p.Conditions = []string(conditions)
	p.Medications = []string(medications)
	p.VisitDates = []string(visits)
	return &p, nil
}

func (r *PostgresPatientsRepo) SearchPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]domain.PatientRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := patientSelect
	args := []any{}
	where := ""
	if f.MinAge != nil {
		args = append(args, *f.MinAge)
		where = fmt.Sprintf(" WHERE p.age >= $%d", len(args))
	}
	if len(f.Conditions) > 0 {
		args = append(args, pq.Array(f.Conditions))
		cond := fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_conditions pc
			JOIN conditions c ON c.id = pc.condition_id
			WHERE pc.patient_id = p.id AND c.name = ANY($%d)
		)`, len(args))
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	args = append(args, limit, offset)
	query += where + fmt.Sprintf(" ORDER BY p.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}
	defer rows.Close()

	var out []domain.PatientRecord
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read patients: %w", err)
	}
	return out, nil
}

func (r *PostgresPatientsRepo) GetPatient(ctx context.Context, id, name string) (*domain.PatientRecord, error) {
	var query string
	var arg string
	switch {
	case id != "":
		query = patientSelect + " WHERE UPPER(p.external_id) = UPPER($1)"
		arg = id
	case name != "":
		query = patientSelect + " WHERE p.name = $1"
		arg = name
	default:
		return nil, nil
	}

	p, err := scanPatient(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

func (r *PostgresPatientsRepo) AggregateByMedication(ctx context.Context, f PatientFilter) ([]MedicationCount, error) {
	query := `
		SELECT m.name, COUNT(pm.id) AS cnt
		FROM medications m
		JOIN patient_medications pm ON pm.medication_id = m.id
		JOIN patients p ON p.id = pm.patient_id
	`
	args := []any{}
	where := ""
	if f.MinAge != nil {
		args = append(args, *f.MinAge)
		where = fmt.Sprintf(" WHERE p.age >= $%d", len(args))
	}
	if len(f.Conditions) > 0 {
		args = append(args, pq.Array(f.Conditions))
		cond := fmt.Sprintf(`EXISTS (
			SELECT 1 FROM patient_conditions pc
			JOIN conditions c ON c.id = pc.condition_id
			WHERE pc.patient_id = p.id AND c.name = ANY($%d)
		)`, len(args))
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	query += where + " GROUP BY m.name ORDER BY cnt DESC, m.name ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate medications: %w", err)
	}
	defer rows.Close()

	var out []MedicationCount
	for rows.Next() {
		var mc MedicationCount
		if err := rows.Scan(&mc.Medication, &mc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan medication count: %w", err)
		}
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read medication counts: %w", err)
	}
	return out, nil
}

func (r *PostgresPatientsRepo) CountPatients(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}

// UpsertPatients replaces each record and its relations by external id
// inside one transaction. Seeding only.
func (r *PostgresPatientsRepo) UpsertPatients(ctx context.Context, records []domain.PatientRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seeding transaction: %w", err)
	}
	defer tx.Rollback()

	count := 0
	for _, p := range records {
		var patientID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO patients (external_id, name, age, gender, address, notes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (external_id)
			 DO UPDATE SET name = EXCLUDED.name,
			               age = EXCLUDED.age,
			               gender = EXCLUDED.gender,
			               address = EXCLUDED.address,
			               notes = EXCLUDED.notes
			 RETURNING id`,
			p.ID, p.Name, p.Age, p.Gender, p.Address, p.Notes,
		).Scan(&patientID)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert patient %s: %w", p.ID, err)
		}

		// Relations are replaced wholesale, mirroring the seeder's
		// clear-then-append behavior.
		for _, table := range []string{"patient_conditions", "patient_medications", "visits"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE patient_id = $1`, table), patientID); err != nil {
				return 0, fmt.Errorf("failed to clear %s for %s: %w", table, p.ID, err)
			}
		}

		for _, cname := range p.Conditions {
			if err := linkDictionary(ctx, tx, "conditions", "patient_conditions", "condition_id", patientID, cname); err != nil {
				return 0, fmt.Errorf("failed to link condition %q for %s: %w", cname, p.ID, err)
			}
		}
		for _, mname := range p.Medications {
			if err := linkDictionary(ctx, tx, "medications", "patient_medications", "medication_id", patientID, mname); err != nil {
				return 0, fmt.Errorf("failed to link medication %q for %s: %w", mname, p.ID, err)
			}
		}
		for _, d := range p.VisitDates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO visits (patient_id, visit_date) VALUES ($1, $2)`, patientID, d); err != nil {
				return 0, fmt.Errorf("failed to insert visit for %s: %w", p.ID, err)
			}
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seeding transaction: %w", err)
	}
	return count, nil
}

// linkDictionary upserts a dictionary row (conditions/medications) and
// attaches it to the patient.
func linkDictionary(ctx context.Context, tx *sql.Tx, dictTable, linkTable, fkColumn string, patientID int64, name string) error {
	var dictID int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, dictTable),
		name,
	).Scan(&dictID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (patient_id, %s) VALUES ($1, $2)`, linkTable, fkColumn),
		patientID, dictID,
	)
	return err
}
