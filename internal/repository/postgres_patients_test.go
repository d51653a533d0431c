package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medquery/internal/domain"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresPatientsRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresPatientsRepo(db)
}

func upsertFixture() []domain.PatientRecord {
	return []domain.PatientRecord{{
		ID: "P0001", Name: "Jane Smith", Age: 42, Gender: "F",
		Address:     "123 Maple St",
		Notes:       "Stable.",
		Conditions:  []string{"Type 2 Diabetes"},
		Medications: []string{"Metformin"},
		VisitDates:  []string{"2024-01-15"},
	}}
}

var patientColumns = []string{
	"external_id", "name", "age", "gender", "address", "notes",
	"conditions", "medications", "visit_dates",
}

func TestGetPatient_ByID(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(patientColumns).
		AddRow("P0001", "Jane Smith", 42, "F", "123 Maple St, Springfield", "Stable.",
			`{"Type 2 Diabetes","Hypertension"}`, `{Metformin}`, `{2024-01-15,2024-06-20}`)

	mock.ExpectQuery(`WHERE UPPER\(p\.external_id\) = UPPER\(\$1\)`).
		WithArgs("p0001").
		WillReturnRows(rows)

	p, err := repo.GetPatient(context.Background(), "p0001", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "P0001", p.ID)
	assert.Equal(t, []string{"Type 2 Diabetes", "Hypertension"}, p.Conditions)
	assert.Equal(t, []string{"Metformin"}, p.Medications)
	assert.Equal(t, []string{"2024-01-15", "2024-06-20"}, p.VisitDates)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatient_ByName(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(patientColumns).
		AddRow("P0003", "Maria Lopez", 34, "F", "", "", `{Asthma}`, `{Albuterol}`, `{}`)

	mock.ExpectQuery(`WHERE p\.name = \$1`).
		WithArgs("Maria Lopez").
		WillReturnRows(rows)

	p, err := repo.GetPatient(context.Background(), "", "Maria Lopez")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "P0003", p.ID)
	assert.Empty(t, p.VisitDates)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatient_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE UPPER\(p\.external_id\)`).
		WithArgs("P9999").
		WillReturnError(sql.ErrNoRows)

	p, err := repo.GetPatient(context.Background(), "P9999", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatient_NoArguments(t *testing.T) {
	db, _, repo := setupMockDB(t)
	defer db.Close()

	p, err := repo.GetPatient(context.Background(), "", "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSearchPatients_NoFilter(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(patientColumns).
		AddRow("P0001", "Jane Smith", 42, "F", "", "", `{}`, `{}`, `{}`).
		AddRow("P0002", "David Chen", 67, "M", "", "", `{}`, `{}`, `{}`)

	mock.ExpectQuery(`ORDER BY p\.id LIMIT \$1 OFFSET \$2`).
		WithArgs(25, 0).
		WillReturnRows(rows)

	out, err := repo.SearchPatients(context.Background(), PatientFilter{}, 25, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "P0002", out[1].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPatients_MinAgeAndConditions(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(patientColumns).
		AddRow("P0002", "David Chen", 67, "M", "", "", `{"Type 2 Diabetes"}`, `{Metformin}`, `{}`)

	mock.ExpectQuery(`WHERE p\.age >= \$1 AND EXISTS`).
		WithArgs(60, sqlmock.AnyArg(), 25, 0).
		WillReturnRows(rows)

	minAge := 60
	out, err := repo.SearchPatients(context.Background(),
		PatientFilter{MinAge: &minAge, Conditions: []string{"Type 2 Diabetes"}}, 25, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "P0002", out[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPatients_DefaultLimit(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(patientColumns))

	out, err := repo.SearchPatients(context.Background(), PatientFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateByMedication(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"name", "cnt"}).
		AddRow("Metformin", 12).
		AddRow("Lisinopril", 7)

	mock.ExpectQuery(`GROUP BY m\.name ORDER BY cnt DESC, m\.name ASC`).
		WithArgs(60).
		WillReturnRows(rows)

	minAge := 60
	out, err := repo.AggregateByMedication(context.Background(), PatientFilter{MinAge: &minAge})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, MedicationCount{Medication: "Metformin", Count: 12}, out[0])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPatients(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM patients`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(250))

	n, err := repo.CountPatients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPatients_ReplacesRelations(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO patients`).
		WithArgs("P0001", "Jane Smith", 42, "F", "123 Maple St", "Stable.").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`DELETE FROM patient_conditions`).WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM patient_medications`).WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM visits`).WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO conditions`).WithArgs("Type 2 Diabetes").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO patient_conditions`).WithArgs(int64(11), int64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO medications`).WithArgs("Metformin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec(`INSERT INTO patient_medications`).WithArgs(int64(11), int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO visits`).WithArgs(int64(11), "2024-01-15").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertPatients(context.Background(), upsertFixture())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPatients_RollbackOnFailure(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO patients`).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.UpsertPatients(context.Background(), upsertFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert patient P0001")

	assert.NoError(t, mock.ExpectationsWereMet())
}
