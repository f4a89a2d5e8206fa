package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Skufu/medcheck/internal/metrics"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, New(db, zap.NewNop(), metrics.NewCollector("medcheck_test"))
}

func TestLatestRecord_Success(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	birth := time.Date(1975, time.May, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"fecha_nacimiento", "id_paciente", "fumador", "antecedentes_familiares", "fecha_nacimiento"}).
		AddRow(birth, int64(7), true, "abuela con diabetes", nil)

	mock.ExpectQuery(`SELECT p.fecha_nacimiento, hm.\*`).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	rec, err := s.LatestRecord(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, birth, rec["fecha_nacimiento"])
	assert.Equal(t, true, rec["fumador"])
	assert.Equal(t, "abuela con diabetes", rec["antecedentes_familiares"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRecord_NotFound(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT p.fecha_nacimiento`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"fecha_nacimiento", "id_paciente"}))

	_, err := s.LatestRecord(context.Background(), 99)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRecord_QueryErrorPropagates(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	boom := errors.New("connection refused")
	mock.ExpectQuery(`SELECT p.fecha_nacimiento`).WillReturnError(boom)

	_, err := s.LatestRecord(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrPatientNotFound)
}

func TestReferenceRecords(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"enfermedad", "edad", "fumador", "colesterol_alto"}).
		AddRow("Diabetes", int64(61), false, true).
		AddRow("Saludable", int64(30), false, nil)

	mock.ExpectQuery(`SELECT \* FROM perfiles_medicos`).WillReturnRows(rows)

	recs, err := s.ReferenceRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Diabetes", recs[0]["enfermedad"])
	assert.Equal(t, int64(61), recs[0]["edad"])
	assert.Nil(t, recs[1]["colesterol_alto"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRecords_RowError(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"enfermedad"}).
		AddRow("Asma").
		RowError(0, errors.New("bad row"))
	mock.ExpectQuery(`SELECT \* FROM perfiles_medicos`).WillReturnRows(rows)

	_, err := s.ReferenceRecords(context.Background())
	assert.Error(t, err)
}
