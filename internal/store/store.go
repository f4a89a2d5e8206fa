// Package store reads patient history and reference disease rows from
// Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/Skufu/medcheck/internal/metrics"
	"github.com/Skufu/medcheck/internal/profile"
)

var ErrPatientNotFound = errors.New("patient not found")

const (
	latestRecordQuery = `SELECT p.fecha_nacimiento, hm.*
FROM pacientes p
LEFT JOIN historial_medico hm ON hm.id_paciente = p.id_paciente
WHERE p.id_paciente = $1
ORDER BY hm.fecha_completado DESC NULLS LAST
LIMIT 1`

	referenceQuery = `SELECT * FROM perfiles_medicos`
)

type Store struct {
	db      *sql.DB
	log     *zap.Logger
	metrics *metrics.Collector
}

// FromPool exposes a pgx pool through database/sql.
func FromPool(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

func New(db *sql.DB, log *zap.Logger, m *metrics.Collector) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log, metrics: m}
}

// LatestRecord returns the patient's birth date merged with their most
// recent history row. A patient without history yields a record whose
// history columns are all nil.
func (s *Store) LatestRecord(ctx context.Context, patientID int64) (profile.Record, error) {
	defer s.observe("latest_record", "historial_medico", time.Now())

	rows, err := s.db.QueryContext(ctx, latestRecordQuery, patientID)
	if err != nil {
		return nil, fmt.Errorf("query latest record for patient %d: %w", patientID, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan latest record for patient %d: %w", patientID, err)
	}
	if len(records) == 0 {
		return nil, ErrPatientNotFound
	}
	return records[0], nil
}

// ReferenceRecords returns every reference disease row.
func (s *Store) ReferenceRecords(ctx context.Context) ([]profile.Record, error) {
	defer s.observe("reference_records", "perfiles_medicos", time.Now())

	rows, err := s.db.QueryContext(ctx, referenceQuery)
	if err != nil {
		return nil, fmt.Errorf("query reference profiles: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan reference profiles: %w", err)
	}
	s.log.Debug("loaded reference profiles", zap.Int("rows", len(records)))
	return records, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) observe(operation, table string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// scanRecords reads rows of any shape into records. When a column name
// repeats, the first non-nil value is kept.
func scanRecords(rows *sql.Rows) ([]profile.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []profile.Record
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		rec := make(profile.Record, len(cols))
		for i, name := range cols {
			if existing, ok := rec[name]; ok && existing != nil {
				continue
			}
			rec[name] = values[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
