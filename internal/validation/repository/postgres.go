package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/validation/domain"
)

const summarySelect = `SELECT id, measurement_type, timestamp_start, timestamp_end, record_count, error_count, per_error_count
	FROM validation_summaries`

// PostgresRepository persists validation results.
type PostgresRepository struct {
	db    db.DBTX
	types *pgtype.Map
}

// NewPostgresRepository returns a validation repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn, types: pgtype.NewMap()}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *PostgresRepository) scanSummary(row interface{ Scan(...any) error }) (*domain.ValidationSummary, error) {
	var s domain.ValidationSummary
	err := row.Scan(&s.ID, &s.MeasurementType, &s.TimestampStart, &s.TimestampEnd,
		&s.RecordCount, &s.ErrorCount, r.types.SQLScanner(&s.PerErrorCount))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSummary stores s. The per-type counts are written as given.
func (r *PostgresRepository) CreateSummary(ctx context.Context, s *domain.ValidationSummary) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var end sql.NullTime
	if !s.TimestampEnd.IsZero() {
		end = sql.NullTime{Time: s.TimestampEnd, Valid: true}
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO validation_summaries (id, measurement_type, timestamp_start, timestamp_end,
			record_count, error_count, per_error_count)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5, $6, $7)
		RETURNING timestamp_end`,
		s.ID, s.MeasurementType, s.TimestampStart, end, s.RecordCount, s.ErrorCount, orEmpty(s.PerErrorCount),
	).Scan(&s.TimestampEnd)
}

// GetSummary returns the summary for id, or nil if not found.
func (r *PostgresRepository) GetSummary(ctx context.Context, id string) (*domain.ValidationSummary, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	s, err := r.scanSummary(r.db.QueryRowContext(ctx, summarySelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListSummaries returns summaries of measurementType ending at or after since.
func (r *PostgresRepository) ListSummaries(ctx context.Context, measurementType string, since time.Time) ([]*domain.ValidationSummary, error) {
	rows, err := r.db.QueryContext(ctx, summarySelect+`
		WHERE measurement_type = $1 AND timestamp_end >= $2
		ORDER BY timestamp_end DESC`, measurementType, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ValidationSummary
	for rows.Next() {
		s, err := r.scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateEntry stores e.
func (r *PostgresRepository) CreateEntry(ctx context.Context, e *domain.ValidationEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO validation_entries (id, summary_id, measurement_id, error_types)
		VALUES ($1, $2, $3, $4)`, e.ID, e.SummaryID, e.MeasurementID, orEmpty(e.ErrorTypes))
	return err
}

// ListEntries returns the entries of summaryID.
func (r *PostgresRepository) ListEntries(ctx context.Context, summaryID string) ([]*domain.ValidationEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, summary_id, measurement_id, error_types
		FROM validation_entries WHERE summary_id = $1 ORDER BY id`, summaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ValidationEntry
	for rows.Next() {
		var e domain.ValidationEntry
		if err := rows.Scan(&e.ID, &e.SummaryID, &e.MeasurementID, r.types.SQLScanner(&e.ErrorTypes)); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var _ Repository = (*PostgresRepository)(nil)
