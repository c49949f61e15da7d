package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/measurement/domain"
	"mobiperf/backend/internal/platform/pagination"
)

const measurementSelect = `SELECT id, device_id, device_properties_id, type, "timestamp", success, task_id, extensions FROM measurements`

// PostgresRepository persists measurements. Extensions are stored as one JSONB
// object keyed by composite "namespace:key".
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a measurement repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row rowScanner) (*domain.Measurement, error) {
	var (
		m       domain.Measurement
		propsID sql.NullString
		taskID  sql.NullInt64
		ext     []byte
	)
	if err := row.Scan(&m.ID, &m.DeviceID, &propsID, &m.Type, &m.Timestamp, &m.Success, &taskID, &ext); err != nil {
		return nil, err
	}
	m.DevicePropertiesID = propsID.String
	if taskID.Valid {
		m.TaskID = &taskID.Int64
	}
	m.Timestamp = m.Timestamp.UTC()
	if err := json.Unmarshal(ext, &m.Extensions); err != nil {
		return nil, fmt.Errorf("measurement %s: decode extensions: %w", m.ID, err)
	}
	return &m, nil
}

// Create stores m. A zero Timestamp is replaced by the database clock.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Measurement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ext, err := json.Marshal(m.Extensions)
	if err != nil {
		return fmt.Errorf("measurement: encode extensions: %w", err)
	}
	var ts sql.NullTime
	if !m.Timestamp.IsZero() {
		ts = sql.NullTime{Time: m.Timestamp, Valid: true}
	}
	var propsID sql.NullString
	if m.DevicePropertiesID != "" {
		propsID = sql.NullString{String: m.DevicePropertiesID, Valid: true}
	}
	var taskID sql.NullInt64
	if m.TaskID != nil {
		taskID = sql.NullInt64{Int64: *m.TaskID, Valid: true}
	}
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO measurements (id, device_id, device_properties_id, type, "timestamp", success, task_id, extensions)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), $6, $7, $8)
		RETURNING "timestamp"`,
		m.ID, m.DeviceID, propsID, m.Type, ts, m.Success, taskID, ext,
	).Scan(&m.Timestamp); err != nil {
		return err
	}
	m.Timestamp = m.Timestamp.UTC()
	return nil
}

// GetByID returns the measurement for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Measurement, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	m, err := scanMeasurement(r.db.QueryRowContext(ctx, measurementSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListByDevice returns up to q.Limit measurements of deviceID, newest first.
func (r *PostgresRepository) ListByDevice(ctx context.Context, deviceID string, q ListQuery) ([]*domain.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, measurementSelect+`
		WHERE device_id = $1
		  AND (NOT $2::boolean OR success)
		  AND ($3::timestamptz IS NULL OR "timestamp" >= $3)
		  AND ($4::timestamptz IS NULL OR "timestamp" <= $4)
		ORDER BY "timestamp" DESC, id
		LIMIT $5`,
		deviceID, q.SuccessOnly, q.Start, q.End, pagination.Limit(q.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearTask removes the task reference of measurement id.
func (r *PostgresRepository) ClearTask(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE measurements SET task_id = NULL WHERE id = $1`, id)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
