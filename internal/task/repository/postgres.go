package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/task/domain"
)

// PostgresRepository persists tasks. Extensions are stored as one JSONB object
// keyed by composite "namespace:key".
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a task repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create stores t and sets its ID. A zero Created is replaced by the database clock.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Task) error {
	ext, err := json.Marshal(t.Extensions)
	if err != nil {
		return fmt.Errorf("task: encode extensions: %w", err)
	}
	var created sql.NullTime
	if !t.Created.IsZero() {
		created = sql.NullTime{Time: t.Created, Valid: true}
	}
	var deviceID sql.NullString
	if t.DeviceID != nil {
		deviceID = sql.NullString{String: *t.DeviceID, Valid: true}
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO tasks (created_at, creator_id, type, tag, filter, start_time, end_time,
			interval_sec, count, priority, device_id, extensions)
		VALUES (COALESCE($1, now()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		created, t.CreatorID, t.Type, t.Tag, t.Filter, t.StartTime, t.EndTime,
		t.IntervalSec, t.Count, t.Priority, deviceID, ext,
	).Scan(&t.ID, &t.Created)
}

// GetByID returns the task for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	var (
		t          domain.Task
		start, end sql.NullTime
		deviceID   sql.NullString
		ext        []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, creator_id, type, tag, filter, start_time, end_time,
			interval_sec, count, priority, device_id, extensions
		FROM tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.Created, &t.CreatorID, &t.Type, &t.Tag, &t.Filter, &start, &end,
		&t.IntervalSec, &t.Count, &t.Priority, &deviceID, &ext)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if start.Valid {
		t.StartTime = &start.Time
	}
	if end.Valid {
		t.EndTime = &end.Time
	}
	if deviceID.Valid {
		t.DeviceID = &deviceID.String
	}
	if err := json.Unmarshal(ext, &t.Extensions); err != nil {
		return nil, fmt.Errorf("task %d: decode extensions: %w", id, err)
	}
	return &t, nil
}

// PostgresAssignmentRepository persists device-task assignments.
type PostgresAssignmentRepository struct {
	db db.DBTX
}

// NewPostgresAssignmentRepository returns an assignment repository that uses the given db for persistence.
func NewPostgresAssignmentRepository(conn db.DBTX) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{db: conn}
}

// Assign inserts the (task, device) pair, returning the existing row on conflict.
func (r *PostgresAssignmentRepository) Assign(ctx context.Context, taskID int64, deviceID string) (*domain.DeviceTask, error) {
	var dt domain.DeviceTask
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO device_tasks (id, task_id, device_id, assigned, done)
		VALUES ($1, $2, $3, true, false)
		ON CONFLICT (task_id, device_id) DO UPDATE SET assigned = true
		RETURNING id, task_id, device_id, assigned, done`,
		uuid.NewString(), taskID, deviceID,
	).Scan(&dt.ID, &dt.TaskID, &dt.DeviceID, &dt.Assigned, &dt.Done)
	if err != nil {
		return nil, err
	}
	return &dt, nil
}

// ListByDevice returns every assignment of deviceID ordered by task id.
func (r *PostgresAssignmentRepository) ListByDevice(ctx context.Context, deviceID string) ([]*domain.DeviceTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, device_id, assigned, done
		FROM device_tasks WHERE device_id = $1 ORDER BY task_id`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.DeviceTask
	for rows.Next() {
		var dt domain.DeviceTask
		if err := rows.Scan(&dt.ID, &dt.TaskID, &dt.DeviceID, &dt.Assigned, &dt.Done); err != nil {
			return nil, err
		}
		out = append(out, &dt)
	}
	return out, rows.Err()
}

// CompleteTask flips done with a conditional update so that concurrent
// completions cannot both observe done = false.
func (r *PostgresAssignmentRepository) CompleteTask(ctx context.Context, taskID int64, deviceID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE device_tasks SET done = true
		WHERE task_id = $1 AND device_id = $2 AND done = false`, taskID, deviceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM device_tasks WHERE task_id = $1 AND device_id = $2)`,
		taskID, deviceID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrAlreadyCompleted
	}
	return ErrNotAssigned
}

// Compile-time interface checks.
var (
	_ Repository           = (*PostgresRepository)(nil)
	_ AssignmentRepository = (*PostgresAssignmentRepository)(nil)
)
