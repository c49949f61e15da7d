package repository

import (
	"context"
	"errors"

	"mobiperf/backend/internal/task/domain"
)

var (
	// ErrAlreadyCompleted is returned by CompleteTask when the assignment is already done.
	ErrAlreadyCompleted = errors.New("task: already completed")
	// ErrNotAssigned is returned by CompleteTask when the task was never assigned to the device.
	ErrNotAssigned = errors.New("task: not assigned to device")
)

// Repository defines persistence for tasks.
type Repository interface {
	// Create stores t, assigning ID and, when zero, Created.
	Create(ctx context.Context, t *domain.Task) error
	// GetByID returns the task for id, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)
}

// AssignmentRepository defines persistence for device-task assignments.
type AssignmentRepository interface {
	// Assign records that taskID is assigned to deviceID. Assigning the same
	// pair twice returns the existing assignment.
	Assign(ctx context.Context, taskID int64, deviceID string) (*domain.DeviceTask, error)
	ListByDevice(ctx context.Context, deviceID string) ([]*domain.DeviceTask, error)
	// CompleteTask marks the assignment done. Exactly one of several concurrent
	// callers succeeds; the others get ErrAlreadyCompleted.
	CompleteTask(ctx context.Context, taskID int64, deviceID string) error
}
