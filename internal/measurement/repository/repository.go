package repository

import (
	"context"
	"time"

	"mobiperf/backend/internal/measurement/domain"
)

// ListQuery bounds a per-device listing. Results are newest first; Start and
// End are inclusive; SuccessOnly drops failed measurements.
type ListQuery struct {
	Limit       int
	SuccessOnly bool
	Start       *time.Time
	End         *time.Time
}

// Repository defines persistence for measurements.
type Repository interface {
	// Create stores m, assigning ID and, when zero, Timestamp.
	Create(ctx context.Context, m *domain.Measurement) error
	// GetByID returns the measurement for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Measurement, error)
	ListByDevice(ctx context.Context, deviceID string, q ListQuery) ([]*domain.Measurement, error)
	// ClearTask removes the task reference of measurement id.
	ClearTask(ctx context.Context, id string) error
}
