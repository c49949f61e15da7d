package repository

import (
	"context"
	"time"

	"mobiperf/backend/internal/validation/domain"
)

// Repository defines persistence for validation summaries and their entries.
type Repository interface {
	// CreateSummary stores s, assigning ID and, when zero, TimestampEnd.
	CreateSummary(ctx context.Context, s *domain.ValidationSummary) error
	// GetSummary returns the summary for id, or nil if not found.
	GetSummary(ctx context.Context, id string) (*domain.ValidationSummary, error)
	// ListSummaries returns summaries of measurementType whose interval ends at
	// or after since, newest first.
	ListSummaries(ctx context.Context, measurementType string, since time.Time) ([]*domain.ValidationSummary, error)
	CreateEntry(ctx context.Context, e *domain.ValidationEntry) error
	ListEntries(ctx context.Context, summaryID string) ([]*domain.ValidationEntry, error)
}
