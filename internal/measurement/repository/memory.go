package repository

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"mobiperf/backend/internal/measurement/domain"
	"mobiperf/backend/internal/platform/pagination"
)

// MemoryRepository is an in-process measurement repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	byID  map[string]*domain.Measurement
}

// NewMemoryRepository returns an empty MemoryRepository. A nil clock uses the real clock.
func NewMemoryRepository(clock clockwork.Clock) *MemoryRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRepository{clock: clock, byID: make(map[string]*domain.Measurement)}
}

func clone(m *domain.Measurement) (*domain.Measurement, error) {
	c := *m
	if m.TaskID != nil {
		id := *m.TaskID
		c.TaskID = &id
	}
	b, err := json.Marshal(m.Extensions)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &c.Extensions); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores m.
func (r *MemoryRepository) Create(_ context.Context, m *domain.Measurement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.clock.Now().UTC()
	}
	c, err := clone(m)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = c
	return nil
}

// GetByID returns the measurement for id, or nil if not found.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(m)
}

// ListByDevice returns up to q.Limit measurements of deviceID, newest first.
func (r *MemoryRepository) ListByDevice(_ context.Context, deviceID string, q ListQuery) ([]*domain.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var hits []*domain.Measurement
	for _, m := range r.byID {
		switch {
		case m.DeviceID != deviceID:
		case q.SuccessOnly && !m.Success:
		case q.Start != nil && m.Timestamp.Before(*q.Start):
		case q.End != nil && m.Timestamp.After(*q.End):
		default:
			hits = append(hits, m)
		}
	}
	slices.SortFunc(hits, func(a, b *domain.Measurement) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit := pagination.Limit(q.Limit); len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*domain.Measurement, 0, len(hits))
	for _, m := range hits {
		c, err := clone(m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ClearTask removes the task reference of measurement id.
func (r *MemoryRepository) ClearTask(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		m.TaskID = nil
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
