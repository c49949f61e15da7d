package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"mobiperf/backend/internal/task/domain"
)

// MemoryRepository is an in-process task repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	clock  clockwork.Clock
	nextID int64
	tasks  map[int64]*domain.Task
}

// NewMemoryRepository returns an empty MemoryRepository. A nil clock uses the real clock.
func NewMemoryRepository(clock clockwork.Clock) *MemoryRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRepository{clock: clock, tasks: make(map[int64]*domain.Task)}
}

// cloneTask deep-copies t, round-tripping extensions through their persisted
// form so stored values look the same as after a database read.
func cloneTask(t *domain.Task) (*domain.Task, error) {
	c := *t
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.EndTime != nil {
		et := *t.EndTime
		c.EndTime = &et
	}
	if t.DeviceID != nil {
		id := *t.DeviceID
		c.DeviceID = &id
	}
	b, err := json.Marshal(t.Extensions)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &c.Extensions); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores t and sets its ID.
func (r *MemoryRepository) Create(_ context.Context, t *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	if t.Created.IsZero() {
		t.Created = r.clock.Now().UTC()
	}
	c, err := cloneTask(t)
	if err != nil {
		return err
	}
	r.tasks[t.ID] = c
	return nil
}

// GetByID returns the task for id, or nil if not found.
func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	return cloneTask(t)
}

type assignmentKey struct {
	taskID   int64
	deviceID string
}

// MemoryAssignmentRepository is an in-process assignment repository.
type MemoryAssignmentRepository struct {
	mu   sync.Mutex
	rows map[assignmentKey]domain.DeviceTask
}

// NewMemoryAssignmentRepository returns an empty MemoryAssignmentRepository.
func NewMemoryAssignmentRepository() *MemoryAssignmentRepository {
	return &MemoryAssignmentRepository{rows: make(map[assignmentKey]domain.DeviceTask)}
}

// Assign records the pair, returning the existing assignment if present.
func (r *MemoryAssignmentRepository) Assign(_ context.Context, taskID int64, deviceID string) (*domain.DeviceTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := assignmentKey{taskID, deviceID}
	dt, ok := r.rows[k]
	if !ok {
		dt = domain.DeviceTask{ID: uuid.NewString(), TaskID: taskID, DeviceID: deviceID, Assigned: true}
		r.rows[k] = dt
	}
	return &dt, nil
}

// ListByDevice returns every assignment of deviceID ordered by task id.
func (r *MemoryAssignmentRepository) ListByDevice(_ context.Context, deviceID string) ([]*domain.DeviceTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.DeviceTask
	for k, dt := range r.rows {
		if k.deviceID == deviceID {
			dt := dt
			out = append(out, &dt)
		}
	}
	slices.SortFunc(out, func(a, b *domain.DeviceTask) int { return cmp.Compare(a.TaskID, b.TaskID) })
	return out, nil
}

// CompleteTask marks the assignment done under the repository lock.
func (r *MemoryAssignmentRepository) CompleteTask(_ context.Context, taskID int64, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := assignmentKey{taskID, deviceID}
	dt, ok := r.rows[k]
	switch {
	case !ok:
		return ErrNotAssigned
	case dt.Done:
		return ErrAlreadyCompleted
	}
	dt.Done = true
	r.rows[k] = dt
	return nil
}

var (
	_ Repository           = (*MemoryRepository)(nil)
	_ AssignmentRepository = (*MemoryAssignmentRepository)(nil)
)
