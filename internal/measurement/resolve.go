// Package measurement holds measurement behaviour that needs collaborators
// beyond the entity itself.
package measurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"mobiperf/backend/internal/measurement/domain"
	taskdomain "mobiperf/backend/internal/task/domain"
	"mobiperf/backend/internal/telemetry"
	telemetrydomain "mobiperf/backend/internal/telemetry/domain"
)

// TaskLookup resolves task ids; GetByID returns (nil, nil) for unknown tasks.
type TaskLookup interface {
	GetByID(ctx context.Context, id int64) (*taskdomain.Task, error)
}

// TaskClearer drops a stored measurement's task reference.
type TaskClearer interface {
	ClearTask(ctx context.Context, id string) error
}

// Resolver follows measurement task references.
type Resolver struct {
	tasks   TaskLookup
	clearer TaskClearer
	emitter telemetry.EventEmitter
	logger  *slog.Logger
}

// NewResolver returns a Resolver. clearer and emitter may be nil; without a
// clearer dangling references are only cleared in memory.
func NewResolver(tasks TaskLookup, clearer TaskClearer, emitter telemetry.EventEmitter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{tasks: tasks, clearer: clearer, emitter: emitter, logger: logger.With("component", "measurement")}
}

// ResolveTask returns the task m was produced for. When m references a task
// that no longer exists the reference is cleared, the miss is logged and
// (nil, nil) is returned. Failing to persist the cleared reference is logged only.
func (r *Resolver) ResolveTask(ctx context.Context, m *domain.Measurement) (*taskdomain.Task, error) {
	if m.TaskID == nil {
		return nil, nil
	}
	taskID := *m.TaskID
	t, err := r.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("measurement %s: look up task %d: %w", m.ID, taskID, err)
	}
	if t != nil {
		return t, nil
	}

	r.logger.WarnContext(ctx, "cannot resolve task for measurement",
		"measurement_id", m.ID, "task_id", taskID)
	m.TaskID = nil
	if r.clearer != nil && m.ID != "" {
		if err := r.clearer.ClearTask(ctx, m.ID); err != nil {
			r.logger.WarnContext(ctx, "clear task reference", "measurement_id", m.ID, "error", err)
		}
	}
	telemetry.EmitAsync(ctx, r.emitter, &telemetrydomain.Event{
		Type:     telemetrydomain.EventTaskNotFound,
		Source:   "measurement",
		DeviceID: m.DeviceID,
		Detail:   "measurement references a missing task",
		Attributes: map[string]string{
			"measurement_id": m.ID,
			"task_id":        strconv.FormatInt(taskID, 10),
		},
	}, r.logger)
	return nil, nil
}

// ResolveTasks resolves the task of every measurement in ms, looking each
// task id up once. The result maps task id to task and omits missing tasks.
func (r *Resolver) ResolveTasks(ctx context.Context, ms []*domain.Measurement) (map[int64]*taskdomain.Task, error) {
	out := make(map[int64]*taskdomain.Task)
	missing := make(map[int64]bool)
	for _, m := range ms {
		if m.TaskID == nil {
			continue
		}
		id := *m.TaskID
		if _, ok := out[id]; ok {
			continue
		}
		if missing[id] {
			m.TaskID = nil
			continue
		}
		t, err := r.ResolveTask(ctx, m)
		if err != nil {
			return nil, err
		}
		if t == nil {
			missing[id] = true
			continue
		}
		out[id] = t
	}
	return out, nil
}
