package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobiperf/backend/internal/extension"
	"mobiperf/backend/internal/task/domain"
)

func newTask() *domain.Task {
	t := &domain.Task{Type: "ping", Tag: "nightly", Filter: "manufacturer = 'Acme'", Count: 3}
	t.Extensions.Set(extension.Param, "target", extension.Scalar("www.google.com"))
	t.Extensions.Set(extension.Context, "experiment", extension.Scalar("a"))
	return t
}

func TestMemoryRepository_CreateGet(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC))
	r := NewMemoryRepository(clock)
	ctx := context.Background()

	first, second := newTask(), newTask()
	require.NoError(t, r.Create(ctx, first))
	require.NoError(t, r.Create(ctx, second))
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, clock.Now(), first.Created)

	got, err := r.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "manufacturer = 'Acme'", got.Filter)
	target, ok := got.Param("target")
	require.True(t, ok)
	assert.Equal(t, "www.google.com", target.Data)
	_, ok = got.Param("experiment")
	assert.False(t, ok)

	missing, err := r.GetByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryAssignmentRepository(t *testing.T) {
	r := NewMemoryAssignmentRepository()
	ctx := context.Background()

	a, err := r.Assign(ctx, 2, "d1")
	require.NoError(t, err)
	again, err := r.Assign(ctx, 2, "d1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	_, err = r.Assign(ctx, 1, "d1")
	require.NoError(t, err)
	_, err = r.Assign(ctx, 1, "d2")
	require.NoError(t, err)

	list, err := r.ListByDevice(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].TaskID)
	assert.True(t, list[0].Assigned)
	assert.False(t, list[0].Done)

	require.NoError(t, r.CompleteTask(ctx, 1, "d1"))
	assert.ErrorIs(t, r.CompleteTask(ctx, 1, "d1"), ErrAlreadyCompleted)
	assert.ErrorIs(t, r.CompleteTask(ctx, 3, "d1"), ErrNotAssigned)

	list, _ = r.ListByDevice(ctx, "d1")
	assert.True(t, list[0].Done)
	assert.False(t, list[1].Done)
}

func TestMemoryAssignmentRepository_ConcurrentCompletion(t *testing.T) {
	r := NewMemoryAssignmentRepository()
	ctx := context.Background()
	_, err := r.Assign(ctx, 7, "d1")
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.CompleteTask(ctx, 7, "d1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrAlreadyCompleted):
				rejected++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)
}

func TestMemoryRepository_ParamNumbersRoundTrip(t *testing.T) {
	r := NewMemoryRepository(clockwork.NewFakeClock())
	ctx := context.Background()
	task := newTask()
	task.Extensions.Set(extension.Param, "packet_count", extension.Scalar(5))
	task.Extensions.Set(extension.Param, "flow_id", extension.Scalar(int64(9007199254740993)))
	require.NoError(t, r.Create(ctx, task))

	got, err := r.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	count, ok := got.Param("packet_count")
	require.True(t, ok)
	assert.Equal(t, 5, count.Data)
	flow, ok := got.Param("flow_id")
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), flow.Data)
}
