package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobiperf/backend/internal/db/dbtest"
)

func TestPostgresRepository_CreateGet(t *testing.T) {
	conn := dbtest.Open(t)
	r := NewPostgresRepository(conn)
	ctx := context.Background()

	task := newTask()
	require.NoError(t, r.Create(ctx, task))
	assert.NotZero(t, task.ID)
	assert.False(t, task.Created.IsZero())

	got, err := r.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ping", got.Type)
	assert.Equal(t, int64(3), got.Count)
	assert.Nil(t, got.StartTime)
	exp, ok := got.Context("experiment")
	require.True(t, ok)
	assert.Equal(t, "a", exp.Data)

	missing, err := r.GetByID(ctx, task.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresAssignmentRepository_CompleteTask(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx, `INSERT INTO devices (id) VALUES ('d1')`)
	require.NoError(t, err)
	tasks := NewPostgresRepository(conn)
	task := newTask()
	require.NoError(t, tasks.Create(ctx, task))

	r := NewPostgresAssignmentRepository(conn)
	a, err := r.Assign(ctx, task.ID, "d1")
	require.NoError(t, err)
	again, err := r.Assign(ctx, task.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	const workers = 8
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
			err := r.CompleteTask(ctx, task.ID, "d1")
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

	assert.ErrorIs(t, r.CompleteTask(ctx, task.ID, "d2"), ErrNotAssigned)
	list, err := r.ListByDevice(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Done)
}
