package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobiperf/backend/internal/extension"
	"mobiperf/backend/internal/measurement/domain"
)

var base = time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC)

func seedMeasurements(t *testing.T, r Repository) {
	t.Helper()
	ctx := context.Background()
	for i := range 6 {
		m := &domain.Measurement{
			DeviceID:  "d1",
			Type:      "ping",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Success:   i%2 == 0,
		}
		m.Extensions.Set(extension.Value, "rtt", extension.Scalar(float64(10+i)))
		require.NoError(t, r.Create(ctx, m))
	}
	require.NoError(t, r.Create(ctx, &domain.Measurement{DeviceID: "d2", Type: "http", Timestamp: base, Success: true}))
}

func timestamps(list []*domain.Measurement) []time.Time {
	out := make([]time.Time, len(list))
	for i, m := range list {
		out[i] = m.Timestamp
	}
	return out
}

func TestMemoryRepository_ListByDevice(t *testing.T) {
	r := NewMemoryRepository(clockwork.NewFakeClockAt(base))
	seedMeasurements(t, r)
	ctx := context.Background()

	all, err := r.ListByDevice(ctx, "d1", ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, base.Add(5*time.Minute), all[0].Timestamp, "newest first")

	ok, err := r.ListByDevice(ctx, "d1", ListQuery{Limit: 10, SuccessOnly: true})
	require.NoError(t, err)
	require.Len(t, ok, 3)
	for _, m := range ok {
		assert.True(t, m.Success)
	}

	start, end := base.Add(time.Minute), base.Add(3*time.Minute)
	window, err := r.ListByDevice(ctx, "d1", ListQuery{Limit: 10, Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{end, base.Add(2 * time.Minute), start}, timestamps(window))

	limited, err := r.ListByDevice(ctx, "d1", ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryRepository_CreateGetClear(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	r := NewMemoryRepository(clock)
	ctx := context.Background()

	taskID := int64(4)
	m := &domain.Measurement{DeviceID: "d1", Type: "http", TaskID: &taskID}
	m.Extensions.Set(extension.Value, "body", extension.LargeText("<html/>"))
	require.NoError(t, r.Create(ctx, m))
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, base, m.Timestamp)

	got, err := r.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	body, ok := got.Value("body")
	require.True(t, ok)
	assert.True(t, body.Text)
	require.NotNil(t, got.TaskID)

	require.NoError(t, r.ClearTask(ctx, m.ID))
	got, _ = r.GetByID(ctx, m.ID)
	assert.Nil(t, got.TaskID)

	missing, err := r.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryRepository_ExtensionNumbersRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository(clockwork.NewFakeClockAt(base))
	m := &domain.Measurement{DeviceID: "d1", Type: "ping", Timestamp: base, Success: true}
	m.Extensions.Set(extension.Param, "x", extension.Scalar(5))
	m.Extensions.Set(extension.Param, "big", extension.Scalar(json.Number("9007199254740993")))
	m.Extensions.Set(extension.Value, "seq", extension.Scalar(int64(9007199254740993)))
	m.Extensions.Set(extension.Value, "rtt", extension.Scalar(14.0))
	require.NoError(t, r.Create(ctx, m))

	got, err := r.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	x, _ := got.Param("x")
	assert.Equal(t, 5, x.Data)
	big, _ := got.Param("big")
	assert.Equal(t, json.Number("9007199254740993"), big.Data)
	seq, _ := got.Value("seq")
	assert.Equal(t, int64(9007199254740993), seq.Data)
	rtt, _ := got.Value("rtt")
	assert.Equal(t, 14.0, rtt.Data)
}
