package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobiperf/backend/internal/db/dbtest"
	"mobiperf/backend/internal/validation/domain"
)

func TestPostgresRepository(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	const measurementID = "00000000-0000-0000-0000-000000000001"
	_, err := conn.ExecContext(ctx, `INSERT INTO devices (id) VALUES ('d1')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO measurements (id, device_id, type) VALUES ($1, 'd1', 'ping')`, measurementID)
	require.NoError(t, err)

	r := NewPostgresRepository(conn)
	start := time.Now().Add(-time.Hour).UTC()
	s := &domain.ValidationSummary{MeasurementType: "ping", TimestampStart: start, RecordCount: 10, ErrorCount: 3}
	s.SetErrorByType(map[string]int64{"timeout": 2, "bad_rtt": 1})
	require.NoError(t, r.CreateSummary(ctx, s))
	assert.False(t, s.TimestampEnd.IsZero())

	got, err := r.GetSummary(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"bad_rtt:1", "timeout:2"}, got.PerErrorCount)
	assert.True(t, got.Consistent())

	list, err := r.ListSummaries(ctx, "ping", start)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = r.ListSummaries(ctx, "http", start)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, r.CreateEntry(ctx, &domain.ValidationEntry{SummaryID: s.ID, MeasurementID: measurementID, ErrorTypes: []string{"timeout"}}))
	entries, err := r.ListEntries(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"timeout"}, entries[0].ErrorTypes)
}
