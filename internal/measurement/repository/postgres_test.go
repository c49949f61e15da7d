package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobiperf/backend/internal/db/dbtest"
	"mobiperf/backend/internal/extension"
	"mobiperf/backend/internal/measurement/domain"
)

func TestPostgresRepository(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx, `INSERT INTO devices (id) VALUES ('d1'), ('d2')`)
	require.NoError(t, err)
	r := NewPostgresRepository(conn)
	seedMeasurements(t, r)

	ok, err := r.ListByDevice(ctx, "d1", ListQuery{Limit: 10, SuccessOnly: true})
	require.NoError(t, err)
	require.Len(t, ok, 3)
	assert.True(t, base.Add(4*time.Minute).Equal(ok[0].Timestamp))
	rtt, found := ok[0].Value("rtt")
	require.True(t, found)
	assert.Equal(t, 14.0, rtt.Data)

	start, end := base.Add(time.Minute), base.Add(3*time.Minute)
	window, err := r.ListByDevice(ctx, "d1", ListQuery{Limit: 10, Start: &start, End: &end})
	require.NoError(t, err)
	assert.Len(t, window, 3)

	got, err := r.GetByID(ctx, ok[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d1", got.DeviceID)

	missing, err := r.GetByID(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresRepository_ExtensionNumbersRoundTrip(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx, `INSERT INTO devices (id) VALUES ('d1')`)
	require.NoError(t, err)
	r := NewPostgresRepository(conn)

	m := &domain.Measurement{DeviceID: "d1", Type: "ping", Timestamp: base, Success: true}
	m.Extensions.Set(extension.Param, "x", extension.Scalar(5))
	m.Extensions.Set(extension.Param, "big", extension.Scalar(json.Number("9007199254740993")))
	m.Extensions.Set(extension.Value, "seq", extension.Scalar(int64(9007199254740993)))
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
}
