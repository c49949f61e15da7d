package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/filter"
)

func strPtr(s string) *string { return &s }

func seedDevices(t *testing.T, r Repository) {
	t.Helper()
	ctx := context.Background()
	for _, d := range []*domain.DeviceInfo{
		{ID: "d1", OwnerID: strPtr("alice"), Manufacturer: "Acme", Model: "A1"},
		{ID: "d2", OwnerID: strPtr("bob"), Manufacturer: "Acme", Model: "A2"},
		{ID: "d3", Manufacturer: "Other", Model: "O1"},
		{ID: "d4", OwnerID: strPtr("alice"), Manufacturer: "Other", Model: "O2"},
		{ID: "d5", OwnerID: strPtr("alice"), Manufacturer: "Other", Model: "O3"},
	} {
		require.NoError(t, r.Create(ctx, d))
	}
}

func TestMemoryRepository_GetByID(t *testing.T) {
	r := NewMemoryRepository()
	seedDevices(t, r)

	d, err := r.GetByID(context.Background(), "d1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "alice", *d.OwnerID)

	*d.OwnerID = "mallory"
	again, _ := r.GetByID(context.Background(), "d1")
	assert.Equal(t, "alice", *again.OwnerID, "returned values must be copies")

	missing, err := r.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, r.Create(context.Background(), &domain.DeviceInfo{ID: "d1"}), ErrDuplicateID)
}

func TestMemoryRepository_ListPaginates(t *testing.T) {
	r := NewMemoryRepository()
	seedDevices(t, r)
	ctx := context.Background()

	var ids []string
	cursor := ""
	for {
		page, next, err := r.List(ctx, ListQuery{Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		for _, d := range page {
			ids = append(ids, d.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d5"}, ids)

	page, next, err := r.List(ctx, ListQuery{OwnerID: strPtr("alice"), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, page, 3)
	assert.Equal(t, "d4", page[1].ID)

	_, _, err = r.List(ctx, ListQuery{Cursor: "garbage!"})
	assert.Error(t, err)
}

func TestMemoryRepository_FindByFilterAndClaim(t *testing.T) {
	r := NewMemoryRepository()
	seedDevices(t, r)
	ctx := context.Background()

	e, err := filter.Parse("manufacturer = 'Acme'")
	require.NoError(t, err)
	got, err := r.FindByFilter(ctx, e)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, "d2", got[1].ID)

	unclaimed, _ := filter.Parse("user = NULL")
	got, _ = r.FindByFilter(ctx, unclaimed)
	require.Len(t, got, 1)
	assert.Equal(t, "d3", got[0].ID)

	require.NoError(t, r.UpdateOwner(ctx, "d3", strPtr("carol")))
	got, _ = r.FindByFilter(ctx, unclaimed)
	assert.Empty(t, got)
	assert.Error(t, r.UpdateOwner(ctx, "missing", nil))
}

func TestMemoryPropertiesRepository(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC))
	devices := NewMemoryRepository()
	seedDevices(t, devices)
	r := NewMemoryPropertiesRepository(devices, clock)
	ctx := context.Background()

	latest, err := r.Latest(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := &domain.DeviceProperties{DeviceID: "d1", Carrier: "Acme"}
	require.NoError(t, r.Create(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, clock.Now(), first.Timestamp)

	clock.Advance(time.Minute)
	require.NoError(t, r.Create(ctx, &domain.DeviceProperties{DeviceID: "d1", Carrier: "Verizon", HostApps: []string{"mobiperf"}}))
	// An explicitly older timestamp does not become latest.
	require.NoError(t, r.Create(ctx, &domain.DeviceProperties{DeviceID: "d1", Timestamp: clock.Now().Add(-time.Hour)}))

	latest, err = r.Latest(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Verizon", latest.Carrier)

	n, err := r.Count(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, r.Create(ctx, &domain.DeviceProperties{DeviceID: "d5", Carrier: "Acme"}))
	require.NoError(t, r.Create(ctx, &domain.DeviceProperties{DeviceID: "ghost", Carrier: "Acme"}))
	e, _ := filter.Parse("carrier = 'Acme'")
	got, err := r.DevicesMatching(ctx, e)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, "d5", got[1].ID)

	apps, _ := filter.Parse("host_apps = 'mobiperf'")
	got, _ = r.DevicesMatching(ctx, apps)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)

	notNull, _ := filter.Parse("host_apps != NULL")
	got, err = r.DevicesMatching(ctx, notNull)
	require.NoError(t, err)
	assert.Empty(t, got, "list fields never match NULL, as in the SQL translation")
}
