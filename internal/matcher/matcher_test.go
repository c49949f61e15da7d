package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devicedomain "mobiperf/backend/internal/device/domain"
	devicerepo "mobiperf/backend/internal/device/repository"
	taskdomain "mobiperf/backend/internal/task/domain"
)

var start = time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC)

func float64Ptr(f float64) *float64 { return &f }

type fixture struct {
	m          *Matcher
	clock      *clockwork.FakeClock
	devices    *devicerepo.MemoryRepository
	properties *devicerepo.MemoryPropertiesRepository
}

// newFixture seeds d1 (manufacturer Acme, no snapshots), d2 (one snapshot with
// carrier Acme) and d3 (one snapshot with carrier Other).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(start)
	devices := devicerepo.NewMemoryRepository()
	properties := devicerepo.NewMemoryPropertiesRepository(devices, clock)

	require.NoError(t, devices.Create(ctx, &devicedomain.DeviceInfo{ID: "d1", Manufacturer: "Acme"}))
	require.NoError(t, devices.Create(ctx, &devicedomain.DeviceInfo{ID: "d2", Manufacturer: "Other"}))
	require.NoError(t, devices.Create(ctx, &devicedomain.DeviceInfo{ID: "d3", Manufacturer: "Other"}))
	require.NoError(t, properties.Create(ctx, &devicedomain.DeviceProperties{DeviceID: "d2", Carrier: "Acme", CPURace: float64Ptr(0.25)}))
	require.NoError(t, properties.Create(ctx, &devicedomain.DeviceProperties{DeviceID: "d3", Carrier: "Other"}))

	return &fixture{
		m:          New(devices, properties, Config{}, clock, nil, nil),
		clock:      clock,
		devices:    devices,
		properties: properties,
	}
}

func deviceIDs(devices []*devicedomain.DeviceInfo) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.ID)
	}
	return out
}

func TestSupportedDevices_EmptyFilterSelectsAll(t *testing.T) {
	f := newFixture(t)
	for _, src := range []string{"", "   "} {
		got, err := f.m.SupportedDevices(context.Background(), &taskdomain.Task{ID: 1, Filter: src})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d2", "d3"}, deviceIDs(got))
	}
}

func TestSupportedDevices_UnionPropertiesFirst(t *testing.T) {
	f := newFixture(t)
	task := &taskdomain.Task{ID: 7, Filter: "manufacturer = 'Acme' OR carrier = 'Acme'"}

	got, err := f.m.SupportedDevices(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1"}, deviceIDs(got))
}

func TestSupportedDevices_TwoDirectOneViaProperties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.devices.Create(ctx, &devicedomain.DeviceInfo{ID: "d4", Manufacturer: "Acme"}))

	got, err := f.m.SupportedDevices(ctx, &taskdomain.Task{ID: 8, Filter: "manufacturer = 'Acme' OR carrier = 'Acme'"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1", "d4"}, deviceIDs(got))

	for _, id := range []string{"d1", "d2", "d4"} {
		ok, err := f.m.MatchDevice(ctx, &taskdomain.Task{ID: 8, Filter: "manufacturer = 'Acme' OR carrier = 'Acme'"}, id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
	ok, err := f.m.MatchDevice(ctx, &taskdomain.Task{ID: 8, Filter: "manufacturer = 'Acme' OR carrier = 'Acme'"}, "d3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSupportedDevices_Deduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.properties.Create(ctx, &devicedomain.DeviceProperties{DeviceID: "d1", Carrier: "Acme"}))

	got, err := f.m.SupportedDevices(ctx, &taskdomain.Task{ID: 7, Filter: "manufacturer = 'Acme' OR carrier = 'Acme'"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, deviceIDs(got))
}

func TestSupportedDevices_BadFilterSelectsNothing(t *testing.T) {
	f := newFixture(t)
	task := &taskdomain.Task{ID: 9, Filter: "manufacturer = "}

	got, err := f.m.SupportedDevices(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, got)

	ok, err := f.m.MatchDevice(context.Background(), task, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, f.m.filters.Len(), "failed parses are not cached")
}

func TestSupportedDevices_CachesParsedFilter(t *testing.T) {
	f := newFixture(t)
	task := &taskdomain.Task{ID: 3, Filter: "carrier = 'Other'"}
	for i := 0; i < 3; i++ {
		got, err := f.m.SupportedDevices(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, []string{"d3"}, deviceIDs(got))
	}
	assert.Equal(t, 1, f.m.filters.Len())
}

func TestMatchDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := &taskdomain.Task{ID: 7, Filter: "manufacturer = 'Acme' OR carrier = 'Acme'"}

	for id, want := range map[string]bool{"d1": true, "d2": true, "d3": false, "missing": false} {
		got, err := f.m.MatchDevice(ctx, task, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}

	got, err := f.m.MatchDevice(ctx, &taskdomain.Task{ID: 8}, "missing")
	require.NoError(t, err)
	assert.True(t, got, "empty filter matches any device")
}

func TestFreshness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.m.LatestDeviceProperties(ctx, "d2")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Acme", p.Carrier)

	race, err := f.m.RaceStatus(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, 0.25, race)
	res, err := f.m.AvailableResources(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, 0.75, res)

	f.clock.Advance(90 * time.Second)
	ok, err := f.m.IsAvailable(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, ok, "exactly at the window boundary is still current")

	f.clock.Advance(time.Second)
	p, err = f.m.LatestDeviceProperties(ctx, "d2")
	require.NoError(t, err)
	assert.Nil(t, p, "only record is stale")
	ok, err = f.m.IsAvailable(ctx, "d2")
	require.NoError(t, err)
	assert.False(t, ok)
	race, err = f.m.RaceStatus(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, NoRaceData, race)
	res, err = f.m.AvailableResources(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, -1.0, res)

	last, err := f.m.LastUpdate(ctx, "d2")
	require.NoError(t, err)
	require.NotNil(t, last, "LastUpdate ignores the staleness window")
	at, ok, err := f.m.LastUpdateTime(ctx, "d2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(start))
}

func TestFreshness_NoData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	race, err := f.m.RaceStatus(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, NoRaceData, race)

	race, err = f.m.RaceStatus(ctx, "d3")
	require.NoError(t, err)
	assert.Equal(t, NoRaceData, race, "current snapshot without cpu_race")

	n, err := f.m.NumUpdates(ctx, "d1")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := f.m.LastUpdateTime(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFreshness_NewestSnapshotWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.properties.Create(ctx, &devicedomain.DeviceProperties{DeviceID: "d2", Carrier: "Fresh"}))

	p, err := f.m.LatestDeviceProperties(ctx, "d2")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Fresh", p.Carrier)
	n, err := f.m.NumUpdates(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestConfig_CustomWindow(t *testing.T) {
	f := newFixture(t)
	m := New(f.devices, f.properties, Config{StalenessWindow: 10 * time.Second}, f.clock, nil, nil)
	f.clock.Advance(11 * time.Second)
	ok, err := m.IsAvailable(context.Background(), "d2")
	require.NoError(t, err)
	assert.False(t, ok)
}
