// Package matcher decides which devices are fresh enough to run measurements and
// which devices a task's filter selects.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	devicedomain "mobiperf/backend/internal/device/domain"
	devicerepo "mobiperf/backend/internal/device/repository"
	"mobiperf/backend/internal/filter"
	"mobiperf/backend/internal/platform/pagination"
	taskdomain "mobiperf/backend/internal/task/domain"
	"mobiperf/backend/internal/telemetry"
	telemetrydomain "mobiperf/backend/internal/telemetry/domain"
)

// NoRaceData is the race status reported when a device has no current snapshot
// or the snapshot carries no cpu_race.
const NoRaceData = 2.0

// DefaultFilterTTL is how long a parsed filter stays cached.
const DefaultFilterTTL = 5 * time.Minute

// DeviceRepo is the minimal device repository needed by the matcher.
type DeviceRepo interface {
	List(ctx context.Context, q devicerepo.ListQuery) ([]*devicedomain.DeviceInfo, string, error)
	FindByFilter(ctx context.Context, e filter.Expr) ([]*devicedomain.DeviceInfo, error)
}

// PropertiesRepo is the minimal properties repository needed by the matcher.
type PropertiesRepo interface {
	Latest(ctx context.Context, deviceID string) (*devicedomain.DeviceProperties, error)
	Count(ctx context.Context, deviceID string) (int64, error)
	DevicesMatching(ctx context.Context, e filter.Expr) ([]*devicedomain.DeviceInfo, error)
}

// Config holds the matcher's tunables. Zero values use the defaults.
type Config struct {
	StalenessWindow time.Duration
	FilterTTL       time.Duration
}

// Matcher answers freshness and task-matching questions.
type Matcher struct {
	devices    DeviceRepo
	properties PropertiesRepo
	clock      clockwork.Clock
	window     time.Duration
	filterTTL  time.Duration
	filters    *ttlcache.Cache[string, filter.Expr]
	emitter    telemetry.EventEmitter
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New returns a Matcher. clock, emitter and logger may be nil.
func New(devices DeviceRepo, properties PropertiesRepo, cfg Config, clock clockwork.Clock, emitter telemetry.EventEmitter, logger *slog.Logger) *Matcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = devicedomain.DefaultStalenessWindow
	}
	if cfg.FilterTTL <= 0 {
		cfg.FilterTTL = DefaultFilterTTL
	}
	return &Matcher{
		devices:    devices,
		properties: properties,
		clock:      clock,
		window:     cfg.StalenessWindow,
		filterTTL:  cfg.FilterTTL,
		filters: ttlcache.New(
			ttlcache.WithTTL[string, filter.Expr](cfg.FilterTTL),
		),
		emitter: emitter,
		logger:  logger.With("component", "matcher"),
		tracer:  otel.Tracer("mobiperf/matcher"),
	}
}

// LastUpdate returns the newest snapshot of deviceID regardless of age, or nil.
func (m *Matcher) LastUpdate(ctx context.Context, deviceID string) (*devicedomain.DeviceProperties, error) {
	p, err := m.properties.Latest(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("latest properties of %s: %w", deviceID, err)
	}
	return p, nil
}

// LastUpdateTime returns the timestamp of the newest snapshot; ok is false when
// the device never reported.
func (m *Matcher) LastUpdateTime(ctx context.Context, deviceID string) (t time.Time, ok bool, err error) {
	p, err := m.LastUpdate(ctx, deviceID)
	if err != nil || p == nil {
		return time.Time{}, false, err
	}
	return p.Timestamp, true, nil
}

// NumUpdates returns how many snapshots deviceID has reported.
func (m *Matcher) NumUpdates(ctx context.Context, deviceID string) (int64, error) {
	n, err := m.properties.Count(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("count properties of %s: %w", deviceID, err)
	}
	return n, nil
}

// LatestDeviceProperties returns the newest snapshot of deviceID, or nil when
// there is none or it is older than the staleness window.
func (m *Matcher) LatestDeviceProperties(ctx context.Context, deviceID string) (*devicedomain.DeviceProperties, error) {
	p, err := m.LastUpdate(ctx, deviceID)
	if err != nil || p == nil {
		return nil, err
	}
	if p.IsOld(m.clock.Now(), m.window) {
		return nil, nil
	}
	return p, nil
}

// IsAvailable reports whether deviceID has a current snapshot.
func (m *Matcher) IsAvailable(ctx context.Context, deviceID string) (bool, error) {
	p, err := m.LatestDeviceProperties(ctx, deviceID)
	return p != nil, err
}

// RaceStatus returns the cpu_race of the current snapshot, or NoRaceData.
func (m *Matcher) RaceStatus(ctx context.Context, deviceID string) (float64, error) {
	p, err := m.LatestDeviceProperties(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if p == nil || p.CPURace == nil {
		return NoRaceData, nil
	}
	return *p.CPURace, nil
}

// AvailableResources is 1 - RaceStatus.
func (m *Matcher) AvailableResources(ctx context.Context, deviceID string) (float64, error) {
	race, err := m.RaceStatus(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	return 1 - race, nil
}

// SupportedDevices returns the devices t's filter selects, ordered with devices
// matched through their property snapshots first, then devices matched on their
// static attributes, without duplicates. An empty filter selects every device.
// A filter that does not parse selects nothing.
func (m *Matcher) SupportedDevices(ctx context.Context, t *taskdomain.Task) ([]*devicedomain.DeviceInfo, error) {
	ctx, span := m.tracer.Start(ctx, "matcher.SupportedDevices", trace.WithAttributes(
		attribute.Int64("task.id", t.ID)))
	defer span.End()

	src := strings.TrimSpace(t.Filter)
	if src == "" {
		return m.allDevices(ctx)
	}
	expr, ok := m.parse(ctx, t, src)
	if !ok {
		return nil, nil
	}
	span.SetAttributes(attribute.String("task.filter", expr.String()))

	byProperties, err := m.properties.DevicesMatching(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("match properties: %w", err)
	}
	byInfo, err := m.devices.FindByFilter(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("match devices: %w", err)
	}

	seen := make(map[string]struct{}, len(byProperties)+len(byInfo))
	var out []*devicedomain.DeviceInfo
	for _, side := range [][]*devicedomain.DeviceInfo{byProperties, byInfo} {
		for _, d := range side {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	span.SetAttributes(attribute.Int("matcher.devices", len(out)))
	return out, nil
}

// MatchDevice reports whether t's filter selects deviceID.
func (m *Matcher) MatchDevice(ctx context.Context, t *taskdomain.Task, deviceID string) (bool, error) {
	if strings.TrimSpace(t.Filter) == "" {
		return true, nil
	}
	devices, err := m.SupportedDevices(ctx, t)
	if err != nil {
		return false, err
	}
	for _, d := range devices {
		if d.ID == deviceID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) allDevices(ctx context.Context) ([]*devicedomain.DeviceInfo, error) {
	var all []*devicedomain.DeviceInfo
	cursor := ""
	for {
		page, next, err := m.devices.List(ctx, devicerepo.ListQuery{Cursor: cursor, Limit: pagination.DefaultLimit})
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// parse returns the cached predicate for src, parsing it on a miss. Failures are
// logged and reported as ok == false.
func (m *Matcher) parse(ctx context.Context, t *taskdomain.Task, src string) (filter.Expr, bool) {
	if item := m.filters.Get(src); item != nil {
		return item.Value(), true
	}
	expr, err := filter.Parse(src)
	if err != nil {
		m.logger.WarnContext(ctx, "cannot parse task filter", "task_id", t.ID, "filter", src, "error", err)
		telemetry.EmitAsync(ctx, m.emitter, &telemetrydomain.Event{
			Type:       telemetrydomain.EventFilterRejected,
			Source:     "matcher",
			Detail:     err.Error(),
			Attributes: map[string]string{"task_id": fmt.Sprint(t.ID), "filter": src},
			CreatedAt:  m.clock.Now().UTC(),
		}, m.logger)
		return nil, false
	}
	m.filters.Set(src, expr, m.filterTTL)
	return expr, true
}
