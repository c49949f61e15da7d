// Package acl is the access-controlled query layer. Every operation takes the
// calling principal explicitly and only returns devices, and data reported by
// devices, that the principal may see.
package acl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	devicedomain "mobiperf/backend/internal/device/domain"
	devicerepo "mobiperf/backend/internal/device/repository"
	measurementdomain "mobiperf/backend/internal/measurement/domain"
	measurementrepo "mobiperf/backend/internal/measurement/repository"
	"mobiperf/backend/internal/platform/pagination"
	"mobiperf/backend/internal/platform/rbac"
	"mobiperf/backend/internal/policy/engine"
	"mobiperf/backend/internal/principal"
	"mobiperf/backend/internal/telemetry"
	telemetrydomain "mobiperf/backend/internal/telemetry/domain"
	validationdomain "mobiperf/backend/internal/validation/domain"
)

const instrumentationName = "mobiperf/acl"

// DefaultFetchLimit bounds ListMeasurements when neither the query nor the
// service configuration supplies a limit.
const DefaultFetchLimit = 1000

// ErrAccessDenied is returned when the principal may not see the requested device
// or data. A device that does not exist is reported the same way.
var ErrAccessDenied = errors.New("acl: access denied")

// DeviceRepo is the minimal device repository needed by the service.
type DeviceRepo interface {
	GetByID(ctx context.Context, id string) (*devicedomain.DeviceInfo, error)
	List(ctx context.Context, q devicerepo.ListQuery) ([]*devicedomain.DeviceInfo, string, error)
}

// MeasurementRepo is the minimal measurement repository needed by the service.
type MeasurementRepo interface {
	ListByDevice(ctx context.Context, deviceID string, q measurementrepo.ListQuery) ([]*measurementdomain.Measurement, error)
}

// ValidationRepo is the minimal validation repository needed by the service.
type ValidationRepo interface {
	ListSummaries(ctx context.Context, measurementType string, since time.Time) ([]*validationdomain.ValidationSummary, error)
}

// MeasurementQuery selects measurements across the devices visible to a principal.
type MeasurementQuery struct {
	// Limit is the overall budget, split evenly across devices. Zero uses the
	// configured fetch limit.
	Limit int
	// DeviceID restricts the query to one device.
	DeviceID string
	// Start and End are inclusive bounds on the measurement timestamp.
	Start *time.Time
	End   *time.Time
	// ExcludeErrors drops failed measurements; nil means true.
	ExcludeErrors *bool
}

func (q MeasurementQuery) excludeErrors() bool {
	return q.ExcludeErrors == nil || *q.ExcludeErrors
}

// Service answers ACL-scoped queries.
type Service struct {
	devices      DeviceRepo
	measurements MeasurementRepo
	validations  ValidationRepo
	evaluator    engine.Evaluator
	emitter      telemetry.EventEmitter
	logger       *slog.Logger
	fetchLimit   int

	tracer trace.Tracer
	denied metric.Int64Counter
}

// NewService returns a Service with the given dependencies. evaluator may be nil,
// in which case the built-in rbac rule decides device visibility. emitter and
// logger may be nil. fetchLimit <= 0 uses DefaultFetchLimit.
func NewService(
	devices DeviceRepo,
	measurements MeasurementRepo,
	validations ValidationRepo,
	evaluator engine.Evaluator,
	emitter telemetry.EventEmitter,
	logger *slog.Logger,
	fetchLimit int,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "acl")
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	denied, err := otel.Meter(instrumentationName).Int64Counter("mobiperf.acl.access_denied",
		metric.WithDescription("Device access decisions that denied the caller"))
	if err != nil {
		logger.Warn("create access_denied counter", "error", err)
		denied = noop.Int64Counter{}
	}
	return &Service{
		devices:      devices,
		measurements: measurements,
		validations:  validations,
		evaluator:    evaluator,
		emitter:      emitter,
		logger:       logger,
		fetchLimit:   fetchLimit,
		tracer:       otel.Tracer(instrumentationName),
		denied:       denied,
	}
}

// ListDevices returns one page of the devices visible to who, ordered by id.
// Administrators list every device; everyone else lists what they own.
func (s *Service) ListDevices(ctx context.Context, who principal.Principal, cursor string, limit int) ([]*devicedomain.DeviceInfo, string, error) {
	ctx, span := s.tracer.Start(ctx, "acl.ListDevices", trace.WithAttributes(principalAttrs(who)...))
	defer span.End()

	q := devicerepo.ListQuery{Cursor: cursor, Limit: limit}
	if !who.IsAdministrator() {
		if who.UserID == "" {
			return nil, "", nil
		}
		owner := who.UserID
		q.OwnerID = &owner
	}
	page, next, err := s.devices.List(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list devices")
		return nil, "", fmt.Errorf("list devices: %w", err)
	}
	span.SetAttributes(attribute.Int("acl.devices", len(page)))
	return page, next, nil
}

// GetDevice returns device id when who may see it, otherwise ErrAccessDenied.
func (s *Service) GetDevice(ctx context.Context, who principal.Principal, id string) (*devicedomain.DeviceInfo, error) {
	ctx, span := s.tracer.Start(ctx, "acl.GetDevice", trace.WithAttributes(
		append(principalAttrs(who), attribute.String("device.id", id))...))
	defer span.End()

	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get device")
		return nil, fmt.Errorf("get device: %w", err)
	}
	allowed, err := s.canAccess(ctx, who, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate access")
		return nil, err
	}
	if !allowed {
		s.deny(ctx, who, id, "GetDevice")
		return nil, ErrAccessDenied
	}
	return d, nil
}

func (s *Service) canAccess(ctx context.Context, who principal.Principal, d *devicedomain.DeviceInfo) (bool, error) {
	if d == nil {
		return false, nil
	}
	if s.evaluator == nil {
		return rbac.CanAccessDevice(who, d), nil
	}
	allowed, err := s.evaluator.CanAccessDevice(ctx, who, d)
	if err != nil {
		return false, fmt.Errorf("evaluate device access: %w", err)
	}
	return allowed, nil
}

// visibleDevices returns every device ListDevices would page through for who.
func (s *Service) visibleDevices(ctx context.Context, who principal.Principal) ([]*devicedomain.DeviceInfo, error) {
	var all []*devicedomain.DeviceInfo
	cursor := ""
	for {
		page, next, err := s.ListDevices(ctx, who, cursor, pagination.DefaultLimit)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// ListMeasurements returns measurements of the devices visible to who. Each device
// contributes at most PerDeviceLimit(limit, devices) results, newest first, and the
// per-device slices are concatenated in device order.
func (s *Service) ListMeasurements(ctx context.Context, who principal.Principal, q MeasurementQuery) ([]*measurementdomain.Measurement, error) {
	ctx, span := s.tracer.Start(ctx, "acl.ListMeasurements", trace.WithAttributes(principalAttrs(who)...))
	defer span.End()

	limit := q.Limit
	if limit <= 0 {
		limit = s.fetchLimit
	}

	var devices []*devicedomain.DeviceInfo
	if q.DeviceID != "" {
		d, err := s.GetDevice(ctx, who, q.DeviceID)
		if errors.Is(err, ErrAccessDenied) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		devices = []*devicedomain.DeviceInfo{d}
	} else {
		var err error
		if devices, err = s.visibleDevices(ctx, who); err != nil {
			return nil, err
		}
	}
	if len(devices) == 0 {
		return nil, nil
	}

	per := PerDeviceLimit(limit, len(devices))
	span.SetAttributes(attribute.Int("acl.devices", len(devices)), attribute.Int("acl.per_device_limit", per))
	lq := measurementrepo.ListQuery{
		Limit:       per,
		SuccessOnly: q.excludeErrors(),
		Start:       q.Start,
		End:         q.End,
	}
	var out []*measurementdomain.Measurement
	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ms, err := s.measurements.ListByDevice(ctx, d.ID, lq)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list measurements")
			return nil, fmt.Errorf("list measurements for device %s: %w", d.ID, err)
		}
		out = append(out, ms...)
	}
	return out, nil
}

// PerDeviceLimit splits limit across n devices, rounding up so the total budget is
// never under-filled: n * PerDeviceLimit(limit, n) is between limit and limit+n-1.
// Each device gets at least one result.
func PerDeviceLimit(limit, n int) int {
	if n <= 0 {
		return limit
	}
	per := (limit + n - 1) / n
	if per < 1 {
		per = 1
	}
	return per
}

// ValidationSummaries returns validation summaries of measurementType ending at or
// after since. Only administrators may read them.
func (s *Service) ValidationSummaries(ctx context.Context, who principal.Principal, measurementType string, since time.Time) ([]*validationdomain.ValidationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "acl.ValidationSummaries", trace.WithAttributes(
		append(principalAttrs(who), attribute.String("measurement.type", measurementType))...))
	defer span.End()

	if err := rbac.RequireAdmin(who); err != nil {
		s.deny(ctx, who, "", "ValidationSummaries")
		return nil, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	summaries, err := s.validations.ListSummaries(ctx, measurementType, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list validation summaries")
		return nil, fmt.Errorf("list validation summaries: %w", err)
	}
	return summaries, nil
}

func (s *Service) deny(ctx context.Context, who principal.Principal, deviceID, operation string) {
	s.denied.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	s.logger.InfoContext(ctx, "access denied", "operation", operation, "user_id", who.UserID, "device_id", deviceID)
	telemetry.EmitAsync(ctx, s.emitter, &telemetrydomain.Event{
		Type:       telemetrydomain.EventAccessDenied,
		Source:     "acl",
		UserID:     who.UserID,
		DeviceID:   deviceID,
		Attributes: map[string]string{"operation": operation},
		CreatedAt:  time.Now().UTC(),
	}, s.logger)
}

func principalAttrs(who principal.Principal) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("principal.user_id", who.UserID),
		attribute.Bool("principal.admin", who.Admin),
		attribute.Bool("principal.anonymous_admin", who.AnonymousAdmin),
	}
}
