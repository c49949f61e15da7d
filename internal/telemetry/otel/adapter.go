package otel

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"mobiperf/backend/internal/telemetry"
	"mobiperf/backend/internal/telemetry/domain"
)

const instrumentationName = "mobiperf.telemetry"

// RecordEmitter is the subset of otellog.Logger used by the emitter.
type RecordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the event to an OTel log record and emits it. Empty fields are omitted.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if event.Detail != "" {
		rec.SetBody(otellog.StringValue(event.Detail))
	}
	rec.SetSeverity(severity(event.Type))
	addString(&rec, "event_type", event.Type)
	addString(&rec, "source", event.Source)
	addString(&rec, "user_id", event.UserID)
	addString(&rec, "device_id", event.DeviceID)

	keys := make([]string, 0, len(event.Attributes))
	for k := range event.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		addString(&rec, k, event.Attributes[k])
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func addString(rec *otellog.Record, key, value string) {
	if value != "" {
		rec.AddAttributes(otellog.String(key, value))
	}
}

func severity(eventType string) otellog.Severity {
	switch eventType {
	case domain.EventAccessDenied, domain.EventFilterRejected:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
