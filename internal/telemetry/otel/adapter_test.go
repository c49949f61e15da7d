package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"mobiperf/backend/internal/telemetry/domain"
)

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attributes(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), &domain.Event{Type: "x"}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	created := time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC)
	event := &domain.Event{
		Type:       domain.EventAccessDenied,
		Source:     "acl",
		UserID:     "bob",
		DeviceID:   "d1",
		Detail:     "GetDevice denied",
		Attributes: map[string]string{"operation": "GetDevice"},
		CreatedAt:  created,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec
	if got := rec.Body().AsString(); got != "GetDevice denied" {
		t.Errorf("body = %q", got)
	}
	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	if rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want warn", rec.Severity())
	}
	want := map[string]string{
		"event_type": "access_denied", "source": "acl", "user_id": "bob",
		"device_id": "d1", "operation": "GetDevice",
	}
	attrs := attributes(rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEmit_EmptyFieldsOmitted(t *testing.T) {
	cap := &recordCapture{}
	em := NewEventEmitterWithLogger(cap)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &domain.Event{Type: domain.EventTaskNotFound}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec
	if !rec.Body().Empty() {
		t.Error("body should be empty when detail is empty")
	}
	if rec.Timestamp().Before(before) {
		t.Errorf("timestamp = %v, want >= %v", rec.Timestamp(), before)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want info", rec.Severity())
	}
	attrs := attributes(rec)
	if len(attrs) != 1 || attrs["event_type"] != "task_not_found" {
		t.Errorf("attributes = %v", attrs)
	}
}
