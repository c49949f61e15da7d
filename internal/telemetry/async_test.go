package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mobiperf/backend/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	done    chan struct{}
}

func newMockEmitter(buffer int) *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, buffer)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.done <- struct{}{}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.emitErr
}

func (m *mockEventEmitter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	EmitAsync(context.Background(), nil, &domain.Event{Type: "test"}, nil)
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := newMockEmitter(1)
	EmitAsync(context.Background(), emitter, nil, nil)
	time.Sleep(10 * time.Millisecond)
	if got := len(emitter.getEvents()); got != 0 {
		t.Errorf("expected 0 events, got %d", got)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := newMockEmitter(1)
	EmitAsync(context.Background(), emitter, &domain.Event{
		Type:     domain.EventAccessDenied,
		UserID:   "alice",
		DeviceID: "d1",
	}, nil)
	emitter.wait(t, 1)

	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].UserID != "alice" || events[0].DeviceID != "d1" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestEmitAsync_DetachedFromCallerCancel(t *testing.T) {
	emitter := newMockEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(ctx, emitter, &domain.Event{Type: "test"}, nil)
	emitter.wait(t, 1)
	if got := len(emitter.getEvents()); got != 1 {
		t.Errorf("expected 1 event after caller cancel, got %d", got)
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := newMockEmitter(1)
	emitter.emitErr = errors.New("collector down")
	EmitAsync(context.Background(), emitter, &domain.Event{Type: "test"}, nil)
	emitter.wait(t, 1)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := newMockEmitter(10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(context.Background(), emitter, &domain.Event{Type: "test"}, nil)
		}()
	}
	wg.Wait()
	emitter.wait(t, 10)
	if got := len(emitter.getEvents()); got != 10 {
		t.Errorf("expected 10 events, got %d", got)
	}
}
