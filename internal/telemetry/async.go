package telemetry

import (
	"context"
	"log/slog"
	"time"

	"mobiperf/backend/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long a binary should wait before shutting down OTel
// providers so in-flight async emits can complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Errors are logged to logger (slog.Default when nil).
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() so query cancellation does not abort the emit.
func EmitAsync(ctx context.Context, emitter EventEmitter, event *domain.Event, logger *slog.Logger) {
	if emitter == nil || event == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logger.Warn("telemetry: async emit failed", "event_type", event.Type, "error", err)
		}
	}()
}
