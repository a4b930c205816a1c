package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PulseEmitter is what the heartbeater needs from an emitter. SSEEmitter
// implements it; plain recorders used in tests need not.
type PulseEmitter interface {
	Emitter
	LastEvent() time.Time
	Terminal() bool
}

// Heartbeater emits heartbeat events when the stream has been silent for
// the configured interval. It runs on its own timer and never blocks token
// emission; the emitter's mutex is the only shared state.
type Heartbeater struct {
	emitter  PulseEmitter
	interval time.Duration
	logger   *slog.Logger
}

// NewHeartbeater creates a Heartbeater. logger may be nil.
func NewHeartbeater(emitter PulseEmitter, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{emitter: emitter, interval: interval, logger: logger}
}

// Run watches the stream until ctx is canceled or the stream terminates.
// Call in a dedicated goroutine.
func (h *Heartbeater) Run(ctx context.Context) {
	// Poll at a fraction of the interval so a heartbeat lands close to the
	// silence threshold without a resettable timer.
	tick := h.interval / 4
	if tick < time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.emitter.Terminal() {
				return
			}
			if time.Since(h.emitter.LastEvent()) < h.interval {
				continue
			}
			if err := h.emitter.Emit(ctx, NewHeartbeat()); err != nil {
				if !errors.Is(err, ErrTerminated) && !errors.Is(err, context.Canceled) {
					h.logger.Debug("heartbeat emit failed", "error", err)
				}
				return
			}
		}
	}
}
