package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/citedraft/citedraft/internal/stream"
)

// Recorder captures emitted events in order. It validates the protocol
// grammar the same way the SSE emitter does, so orchestrator tests fail on
// ordering violations without an HTTP layer.
//
// Thread-safe; implements stream.PulseEmitter so heartbeat paths are
// exercised too.
type Recorder struct {
	mu     sync.Mutex
	seq    stream.Sequence
	events []stream.Event
	last   time.Time
	errAt  int // event index to fail at, -1 = never
	err    error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{last: time.Now(), errAt: -1}
}

// FailAt makes the recorder return err on the emit with the given index,
// simulating a client that disconnects mid-stream.
func (r *Recorder) FailAt(i int, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errAt = i
	r.err = err
	return r
}

// Emit records the event after sequence validation.
func (r *Recorder) Emit(ctx context.Context, ev stream.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errAt >= 0 && len(r.events) == r.errAt {
		return r.err
	}
	if err := r.seq.Check(ev.Kind()); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	r.last = time.Now()
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []stream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stream.Event(nil), r.events...)
}

// Types returns the recorded event type trace.
func (r *Recorder) Types() []stream.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]stream.Type, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Kind()
	}
	return types
}

// LastEvent returns when the most recent event was recorded.
func (r *Recorder) LastEvent() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Terminal reports whether a terminal event has been recorded.
func (r *Recorder) Terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq.Terminal()
}
