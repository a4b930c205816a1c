package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrNoFlusher indicates the response writer cannot stream.
var ErrNoFlusher = errors.New("response writer does not support flushing")

// SSEEmitter writes protocol events to an http.ResponseWriter as
// Server-Sent Events. Each event is one "data:" block whose payload is the
// event's JSON encoding, terminated by a blank line and flushed immediately.
//
// Emissions are validated against the ordering grammar and serialized by a
// mutex so the heartbeat timer can share the emitter with the token loop.
type SSEEmitter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	seq     Sequence
	last    time.Time
}

// NewSSEEmitter wraps w for SSE streaming and sets the response headers.
func NewSSEEmitter(w http.ResponseWriter) (*SSEEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &SSEEmitter{w: w, flusher: flusher, last: time.Now()}, nil
}

// Emit validates, encodes, writes, and flushes one event.
// Returns ErrTerminated or ErrOutOfOrder on protocol violations and the
// underlying write error when the client has gone away.
func (e *SSEEmitter) Emit(ctx context.Context, ev Event) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context canceled: %w", ctx.Err())
	default:
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.seq.Check(ev.Kind()); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %q: %w", ev.Kind(), err)
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event %q: %w", ev.Kind(), err)
	}
	e.flusher.Flush()
	e.last = time.Now()
	return nil
}

// LastEvent returns when the most recent event was written.
func (e *SSEEmitter) LastEvent() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Terminal reports whether the terminal event has been emitted.
func (e *SSEEmitter) Terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq.Terminal()
}
