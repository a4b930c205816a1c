package stream

import (
	"errors"
	"fmt"
)

// Sentinel errors for protocol ordering violations.
var (
	// ErrTerminated indicates an emission after the terminal event.
	ErrTerminated = errors.New("stream already terminated")

	// ErrOutOfOrder indicates an event that violates the ordering grammar.
	ErrOutOfOrder = errors.New("event out of order")
)

// Sequence enforces the per-generation ordering grammar:
//
//	sources_retrieved? generation_start (content_chunk | citation)* (generation_complete | error)
//
// error may terminate the stream at any point, including before
// generation_start (retrieval failures). The zero value is ready to use.
// Sequence is not safe for concurrent use; callers serialize emissions.
type Sequence struct {
	sourced  bool
	started  bool
	terminal bool
}

// Check validates that t may be emitted next and advances the state.
func (s *Sequence) Check(t Type) error {
	if s.terminal {
		return fmt.Errorf("%w: rejecting %q", ErrTerminated, t)
	}

	switch t {
	case TypeHeartbeat:
		// Allowed anywhere before the terminal event, no state change.
		return nil

	case TypeSourcesRetrieved:
		if s.sourced || s.started {
			return fmt.Errorf("%w: %q after stream began", ErrOutOfOrder, t)
		}
		s.sourced = true
		return nil

	case TypeGenerationStart:
		if s.started {
			return fmt.Errorf("%w: duplicate %q", ErrOutOfOrder, t)
		}
		s.started = true
		return nil

	case TypeContentChunk, TypeCitation:
		if !s.started {
			return fmt.Errorf("%w: %q before generation_start", ErrOutOfOrder, t)
		}
		return nil

	case TypeGenerationComplete:
		if !s.started {
			return fmt.Errorf("%w: %q before generation_start", ErrOutOfOrder, t)
		}
		s.terminal = true
		return nil

	case TypeError:
		s.terminal = true
		return nil

	default:
		return fmt.Errorf("%w: unknown event type %q", ErrOutOfOrder, t)
	}
}

// Terminal reports whether the terminal event has been emitted.
func (s *Sequence) Terminal() bool {
	return s.terminal
}

// Validate replays a recorded event trace against the grammar and reports
// the first violation. A trace may be incomplete (no terminal event yet);
// use Terminal on the returned state to check completion.
func Validate(trace []Type) (Sequence, error) {
	var s Sequence
	for i, t := range trace {
		if err := s.Check(t); err != nil {
			return s, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return s, nil
}
