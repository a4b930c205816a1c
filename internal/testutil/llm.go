package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/citedraft/citedraft/internal/llm"
)

// ScriptedStreamer is a deterministic language model double. It replays a
// fixed chunk script through the token callback, which makes chunk-boundary
// behavior (markers split across chunks, cancellation mid-stream)
// reproducible in tests.
//
// Thread-safe for concurrent use; each Stream call replays the same script.
type ScriptedStreamer struct {
	mu      sync.Mutex
	chunks  []string
	err     error // returned after the script finishes
	failAt  int   // chunk index to fail before, -1 = never
	prompts []string
}

// NewScriptedStreamer creates a streamer that emits the given chunks in
// order and then returns successfully.
func NewScriptedStreamer(chunks ...string) *ScriptedStreamer {
	return &ScriptedStreamer{chunks: chunks, failAt: -1}
}

// FailWith makes the streamer return err after emitting all chunks.
func (s *ScriptedStreamer) FailWith(err error) *ScriptedStreamer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// FailAt makes the streamer return err instead of emitting chunk index i.
func (s *ScriptedStreamer) FailAt(i int, err error) *ScriptedStreamer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = i
	s.err = err
	return s
}

// Prompts returns a copy of every rendered prompt seen so far.
func (s *ScriptedStreamer) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(s.prompts))
	copy(cp, s.prompts)
	return cp
}

// Stream replays the script. Token callback errors propagate immediately,
// mirroring how a real streaming backend aborts on callback failure.
func (s *ScriptedStreamer) Stream(ctx context.Context, rendered string, onToken llm.TokenFunc) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, rendered)
	chunks := s.chunks
	failAt := s.failAt
	scriptErr := s.err
	s.mu.Unlock()

	var full strings.Builder
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if failAt >= 0 && i == failAt {
			return "", scriptErr
		}
		if onToken != nil {
			if err := onToken(ctx, chunk); err != nil {
				return "", err
			}
		}
		full.WriteString(chunk)
	}

	if failAt < 0 && scriptErr != nil {
		return "", scriptErr
	}
	return full.String(), nil
}

// BlockingStreamer emits its chunks and then blocks until its context is
// canceled, for timeout and disconnect tests.
type BlockingStreamer struct {
	Chunks []string

	// Emitted is closed after the last chunk has been delivered.
	Emitted chan struct{}
}

// NewBlockingStreamer creates a BlockingStreamer.
func NewBlockingStreamer(chunks ...string) *BlockingStreamer {
	return &BlockingStreamer{Chunks: chunks, Emitted: make(chan struct{})}
}

// Stream delivers the chunks, signals Emitted, then waits for cancellation.
func (s *BlockingStreamer) Stream(ctx context.Context, _ string, onToken llm.TokenFunc) (string, error) {
	for _, chunk := range s.Chunks {
		if onToken != nil {
			if err := onToken(ctx, chunk); err != nil {
				return "", err
			}
		}
	}
	close(s.Emitted)
	<-ctx.Done()
	return "", ctx.Err()
}
