package testutil

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// StubEmbedder implements ai.Embedder with hand-assigned vectors, so tests
// control exact cosine similarity between inputs without a model call.
type StubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
}

// NewStubEmbedder creates a StubEmbedder that returns fallback for any text
// without an explicit vector. An empty fallback exercises the
// empty-embedding error path.
func NewStubEmbedder(fallback ...float32) *StubEmbedder {
	return &StubEmbedder{
		vectors:  make(map[string][]float32),
		fallback: fallback,
	}
}

// SetVector assigns the vector returned for exactly this text.
func (e *StubEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// FailWith makes every Embed call return err.
func (e *StubEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Embed implements ai.Embedder.
func (e *StubEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		vec, ok := e.vectors[text]
		if !ok {
			vec = e.fallback
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// Name implements ai.Embedder.
func (e *StubEmbedder) Name() string { return "stub/embedder" }

// Register implements ai.Embedder.
func (e *StubEmbedder) Register(api.Registry) {}
