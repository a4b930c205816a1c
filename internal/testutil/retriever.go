package testutil

import (
	"context"
	"sync"

	"github.com/citedraft/citedraft/internal/retrieval"
)

// StubRetriever returns a fixed chunk set for any query. It records calls
// so tests can assert on the query and topK actually used.
//
// Thread-safe for concurrent use.
type StubRetriever struct {
	mu     sync.Mutex
	chunks []retrieval.Chunk
	err    error
	calls  []RetrieveCall
}

// RetrieveCall records one Retrieve or ChunksByID invocation.
type RetrieveCall struct {
	KBID  string
	Query string   // empty for ChunksByID
	IDs   []string // nil for Retrieve
	TopK  int
}

// NewStubRetriever creates a retriever serving the given chunks.
func NewStubRetriever(chunks ...retrieval.Chunk) *StubRetriever {
	return &StubRetriever{chunks: chunks}
}

// FailWith makes every call return err.
func (r *StubRetriever) FailWith(err error) *StubRetriever {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	return r
}

// Calls returns a copy of all recorded calls.
func (r *StubRetriever) Calls() []RetrieveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]RetrieveCall, len(r.calls))
	copy(cp, r.calls)
	return cp
}

// Retrieve returns up to topK of the stubbed chunks.
func (r *StubRetriever) Retrieve(_ context.Context, kbID, query string, topK int) ([]retrieval.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, RetrieveCall{KBID: kbID, Query: query, TopK: topK})
	if r.err != nil {
		return nil, r.err
	}
	if topK > 0 && topK < len(r.chunks) {
		return append([]retrieval.Chunk(nil), r.chunks[:topK]...), nil
	}
	return append([]retrieval.Chunk(nil), r.chunks...), nil
}

// ChunksByID returns the stubbed chunks whose IDs are requested, in request
// order.
func (r *StubRetriever) ChunksByID(_ context.Context, kbID string, ids []string) ([]retrieval.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, RetrieveCall{KBID: kbID, IDs: append([]string(nil), ids...)})
	if r.err != nil {
		return nil, r.err
	}

	byID := make(map[string]retrieval.Chunk, len(r.chunks))
	for _, c := range r.chunks {
		byID[c.ID] = c
	}
	var out []retrieval.Chunk
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Chunks builds a small numbered chunk set for tests. Chunk i is named
// "doc-i" with similarity descending from 0.9.
func Chunks(n int) []retrieval.Chunk {
	out := make([]retrieval.Chunk, n)
	for i := range out {
		out[i] = retrieval.Chunk{
			ID:           chunkID(i),
			Text:         "Reference text for source " + chunkID(i) + ".",
			DocumentID:   "doc-" + chunkID(i),
			DocumentName: "Document " + chunkID(i),
			Page:         i + 1,
			Similarity:   0.9 - 0.1*float64(i),
		}
	}
	return out
}

func chunkID(i int) string {
	return string(rune('a' + i))
}
