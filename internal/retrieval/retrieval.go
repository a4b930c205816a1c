// Package retrieval defines the chunk retrieval contract and its
// PostgreSQL + pgvector implementation.
//
// Document ingestion, chunking, and embedding are owned by a separate
// pipeline; this package only reads the resulting chunks table.
package retrieval

import "context"

// Chunk is a retrieved unit of source text with document provenance metadata.
type Chunk struct {
	ID           string
	Text         string
	DocumentID   string
	DocumentName string
	Page         int    // 0 = unknown
	Section      string // empty = unknown
	Similarity   float64
}

// Retriever finds relevant chunks in a knowledge base.
// Consumers treat vector search as a black box behind this interface.
type Retriever interface {
	// Retrieve returns the topK chunks most similar to query within the
	// knowledge base. An empty result is not an error.
	Retrieve(ctx context.Context, kbID, query string, topK int) ([]Chunk, error)

	// ChunksByID loads specific chunks by ID, preserving the given order.
	// Unknown IDs are skipped silently.
	ChunksByID(ctx context.Context, kbID string, ids []string) ([]Chunk, error)
}
