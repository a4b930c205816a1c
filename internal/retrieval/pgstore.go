package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrEmptyEmbedding indicates the embedder returned no vector for the query.
var ErrEmptyEmbedding = errors.New("empty embedding")

// PGStore implements Retriever over a PostgreSQL chunks table with a
// pgvector embedding column. Queries are embedded with the configured
// Genkit embedder and matched by cosine distance.
//
// PGStore is safe for concurrent use by multiple goroutines.
type PGStore struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewPGStore creates a PGStore. logger may be nil.
func NewPGStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, embedder: embedder, logger: logger}
}

const searchQuery = `
SELECT id, content, document_id, document_name,
       COALESCE(page, 0), COALESCE(section, ''),
       1 - (embedding <=> $1) AS similarity
FROM chunks
WHERE kb_id = $2
ORDER BY embedding <=> $1
LIMIT $3`

// Retrieve embeds the query and returns the topK most similar chunks.
func (s *PGStore) Retrieve(ctx context.Context, kbID, query string, topK int) ([]Chunk, error) {
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx, searchQuery, vec, kbID, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows, true)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("retrieved chunks", "kb_id", kbID, "count", len(chunks), "top_k", topK)
	return chunks, nil
}

const byIDQuery = `
SELECT id, content, document_id, document_name,
       COALESCE(page, 0), COALESCE(section, '')
FROM chunks
WHERE kb_id = $1 AND id = ANY($2)`

// ChunksByID loads the given chunk IDs, preserving the caller's order.
func (s *PGStore) ChunksByID(ctx context.Context, kbID string, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, byIDQuery, kbID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading chunks by id: %w", err)
	}
	defer rows.Close()

	found, err := scanChunks(rows, false)
	if err != nil {
		return nil, err
	}

	// Re-order to match the request; the DB gives no ordering guarantee.
	byID := make(map[string]Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	ordered := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}

	s.logger.Debug("loaded selected chunks", "kb_id", kbID, "requested", len(ids), "found", len(ordered))
	return ordered, nil
}

// embedQuery generates the query embedding via the configured embedder.
func (s *PGStore) embedQuery(ctx context.Context, query string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(query)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	vec := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &vec, nil
}

// scanChunks reads chunk rows, optionally including the similarity column.
func scanChunks(rows pgx.Rows, withSimilarity bool) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var err error
		if withSimilarity {
			err = rows.Scan(&c.ID, &c.Text, &c.DocumentID, &c.DocumentName, &c.Page, &c.Section, &c.Similarity)
		} else {
			err = rows.Scan(&c.ID, &c.Text, &c.DocumentID, &c.DocumentName, &c.Page, &c.Section)
		}
		if err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}
	return chunks, nil
}
