package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// chunkSchema mirrors the production chunks table. The embedding dimension
// is small so tests can write vectors by hand.
const chunkSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE chunks (
    id            TEXT PRIMARY KEY,
    kb_id         TEXT NOT NULL,
    document_id   TEXT NOT NULL,
    document_name TEXT NOT NULL,
    content       TEXT NOT NULL,
    page          INT,
    section       TEXT,
    embedding     vector(3) NOT NULL
);

CREATE INDEX chunks_kb_id_idx ON chunks (kb_id);
`

// StartPostgres launches a pgvector-enabled PostgreSQL container, applies
// the chunks schema, and returns a connected pool. Container and pool are
// terminated via t.Cleanup.
//
// Requires a running Docker daemon; callers should gate on testing.Short.
func StartPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("citedraft_test"),
		postgres.WithUsername("citedraft"),
		postgres.WithPassword("citedraft"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("creating connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pinging postgres: %v", err)
	}
	if _, err := pool.Exec(ctx, chunkSchema); err != nil {
		t.Fatalf("applying chunks schema: %v", err)
	}

	return pool
}
