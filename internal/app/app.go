// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the generation engine: Genkit and the
// embedder, the PostgreSQL chunk store, the Redis conversation store, the
// orchestrator, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/citedraft/citedraft/internal/config"
	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/generate"
	"github.com/citedraft/citedraft/internal/log"
	"github.com/citedraft/citedraft/internal/retrieval"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Core services
	Genkit       *genkit.Genkit
	Embedder     ai.Embedder
	DBPool       *pgxpool.Pool
	Redis        *redis.Client
	Retriever    retrieval.Retriever
	Store        conversation.Store
	Orchestrator *generate.Orchestrator

	server *http.Server
}

// Close releases all resources. Safe to call after a failed Setup.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis client: %w", err))
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return errors.Join(errs...)
}

// Serve runs the HTTP server until ctx is canceled, then drains in-flight
// requests with a bounded shutdown window.
func (a *App) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Config.ListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Streams can legitimately run for the full stream timeout; give them
	// a little longer than that to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.StreamTimeout+5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
