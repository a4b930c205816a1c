package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/citedraft/citedraft/internal/api"
	"github.com/citedraft/citedraft/internal/config"
	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/generate"
	"github.com/citedraft/citedraft/internal/llm"
	"github.com/citedraft/citedraft/internal/log"
	"github.com/citedraft/citedraft/internal/prompt"
	"github.com/citedraft/citedraft/internal/retrieval"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	rdb, err := provideRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	a.Retriever = retrieval.NewPGStore(pool, embedder, logger.With("component", "retrieval"))
	a.Store = provideConversationStore(rdb, cfg, logger)

	orch, err := generate.New(generate.Config{
		Retriever: a.Retriever,
		Builder: prompt.NewBuilder(prompt.Budget{
			Total:           cfg.TotalBudget,
			ResponseReserve: cfg.ResponseReserve,
			SystemReserve:   cfg.SystemReserve,
		}, logger.With("component", "prompt")),
		Store:             a.Store,
		LLM:               llm.NewGenkitStreamer(g, cfg.ModelName, logger.With("component", "llm")),
		Logger:            logger.With("component", "orchestrator"),
		TopK:              cfg.TopK,
		StreamTimeout:     cfg.StreamTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orch

	srv, err := api.NewServer(api.ServerConfig{
		Logger:       logger.With("component", "api"),
		Orchestrator: orch,
		Store:        a.Store,
		Pool:         pool,
		Redis:        rdb,
		CORSOrigins:  cfg.CORSOrigins,
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating api server: %w", err)
	}

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE streams stay open for the full generation.
	}

	return a, nil
}

// provideDBPool creates the PostgreSQL connection pool for the chunk store.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideRedis creates the Redis client for conversation history.
// A Redis that is configured but unreachable at startup fails fast; better
// to crash-loop than silently serve without history.
func provideRedis(ctx context.Context, cfg *config.Config, logger log.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	logger.Debug("redis connected", "addr", opts.Addr)
	return client, nil
}

// provideGenkit initializes Genkit with the Gemini provider and looks up
// the configured embedder.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, errors.New("initializing genkit with gemini provider")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	logger.Info("initialized Genkit with gemini provider",
		"model", cfg.ModelName, "embedder", cfg.EmbedderModel)
	return g, embedder, nil
}

// provideConversationStore creates the Redis-backed conversation store.
func provideConversationStore(rdb *redis.Client, cfg *config.Config, logger log.Logger) conversation.Store {
	return conversation.NewRedisStore(rdb, cfg.HistoryTTL, logger.With("component", "conversation"))
}
