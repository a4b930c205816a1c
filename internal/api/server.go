// Package api exposes the generation engine over HTTP: SSE streaming
// endpoints, conversation history CRUD, and health probes, behind a
// middleware stack for recovery, request IDs, logging, CORS, and per-IP
// rate limiting.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/generate"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Orchestrator *generate.Orchestrator // Required
	Store        conversation.Store     // Required
	Pool         *pgxpool.Pool          // Optional: nil disables postgres check in /ready
	Redis        *redis.Client          // Optional: nil disables redis check in /ready
	CORSOrigins  []string               // Allowed origins for CORS
	TrustProxy   bool                   // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst    int                    // Rate limiter burst size per IP (0 = default)
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gh := &generateHandler{orch: cfg.Orchestrator, logger: logger}
	ch := &conversationHandler{store: cfg.Store, logger: logger}

	mux := http.NewServeMux()

	// Generation
	mux.HandleFunc("POST /api/v1/generate", gh.generate)
	mux.HandleFunc("POST /api/v1/chat", gh.chat)

	// Conversation history
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", ch.messages)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", ch.clear)

	rl := newIPLimiter(cfg.RateBurst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, cfg.Redis))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
