// Package api provides the JSON HTTP gateway for Sage.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unauthenticated.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — liveness
//   - GET /ready  — readiness (pings the database)
//
// Gateway:
//   - GET  /         — landing page
//   - POST /kbanswer — answer generated from the knowledge base
//   - POST /search   — raw source snippets retrieved for the query
//   - POST /answer   — conversational reply with session memory
//
// All POST endpoints accept {"message": "..."} and respond 200 with
// {"message": "..."}; pipeline and model failures are reported inside the
// body as fixed user-facing strings rather than as HTTP errors.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the gateway server.
type ServerConfig struct {
	Logger      *slog.Logger
	Pipeline    Answerer      // Required: nil-pipeline values still satisfy this
	Responder   Chatter       // Required
	Pool        *pgxpool.Pool // Optional: nil reports degraded in /ready
	Index       http.Handler  // Optional: landing page for GET /
	CORSOrigins []string      // Allowed origins for CORS
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the gateway HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a gateway server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Responder == nil {
		return nil, errors.New("responder is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gw := &gatewayHandler{
		pipeline:  cfg.Pipeline,
		responder: cfg.Responder,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /kbanswer", gw.kbAnswer)
	mux.HandleFunc("POST /search", gw.search)
	mux.HandleFunc("POST /answer", gw.answer)

	if cfg.Index != nil {
		mux.Handle("GET /{$}", cfg.Index)
	}

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newIPLimiter(1.0, burst)

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

	stack := handler
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		stack.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
