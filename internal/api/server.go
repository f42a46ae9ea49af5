// Package api exposes the chat service over HTTP: the streaming chat
// and regenerate endpoints plus health and version probes, behind a
// recovery/request-id/logging/CORS/rate-limit middleware stack.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/baronchat/baron/internal/log"
)

// Version is the service version reported by GET /version.
const Version = "0.1.0"

// Config contains configuration for creating the API server.
type Config struct {
	Logger log.Logger
	Engine Engine      // Required
	Models ModelSource // Required

	Messages   Messages
	TokenLimit int

	CORSOrigins []string
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
	MaxRetries  int           // Turn retries after transport failure
	RetryDelay  time.Duration // Delay between turn retries
}

// Server is the HTTP server for the chat service.
type Server struct {
	handler http.Handler
}

// NewServer creates a server with all routes and middleware configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Models == nil {
		return nil, errors.New("model source is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	ch := &chatHandler{
		engine:     cfg.Engine,
		models:     cfg.Models,
		messages:   cfg.Messages,
		tokenLimit: cfg.TokenLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", ch.send)
	mux.HandleFunc("POST /regenerate", ch.regenerate)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"version": Version}, logger)
	})

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID precedes Logging so request_id is available in log
	// attributes; CORS precedes RateLimit so preflight OPTIONS gets
	// proper headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
