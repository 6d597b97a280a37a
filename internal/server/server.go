// Package server assembles the admin HTTP surface: routing, authentication,
// request IDs, security headers, rate limiting, request logging, and metrics
// around the api.Handler endpoints.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"emberlive/internal/api"
	"emberlive/internal/observability/logging"
	"emberlive/internal/observability/metrics"
)

// Config controls the assembled handler.
type Config struct {
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Tokens    *api.TokenVerifier
	RateLimit RateLimitConfig
	Security  SecurityConfig
}

// New builds the complete admin handler. Health and metrics stay
// unauthenticated for probes and scrapes; everything under /api requires a
// token when a verifier is configured.
func New(handler *api.Handler, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/vhosts", handler.VHosts)
	apiMux.HandleFunc("/api/resolve", handler.Resolve)
	apiMux.HandleFunc("/api/pulls", handler.Pulls)
	apiMux.HandleFunc("/api/streams", handler.StreamEvents)
	apiMux.HandleFunc("/api/originmap", handler.OriginMap)
	apiMux.HandleFunc("/api/events", handler.Events)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/api/", api.RequireToken(cfg.Tokens, apiMux))

	var root http.Handler = mux
	root = logging.RequestLogger(logger, root)
	root = metrics.HTTPMiddleware(recorder, root)
	if limiter := newRateLimiter(cfg.RateLimit); limiter != nil {
		root = limiter.middleware(root)
	}
	root = requestIDMiddleware(root)
	root = securityHeaders(cfg.Security, root)
	return root
}

// NewHTTPServer wraps the handler in an http.Server with sane timeouts for
// a control-plane API.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
