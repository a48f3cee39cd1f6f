// Package server implements the HTTP API: upload PDFs, ask questions and
// clear the document store. The server is started by the `docrag serve`
// CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// defaultMaxUploadBytes caps /upload bodies when no explicit limit is set.
const defaultMaxUploadBytes = 50 << 20

// New constructs a Server from the provided dependencies and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if deps.Ingester == nil {
		return nil, fmt.Errorf("server: ingester must not be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		engine:   deps.Engine,
		ingester: deps.Ingester,
		store:    deps.Store,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: DOCRAG_API_KEY not set, /upload /query /clear are unauthenticated")
	}

	rl, stop := newRateLimiter(cfg.RateLimits, s.log)
	s.stopRL = stop

	// protect applies auth then the route's per-IP limit.
	protect := func(route string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(route, h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("POST /upload", protect(routeUpload, s.handleUpload))
	mux.Handle("POST /query", protect(routeQuery, s.handleQuery))
	mux.Handle("POST /clear", protect(routeClear, s.handleClear))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = s.metricsMiddleware(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(handler)
	handler = requestLogger(s.log, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler. Used by tests and by
// callers embedding the API in another server.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
