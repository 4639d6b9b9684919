// Package api serves snapshot metadata over HTTP. It is a read-only
// projection of the registry: listings and per-batch metadata, nothing else.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zenrollup/snapshotter/pkg/metrics"
	"github.com/zenrollup/snapshotter/pkg/registry"
)

var (
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
	ErrInvalidRegistry = errors.New("invalid registry: must not be nil")
)

// Server is the snapshots HTTP API.
type Server struct {
	registry   registry.Registry
	log        *zap.SugaredLogger
	metrics    *metrics.Metrics // optional
	httpServer *http.Server
}

// NewServer creates the API server. m may be nil to disable request metrics.
func NewServer(reg registry.Registry, cfg Config, log *zap.SugaredLogger, m *metrics.Metrics) (*Server, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if reg == nil {
		return nil, ErrInvalidRegistry
	}

	s := &Server{
		registry: reg,
		log:      log,
		metrics:  m,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routed handler, exposed separately so tests can drive
// it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshots", s.instrument("/snapshots", s.handleListSnapshots))
	mux.HandleFunc("GET /snapshots/{l1BatchNumber}", s.instrument("/snapshots/{l1BatchNumber}", s.handleGetSnapshot))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck // best-effort health response
	})
	return mux
}

// Start begins serving. This is non-blocking.
// Returns a channel that receives an error if the server fails.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("snapshots api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete or until the context is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with request logging and metrics, keyed by the
// route pattern rather than the raw path to keep label cardinality bounded.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RecordAPIRequest(route, rec.status, elapsed.Seconds())
		}
		s.log.Debugw("api request",
			"route", route,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	}
}
