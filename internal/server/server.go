// Package server exposes batch submission over HTTP. Outcomes are streamed
// back as newline-delimited JSON in completion order.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shineum/mailcode-lite/internal/batch"
	"github.com/shineum/mailcode-lite/internal/credential"
	"github.com/shineum/mailcode-lite/internal/pipeline"
	"github.com/shineum/mailcode-lite/internal/report"
)

// shutdownTimeout is the maximum time to wait for in-flight batches and
// summary reports during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// reportTimeout bounds a single summary delivery.
const reportTimeout = 2 * time.Minute

// Binder produces the per-credential function for a mode and type filter.
// *pipeline.Pipeline satisfies it.
type Binder interface {
	Bind(mode pipeline.Mode, types []string) func(context.Context, credential.Record) pipeline.Outcome
}

// Config holds the configuration for a Server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// TLSConfig enables HTTPS. If nil, the API is served in plain HTTP.
	TLSConfig *tls.Config

	// Pipeline runs one credential.
	Pipeline Binder

	// Reporter receives the summary of every finished batch.
	// If nil, summaries are only written to the response stream.
	Reporter report.Reporter

	// Defaults applied to requests that omit them.
	Mode            pipeline.Mode
	Types           []string
	Concurrency     int
	DefaultClientID string
}

// Server is the HTTP front end for batch runs.
type Server struct {
	config Config

	mu       sync.Mutex // guards listener
	listener net.Listener

	// reports tracks summary deliveries still running after their
	// response has completed.
	reports sync.WaitGroup
}

// New creates a new Server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Mode == "" {
		cfg.Mode = pipeline.ModeFetchCode
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = batch.DefaultConcurrency
	}
	if cfg.Reporter == nil {
		cfg.Reporter = report.Nop{}
	}
	return &Server{config: cfg}
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", s.handleBatch)
	})

	return r
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. On cancellation it stops accepting connections and waits up
// to 30 seconds for in-flight batches and pending reports.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.config.TLSConfig,
	}

	slog.Info("HTTP server listening",
		"addr", ln.Addr().String(),
		"reporter", s.config.Reporter.Name(),
		"tls_enabled", s.config.TLSConfig != nil,
		"default_mode", s.config.Mode,
		"default_concurrency", s.config.Concurrency,
	)

	errCh := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			// Certificates come from TLSConfig.
			errCh <- srv.ServeTLS(ln, "", "")
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown timeout reached, forcing close", "error", err)
		srv.Close()
	}
	s.waitForReports()
	return nil
}

// waitForReports waits for pending summary deliveries, with a maximum
// timeout to prevent indefinite blocking.
func (s *Server) waitForReports() {
	done := make(chan struct{})
	go func() {
		s.reports.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all reports completed")
	case <-time.After(shutdownTimeout):
		slog.Warn("report wait timeout reached")
	}
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// requestLogger logs one line per request with slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
