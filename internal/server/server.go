// Package server serves the current export surface over HTTP and keeps it
// up to date while sources change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/barrel/internal/metrics"
	"github.com/leapstack-labs/barrel/internal/watch"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	"golang.org/x/sync/errgroup"
)

// ReloadFunc re-resolves the manifest. changed lists the files that
// triggered the reload and is empty for the initial load.
type ReloadFunc func(ctx context.Context, changed []string) (*core.Manifest, *core.Surface, error)

// Config holds configuration for the server.
type Config struct {
	Port   int
	Reload ReloadFunc
	// Watcher triggers reloads when set.
	Watcher *watch.Watcher
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server serves a manifest's export surface.
type Server struct {
	port     int
	reload   ReloadFunc
	watcher  *watch.Watcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	snapshot *Snapshot
}

// New creates a server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		port:     cfg.Port,
		reload:   cfg.Reload,
		watcher:  cfg.Watcher,
		metrics:  m,
		logger:   logger,
		snapshot: &Snapshot{},
	}
}

// Metrics returns the registry the server exposes on /metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Snapshot returns the server's current state.
func (s *Server) Snapshot() *Snapshot {
	return s.snapshot
}

// Refresh runs the reload function and stores its result.
func (s *Server) Refresh(ctx context.Context, changed []string) error {
	if s.reload == nil {
		return errors.New("server has no reload function")
	}
	m, surface, err := s.reload(ctx, changed)
	s.snapshot.Update(m, surface, err)
	if err != nil {
		s.logger.Error("resolve failed", slog.Any("error", err))
		return err
	}
	s.logger.Info("surface updated",
		slog.String("manifest", surface.Manifest),
		slog.Int("symbols", surface.Len()),
		slog.Int("changed", len(changed)))
	return nil
}

// Handler builds the HTTP handler with routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		s.metrics.Middleware,
	)

	r.Get("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	})
	r.Get("/-/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/surface", s.handleSurface)
	r.Get("/surface/{name}", s.handleBinding)
	r.Get("/entry.js", s.handleEntry)

	return r
}

// Serve resolves once, starts the HTTP server and, if configured, the
// watcher. It blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	// A failing initial resolve is served as not-ready, not fatal.
	_ = s.Refresh(ctx, nil)

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", slog.String("addr", fmt.Sprintf("http://localhost:%d", s.port)))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watcher != nil {
		eg.Go(func() error {
			return s.watcher.Run(egctx, func(ctx context.Context, changed []string) {
				s.metrics.ObserveWatchBatch(len(changed))
				_ = s.Refresh(ctx, changed)
			})
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.snapshot.Ready() {
		_, _, _, err := s.snapshot.Current()
		msg := "no surface resolved yet"
		if err != nil {
			msg = err.Error()
		}
		writeText(w, http.StatusServiceUnavailable, msg)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// surfaceResponse is the JSON body of GET /surface.
type surfaceResponse struct {
	Manifest  string         `json:"manifest"`
	Digest    string         `json:"digest"`
	Symbols   int            `json:"symbols"`
	Bindings  []core.Binding `json:"bindings"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (s *Server) handleSurface(w http.ResponseWriter, _ *http.Request) {
	_, surface, digest, err := s.snapshot.Current()
	if surface == nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	resp := surfaceResponse{
		Manifest:  surface.Manifest,
		Digest:    digest,
		Symbols:   surface.Len(),
		Bindings:  surface.Bindings,
		UpdatedAt: s.snapshot.UpdatedAt(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("ETag", `"`+digest+`"`)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBinding(w http.ResponseWriter, r *http.Request) {
	_, surface, _, err := s.snapshot.Current()
	if surface == nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	name := chi.URLParam(r, "name")
	b, ok := surface.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("symbol %q is not exported by %s", name, surface.Manifest))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleEntry(w http.ResponseWriter, _ *http.Request) {
	m, surface, digest, err := s.snapshot.Current()
	if surface == nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("ETag", `"`+digest+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(manifest.ExplicitBarrel(m, surface))
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg + "\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
