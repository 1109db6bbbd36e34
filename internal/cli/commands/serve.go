package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/leapstack-labs/barrel/internal/bundle"
	"github.com/leapstack-labs/barrel/internal/cli/config"
	"github.com/leapstack-labs/barrel/internal/metrics"
	"github.com/leapstack-labs/barrel/internal/server"
	"github.com/leapstack-labs/barrel/internal/source"
	"github.com/leapstack-labs/barrel/internal/watch"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var build bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the export surface over HTTP and keep it current",
		Long: `Start a local HTTP server exposing the resolved export surface.

Routes:
  /surface          the resolved surface as JSON
  /surface/{name}   one binding
  /entry.js         the explicit entry point
  /metrics          Prometheus metrics
  /-/healthy        liveness
  /-/ready          ready once the manifest resolved

With --watch (the default) source files under root are watched and the
surface is re-resolved after every batch of changes. With --build every
successful resolve is also bundled into out_dir and recorded.`,
		Example: `  # Serve on the default port and watch for changes
  barrel serve

  # Rebuild the bundle on every change
  barrel serve --build

  # Serve once without watching
  barrel serve --watch=false --port 9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, build)
		},
	}

	fs := cmd.Flags()
	fs.Int("port", 0, "Port to serve on (default 8787)")
	fs.Bool("watch", true, "Watch source files and re-resolve on change")
	fs.Duration("debounce", 0, "Quiet period before a batch of changes is handled")
	fs.BoolVar(&build, "build", false, "Bundle after every successful resolve")
	config.BindFlag(fs, "port", "serve.port")
	config.BindFlag(fs, "watch", "serve.watch")
	config.BindFlag(fs, "debounce", "watch.debounce")
	addBuildFlags(fs)

	return cmd
}

func runServe(cmd *cobra.Command, build bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger

	if err := cfg.ValidateManifest(); err != nil {
		return err
	}

	m := metrics.New()
	reloader := &surfaceReloader{cmdCtx: cmdCtx, metrics: m}

	if build {
		store, err := cmdCtx.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		reloader.store = store
		reloader.build = &bundle.Options{
			BuildConfig: cfg.Build,
			OutDir:      cfg.OutDir,
			Write:       true,
			Logger:      logger,
		}
	}

	var watcher *watch.Watcher
	if cfg.Serve.Watch {
		w, err := watch.New(watch.Config{
			Root:     cfg.Root,
			Include:  cfg.Watch.Include,
			Exclude:  cfg.Watch.Exclude,
			Debounce: cfg.Watch.Debounce,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		watcher = w
	}

	srv := server.New(server.Config{
		Port:    cfg.Serve.Port,
		Reload:  reloader.Reload,
		Watcher: watcher,
		Metrics: m,
		Logger:  logger,
	})

	r := cmdCtx.Renderer
	r.Success(fmt.Sprintf("Serving %s on http://localhost:%d", displayPath(cfg.Manifest), cfg.Serve.Port))
	if watcher != nil {
		r.Muted("watching " + displayPath(cfg.Root))
	}
	r.Muted("press Ctrl+C to stop")

	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logger.Debug("server stopped")
	return nil
}

// surfaceReloader re-reads the manifest and resolves it for the server.
// File system lookups are cached across reloads and invalidated by the
// files each batch reports.
type surfaceReloader struct {
	cmdCtx  *CommandContext
	metrics *metrics.Metrics

	// build and store are set when every resolve is also bundled.
	build *bundle.Options
	store core.BuildStore

	once  sync.Once
	cache *source.CachedSource
}

// Reload implements server.ReloadFunc.
func (s *surfaceReloader) Reload(ctx context.Context, changed []string) (*core.Manifest, *core.Surface, error) {
	logger := s.cmdCtx.Logger

	s.once.Do(func() {
		s.cache = source.NewCachedSource(source.NewFSSource(logger), logger)
	})
	if len(changed) > 0 {
		n := s.cache.Invalidate(changed)
		logger.Debug("cache invalidated", slog.Int("changed", len(changed)), slog.Int("entries", n))
	}

	doc, err := s.cmdCtx.LoadManifest(ctx)
	if err != nil {
		s.metrics.ObserveResolve("", nil, err, 0)
		return nil, nil, err
	}

	var src source.Source = s.cache
	if len(doc.Fixtures) > 0 {
		src = source.MapSource(doc.Fixtures)
	}

	surface, err := s.cmdCtx.NewResolver(src, s.metrics).Resolve(ctx, doc.Manifest)
	if stats := s.cache.Stats(); stats.Entries > 0 {
		logger.Debug("module cache", slog.Int("entries", stats.Entries), slog.Int("hits", stats.Hits), slog.Int("misses", stats.Misses))
	}
	if err != nil {
		return doc.Manifest, nil, err
	}

	if s.build != nil {
		rec, _, buildErr := runBuild(ctx, logger, s.store, doc.Manifest, surface, nil, *s.build)
		s.metrics.ObserveBuild(rec.Status)
		if buildErr != nil {
			// The surface is still served; only the bundle is stale.
			logger.Error("build failed", slog.Any("error", buildErr))
		} else {
			logger.Info("bundle rebuilt", slog.String("manifest", rec.Manifest), slog.Int("bytes", rec.OutputBytes))
		}
	}
	return doc.Manifest, surface, nil
}
