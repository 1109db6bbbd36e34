package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/leapstack-labs/barrel/internal/cli/config"
	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/internal/resolve"
	"github.com/leapstack-labs/barrel/internal/source"
	"github.com/leapstack-labs/barrel/internal/state"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// LoadManifest reads the configured manifest.
func (c *CommandContext) LoadManifest(ctx context.Context) (*manifest.Document, error) {
	doc, err := manifest.Load(ctx, c.Cfg.Manifest)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("manifest loaded",
		slog.String("file", c.Cfg.Manifest),
		slog.String("name", doc.Manifest.Name),
		slog.Int("modules", len(doc.Manifest.Modules)))
	return doc, nil
}

// NewSource returns the module source for doc: its inline fixtures when it
// has any, the file system otherwise.
func (c *CommandContext) NewSource(doc *manifest.Document) source.Source {
	if len(doc.Fixtures) > 0 {
		c.Logger.Debug("resolving against manifest fixtures", slog.Int("modules", len(doc.Fixtures)))
		return source.MapSource(doc.Fixtures)
	}
	return source.NewFSSource(c.Logger)
}

// NewResolver returns a resolver over src with the configured concurrency.
func (c *CommandContext) NewResolver(src source.Source, observer resolve.Observer) *resolve.Resolver {
	return resolve.New(resolve.Config{
		Source:      src,
		Logger:      c.Logger,
		Concurrency: c.Cfg.Concurrency,
		Observer:    observer,
	})
}

// Resolve loads the manifest and resolves it.
// The document is returned even when resolution fails.
func (c *CommandContext) Resolve(ctx context.Context) (*manifest.Document, *core.Surface, error) {
	doc, err := c.LoadManifest(ctx)
	if err != nil {
		return nil, nil, err
	}
	surface, err := c.NewResolver(c.NewSource(doc), nil).Resolve(ctx, doc.Manifest)
	return doc, surface, err
}

// OpenStore opens the build history database, creating it if needed.
func (c *CommandContext) OpenStore(ctx context.Context) (*state.SQLiteStore, error) {
	store, err := state.OpenStore(ctx, c.Cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return store, nil
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	concurrency, err := strconv.Atoi(os.Getenv("BARREL_CONCURRENCY"))
	if err != nil {
		concurrency = config.DefaultConcurrency
	}
	return &config.Config{
		Manifest:     getEnvOrDefault("BARREL_MANIFEST", config.DefaultManifest),
		Root:         getEnvOrDefault("BARREL_ROOT", config.DefaultRoot),
		OutDir:       getEnvOrDefault("BARREL_OUT_DIR", config.DefaultOutDir),
		StatePath:    getEnvOrDefault("BARREL_STATE_PATH", config.DefaultStateFile),
		Concurrency:  concurrency,
		Verbose:      os.Getenv("BARREL_VERBOSE") == "true",
		OutputFormat: getEnvOrDefault("BARREL_OUTPUT", config.DefaultOutput),
		Build: config.BuildConfig{
			Format:   config.DefaultFormat,
			Target:   config.DefaultTarget,
			Platform: config.DefaultPlatform,
		},
		Watch: config.WatchConfig{Debounce: config.DefaultDebounce},
		Serve: config.ServeConfig{Port: config.DefaultPort, Watch: true},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
