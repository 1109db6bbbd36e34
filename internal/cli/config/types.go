// Package config provides configuration management for the barrel CLI.
//
// Bundler, watch and serve settings are defined in pkg/core so the
// packages that consume them do not depend on the CLI. They are re-exported
// here via type aliases for convenience.
package config

import (
	"time"

	"github.com/leapstack-labs/barrel/pkg/core"
)

// BuildConfig is an alias for the shared bundler configuration.
type BuildConfig = core.BuildConfig

// WatchConfig is an alias for the shared watch configuration.
type WatchConfig = core.WatchConfig

// ServeConfig is an alias for the shared server configuration.
type ServeConfig = core.ServeConfig

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the directory relative paths are resolved against.
	// It is inferred, never read from the file.
	ProjectRoot string `koanf:"-"`

	Manifest     string      `koanf:"manifest"`
	Root         string      `koanf:"root"`
	OutDir       string      `koanf:"out_dir"`
	StatePath    string      `koanf:"state_path"`
	Concurrency  int         `koanf:"concurrency"`
	Verbose      bool        `koanf:"verbose"`
	OutputFormat string      `koanf:"output"`
	Build        BuildConfig `koanf:"build"`
	Watch        WatchConfig `koanf:"watch"`
	Serve        ServeConfig `koanf:"serve"`
}

// Default configuration values.
const (
	DefaultManifest    = "manifest.yaml"
	DefaultRoot        = "."
	DefaultOutDir      = "dist"
	DefaultStateFile   = ".barrel/state.db"
	DefaultConcurrency = 8
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultFormat      = "esm"
	DefaultTarget      = "es2020"
	DefaultPlatform    = "browser"
	DefaultPort        = 8787
	DefaultDebounce    = 100 * time.Millisecond
)

// ConfigFileNames are the file names searched for, in order.
var ConfigFileNames = []string{"barrel.yaml", "barrel.yml"}

// defaults returns the lowest-precedence configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"manifest":        DefaultManifest,
		"root":            DefaultRoot,
		"out_dir":         DefaultOutDir,
		"state_path":      DefaultStateFile,
		"concurrency":     DefaultConcurrency,
		"verbose":         false,
		"output":          DefaultOutput,
		"build.format":    DefaultFormat,
		"build.target":    DefaultTarget,
		"build.platform":  DefaultPlatform,
		"build.minify":    false,
		"build.sourcemap": false,
		"watch.debounce":  DefaultDebounce.String(),
		"serve.port":      DefaultPort,
		"serve.watch":     true,
	}
}
