package core

import (
	"context"
	"time"
)

// BuildStatus is the outcome of one build invocation.
type BuildStatus string

// Build statuses.
const (
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
)

// BuildRecord is one persisted build invocation.
type BuildRecord struct {
	ID          string      `json:"id"`
	Manifest    string      `json:"manifest"`
	Status      BuildStatus `json:"status"`
	Digest      string      `json:"digest,omitempty"`
	SymbolCount int         `json:"symbol_count"`
	ModuleCount int         `json:"module_count"`
	OutputBytes int         `json:"output_bytes,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// BuildConfig holds bundler settings shared by the CLI and the bundle package.
type BuildConfig struct {
	// Format is the output module format: esm, iife or cjs.
	Format string `koanf:"format"`
	// Target is the language target, e.g. es2020.
	Target    string   `koanf:"target"`
	Platform  string   `koanf:"platform"`
	Minify    bool     `koanf:"minify"`
	Sourcemap bool     `koanf:"sourcemap"`
	External  []string `koanf:"external"`
	// GlobalName is the variable the iife format assigns the surface to.
	GlobalName string `koanf:"global_name"`
}

// WatchConfig holds file watching settings.
type WatchConfig struct {
	Include  []string      `koanf:"include"`
	Exclude  []string      `koanf:"exclude"`
	Debounce time.Duration `koanf:"debounce"`
}

// ServeConfig holds HTTP server settings.
type ServeConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// BuildFilter selects build records.
type BuildFilter struct {
	// Manifest limits results to one manifest name, all manifests when empty.
	Manifest string
	// Status limits results to one status, all statuses when empty.
	Status BuildStatus
	// Limit caps the number of records, unlimited when <= 0.
	Limit int
}

// BuildStore persists build history.
type BuildStore interface {
	// RecordBuild stores rec and, when surface is non-nil, its bindings.
	// ID, CreatedAt and the surface-derived counters are filled in.
	RecordBuild(ctx context.Context, rec *BuildRecord, surface *Surface) error
	// GetBuild returns a build by id or unique id prefix.
	GetBuild(ctx context.Context, id string) (*BuildRecord, error)
	// Surface returns the surface stored with a build.
	Surface(ctx context.Context, buildID string) (*Surface, error)
	// ListBuilds returns matching builds, newest first.
	ListBuilds(ctx context.Context, filter BuildFilter) ([]*BuildRecord, error)
	Close() error
}
