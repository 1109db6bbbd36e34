package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Accepted values for enumerated settings.
var (
	OutputModes = []string{"auto", "text", "markdown", "json"}
	Formats     = []string{"esm", "iife", "cjs"}
	Platforms   = []string{"browser", "node", "neutral"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if !slices.Contains(OutputModes, c.OutputFormat) {
		return fmt.Errorf("invalid output %q, expected one of %s", c.OutputFormat, strings.Join(OutputModes, ", "))
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Build.Format != "" && !slices.Contains(Formats, strings.ToLower(c.Build.Format)) {
		return fmt.Errorf("invalid build.format %q, expected one of %s", c.Build.Format, strings.Join(Formats, ", "))
	}
	if c.Build.Platform != "" && !slices.Contains(Platforms, strings.ToLower(c.Build.Platform)) {
		return fmt.Errorf("invalid build.platform %q, expected one of %s", c.Build.Platform, strings.Join(Platforms, ", "))
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("invalid serve.port %d", c.Serve.Port)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	for _, p := range append(slices.Clone(c.Watch.Include), c.Watch.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid watch pattern %q", p)
		}
	}
	return nil
}

// ValidateManifest checks that the manifest file exists.
func (c *Config) ValidateManifest() error {
	if _, err := os.Stat(c.Manifest); os.IsNotExist(err) {
		return fmt.Errorf("manifest file does not exist: %s\nHint: run `barrel init` or use --manifest to specify a different path", c.Manifest)
	}
	return nil
}
