package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "barrel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.StringP("manifest", "m", "", "")
	fs.String("out-dir", "", "")
	fs.String("state", "", "")
	fs.StringP("output", "o", "", "")
	fs.BoolP("verbose", "v", false, "")
	fs.Int("concurrency", 0, "")
	fs.String("format", "", "")
	fs.Bool("minify", false, "")
	fs.StringSlice("external", nil, "")
	BindFlag(fs, "state", "state_path")
	BindFlag(fs, "format", "build.format")
	BindFlag(fs, "minify", "build.minify")
	BindFlag(fs, "external", "build.external")
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, DefaultManifest), cfg.Manifest)
	assert.Equal(t, filepath.Join(dir, DefaultOutDir), cfg.OutDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, "esm", cfg.Build.Format)
	assert.Equal(t, "es2020", cfg.Build.Target)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
	assert.Equal(t, DefaultPort, cfg.Serve.Port)
	assert.True(t, cfg.Serve.Watch)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := writeConfig(t, dir, `manifest: web/ts/entry/admins.ts
out_dir: public/js
concurrency: 4
build:
  format: iife
  minify: true
  external: [react, react-dom]
watch:
  debounce: 250ms
  exclude: ["**/*.test.ts"]
serve:
  port: 9000
  watch: false
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, filepath.Join(dir, "web/ts/entry/admins.ts"), cfg.Manifest)
	assert.Equal(t, filepath.Join(dir, "public/js"), cfg.OutDir)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "iife", cfg.Build.Format)
	assert.True(t, cfg.Build.Minify)
	assert.Equal(t, []string{"react", "react-dom"}, cfg.Build.External)
	assert.Equal(t, "es2020", cfg.Build.Target, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{"**/*.test.ts"}, cfg.Watch.Exclude)
	assert.Equal(t, 9000, cfg.Serve.Port)
	assert.False(t, cfg.Serve.Watch)
}

func TestLoadConfig_SearchesUpward(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "manifest: entry.ts\n")
	nested := filepath.Join(dir, "web", "ts")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	t.Chdir(nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, "entry.ts"), cfg.Manifest)
}

func TestLoadConfig_Precedence(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := writeConfig(t, dir, "concurrency: 2\noutput: text\nbuild:\n  format: iife\n")

	t.Setenv("BARREL_CONCURRENCY", "3")
	t.Setenv("BARREL_BUILD__FORMAT", "cjs")
	t.Setenv("BARREL_OUTPUT", "markdown")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--output", "json", "--minify", "--external", "lodash"}))

	cfg, err := LoadConfig(path, fs)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Concurrency, "env overrides file")
	assert.Equal(t, "cjs", cfg.Build.Format, "nested env overrides file")
	assert.Equal(t, "json", cfg.OutputFormat, "flag overrides env")
	assert.True(t, cfg.Build.Minify, "bound flag sets nested key")
	assert.Equal(t, []string{"lodash"}, cfg.Build.External)
}

func TestLoadConfig_FlagPathsAreRelativeToCWD(t *testing.T) {
	ResetConfig()
	project := t.TempDir()
	path := writeConfig(t, project, "manifest: entry.yaml\n")

	cwd := t.TempDir()
	t.Chdir(cwd)

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--manifest", "other.yaml", "--state", "s.db"}))

	cfg, err := LoadConfig(path, fs)
	require.NoError(t, err)

	assert.Equal(t, project, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(cwd, "other.yaml"), cfg.Manifest)
	assert.Equal(t, filepath.Join(cwd, "s.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(project, DefaultOutDir), cfg.OutDir)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{"bad yaml", "manifest: [unclosed\n", "error reading config file"},
		{"bad output", "output: html\n", `invalid output "html"`},
		{"bad format", "build:\n  format: umd\n", `invalid build.format "umd"`},
		{"bad platform", "build:\n  platform: deno\n", `invalid build.platform "deno"`},
		{"negative concurrency", "concurrency: -1\n", "concurrency must not be negative"},
		{"bad port", "serve:\n  port: 70000\n", "invalid serve.port"},
		{"bad pattern", "watch:\n  include: [\"src/[\"]\n", "invalid watch pattern"},
		{"bad duration", "watch:\n  debounce: soon\n", "unable to decode config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadConfig(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestValidateManifest(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Manifest: filepath.Join(dir, "missing.yaml")}
	err := cfg.ValidateManifest()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "barrel init")

	require.NoError(t, os.WriteFile(cfg.Manifest, []byte("name: x\n"), 0o600))
	assert.NoError(t, cfg.ValidateManifest())
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()), "falls back to a discard logger")

	logger := GetLogger(context.Background()).With("k", "v")
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
