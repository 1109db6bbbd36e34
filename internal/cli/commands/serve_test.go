package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/barrel/internal/bundle"
	"github.com/leapstack-labs/barrel/internal/cli/config"
	"github.com/leapstack-labs/barrel/internal/cli/output"
	clitestutil "github.com/leapstack-labs/barrel/internal/cli/testutil"
	"github.com/leapstack-labs/barrel/internal/metrics"
	"github.com/leapstack-labs/barrel/internal/state"
	"github.com/leapstack-labs/barrel/internal/testutil"
	"github.com/leapstack-labs/barrel/pkg/core"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCommandContext loads the configuration of the project in dir.
func newTestCommandContext(t *testing.T, dir string) *CommandContext {
	t.Helper()
	t.Chdir(dir)
	t.Cleanup(config.ResetConfig)

	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   testutil.NewTestLogger(t),
		Renderer: clitestutil.NewCapturedRenderer(output.ModeText, false).Renderer,
	}
}

func bindingNames(s *core.Surface) []string {
	names := make([]string, 0, s.Len())
	for _, b := range s.Bindings {
		names = append(names, b.Name)
	}
	return names
}

func TestSurfaceReloaderFixtures(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	m := metrics.New()
	r := &surfaceReloader{cmdCtx: newTestCommandContext(t, dir), metrics: m}

	man, surface, err := r.Reload(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "admins", man.Name)
	assert.Equal(t, 5, surface.Len())

	n, err := promtestutil.GatherAndCount(m.Registry(), "barrel_resolve_total", "barrel_surface_symbols")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSurfaceReloaderInvalidatesChangedFiles(t *testing.T) {
	dir := clitestutil.SetupSourceProject(t)
	r := &surfaceReloader{cmdCtx: newTestCommandContext(t, dir), metrics: metrics.New()}
	ctx := context.Background()

	_, surface, err := r.Reload(ctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"listUsers", "fetchUser", "UserCard", "average"}, bindingNames(surface))

	api := filepath.Join(dir, "src", "users", "api.ts")
	require.NoError(t, os.WriteFile(api, []byte("export function listUsers() { return []; }\nexport const inviteUser = 1;\n"), 0o600))

	_, surface, err = r.Reload(ctx, []string{api})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"listUsers", "inviteUser", "UserCard", "average"}, bindingNames(surface))
}

func TestSurfaceReloaderReportsResolveErrors(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(clitestutil.TestCollidingManifest), 0o600))
	r := &surfaceReloader{cmdCtx: newTestCommandContext(t, dir), metrics: metrics.New()}

	man, surface, err := r.Reload(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrExportCollision)
	require.NotNil(t, man, "the manifest is still reported")
	assert.Equal(t, "broken", man.Name)
	assert.Nil(t, surface)
}

func TestSurfaceReloaderBuilds(t *testing.T) {
	dir := clitestutil.SetupSourceProject(t)
	cmdCtx := newTestCommandContext(t, dir)
	ctx := context.Background()

	store, err := state.OpenStore(ctx, cmdCtx.Cfg.StatePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	r := &surfaceReloader{
		cmdCtx:  cmdCtx,
		metrics: m,
		store:   store,
		build: &bundle.Options{
			BuildConfig: cmdCtx.Cfg.Build,
			OutDir:      cmdCtx.Cfg.OutDir,
			Write:       true,
			Logger:      cmdCtx.Logger,
		},
	}

	_, _, err = r.Reload(ctx, nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "dist", "admins.js"))

	builds, err := store.ListBuilds(ctx, core.BuildFilter{})
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, core.BuildStatusSucceeded, builds[0].Status)

	n, err := promtestutil.GatherAndCount(m.Registry(), "barrel_build_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
