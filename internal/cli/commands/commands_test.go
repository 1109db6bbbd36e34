package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/barrel/internal/cli/config"
	"github.com/leapstack-labs/barrel/internal/cli/output"
	clitestutil "github.com/leapstack-labs/barrel/internal/cli/testutil"
	"github.com/leapstack-labs/barrel/internal/metrics"
	"github.com/leapstack-labs/barrel/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs sub under a minimal root command from dir, loading
// configuration the way the real root does.
func executeCommand(t *testing.T, dir string, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	t.Chdir(dir)
	t.Cleanup(config.ResetConfig)

	root := &cobra.Command{
		Use: "barrel",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.LoadConfig("", cmd.Flags()); err != nil {
				return err
			}
			cmd.SetContext(config.WithLogger(cmd.Context(), testutil.NewTestLogger(t)))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("manifest", "m", "", "")
	root.PersistentFlags().StringP("output", "o", "", "")
	root.AddCommand(sub)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{sub.Name()}, args...))

	err := root.Execute()
	return buf.String(), err
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), "output: %s", out)
	return v
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewResolveCommand(), "resolve", []string{"names"}},
		{NewCheckCommand(), "check", nil},
		{NewBuildCommand(), "build", []string{"format", "target", "platform", "minify", "sourcemap", "external", "global-name", "dry-run", "no-history"}},
		{NewGenerateCommand(), "generate", []string{"format", "out", "check"}},
		{NewGraphCommand(), "graph", nil},
		{NewHistoryCommand(), "history [build-id]", []string{"name", "status", "limit"}},
		{NewDiffCommand(), "diff [old-build] [new-build]", []string{"working", "exit-code"}},
		{NewServeCommand(), "serve", []string{"port", "watch", "debounce", "build", "format"}},
		{NewInitCommand(), "init [directory]", []string{"force", "example"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestGraphCommandAlias(t *testing.T) {
	assert.Contains(t, NewGraphCommand().Aliases, "dag")
}

func TestResolveCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, dir, NewResolveCommand(), "-o", "json")
		require.NoError(t, err)

		got := decodeJSON[output.SurfaceOutput](t, out)
		assert.Equal(t, "admins", got.Manifest)
		assert.Equal(t, 5, got.Symbols)
		assert.Len(t, got.Digest, 64)
		require.Len(t, got.Modules, 2)
		assert.Equal(t, "wildcard", got.Modules[0].Mode)
		assert.Equal(t, "named", got.Modules[1].Mode)

		var names []string
		for _, b := range got.Bindings {
			names = append(names, b.Name)
		}
		assert.ElementsMatch(t, []string{"listUsers", "fetchUser", "UserCard", "count", "average"}, names)
	})

	t.Run("markdown", func(t *testing.T) {
		out, err := executeCommand(t, dir, NewResolveCommand(), "-o", "markdown")
		require.NoError(t, err)
		clitestutil.AssertNoANSI(t, out)
		clitestutil.AssertValidMarkdown(t, out)
		assert.Contains(t, out, "average")
		assert.Contains(t, out, "./users")
	})

	t.Run("names only", func(t *testing.T) {
		out, err := executeCommand(t, dir, NewResolveCommand(), "--names")
		require.NoError(t, err)
		assert.Contains(t, out, "listUsers\n")
		assert.Contains(t, out, "average\n")
		assert.NotContains(t, out, "mean")
	})

	t.Run("manifest flag", func(t *testing.T) {
		other := testutil.WriteTree(t, map[string]string{
			"other.yaml": "name: other\nmodules:\n  - path: ./x\nfixtures:\n  ./x: [only]\n",
		})
		out, err := executeCommand(t, dir, NewResolveCommand(), "-m", filepath.Join(other, "other.yaml"), "--names")
		require.NoError(t, err)
		assert.Equal(t, "only\n", out)
	})
}

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		name       string
		manifest   string
		wantOK     bool
		wantKind   string
		collisions int
	}{
		{
			name:     "valid manifest",
			manifest: clitestutil.TestManifest,
			wantOK:   true,
		},
		{
			name:       "collision",
			manifest:   clitestutil.TestCollidingManifest,
			wantKind:   metrics.ResultCollision,
			collisions: 1,
		},
		{
			name:     "missing named export",
			manifest: "name: missing\nmodules:\n  - path: ./a\n    names: [nope]\nfixtures:\n  ./a: [yes]\n",
			wantKind: metrics.ResultExportNotFound,
		},
		{
			name:     "missing module",
			manifest: "name: missing\nmodules:\n  - path: ./gone\nfixtures:\n  ./a: [yes]\n",
			wantKind: metrics.ResultModuleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := clitestutil.SetupTestProject(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(tt.manifest), 0o600))

			out, err := executeCommand(t, dir, NewCheckCommand(), "-o", "json")
			got := decodeJSON[output.CheckOutput](t, out)

			assert.Equal(t, tt.wantOK, got.OK)
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, 5, got.Symbols)
				return
			}
			require.ErrorIs(t, err, ErrCheckFailed)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.NotEmpty(t, got.Error)
			assert.Len(t, got.Collisions, tt.collisions)
		})
	}
}

func TestCheckCommandMissingManifest(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{"barrel.yaml": clitestutil.TestConfig})

	_, err := executeCommand(t, dir, NewCheckCommand())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCheckFailed)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestCheckCommandText(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(clitestutil.TestCollidingManifest), 0o600))

	out, err := executeCommand(t, dir, NewCheckCommand(), "-o", "text")
	require.ErrorIs(t, err, ErrCheckFailed)
	assert.Contains(t, out, "listUsers")
	assert.Contains(t, out, "./legacy")
}

func TestGenerateCommand(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{
			name:     "explicit entry",
			args:     []string{"--format", "ts"},
			contains: []string{"export {", "listUsers", "mean as average", `from "./users"`},
		},
		{
			name:     "declarative barrel",
			args:     []string{"--format", "barrel"},
			contains: []string{`export * from "./users";`, "mean as average"},
		},
		{
			name:     "yaml",
			args:     []string{"--format", "yaml"},
			contains: []string{"name: admins", "path: ./users"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(t, dir, NewGenerateCommand(), tt.args...)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		_, err := executeCommand(t, dir, NewGenerateCommand(), "--format", "xml")
		require.Error(t, err)
	})
}

func TestGenerateCommandCheck(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)
	target := filepath.Join(dir, "gen", "admins.gen.ts")

	_, err := executeCommand(t, dir, NewGenerateCommand(), "--out", target, "--check")
	require.ErrorIs(t, err, ErrStale, "missing file is stale")

	_, err = executeCommand(t, dir, NewGenerateCommand(), "--out", target)
	require.NoError(t, err)
	require.FileExists(t, target)

	out, err := executeCommand(t, dir, NewGenerateCommand(), "--out", target, "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(clitestutil.TestManifest+"\n# edited\n"), 0o600))
	_, err = executeCommand(t, dir, NewGenerateCommand(), "--out", target, "--check")
	require.NoError(t, err, "a comment does not change the surface")

	_, err = executeCommand(t, dir, NewGenerateCommand(), "--check")
	require.Error(t, err, "--check needs --out")
}

func TestGraphCommand(t *testing.T) {
	dir := clitestutil.SetupSourceProject(t)

	out, err := executeCommand(t, dir, NewGraphCommand(), "-o", "json")
	require.NoError(t, err)

	got := decodeJSON[output.GraphOutput](t, out)
	assert.Equal(t, "admins", got.Manifest)
	// manifest.yaml, users/index.ts, users/api.ts, stats.ts
	assert.Equal(t, 4, got.TotalNodes)
	assert.Equal(t, 3, got.TotalEdges)
	require.Len(t, got.Levels, 3)

	top := got.Levels[len(got.Levels)-1]
	require.Len(t, top.Nodes, 1)
	assert.Equal(t, "manifest.yaml", top.Nodes[0].ID)
	assert.ElementsMatch(t, []string{filepath.Join("src", "users", "index.ts"), filepath.Join("src", "stats.ts")}, top.Nodes[0].DependsOn)
}

func TestGraphCommandMarkdown(t *testing.T) {
	dir := clitestutil.SetupTestProject(t)

	out, err := executeCommand(t, dir, NewGraphCommand())
	require.NoError(t, err)
	clitestutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "# Re-export Graph")
	assert.Contains(t, out, "Level 0 (Leaf modules)")
	assert.Contains(t, out, "./users")
}
