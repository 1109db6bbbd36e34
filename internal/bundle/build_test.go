package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/leapstack-labs/barrel/internal/resolve"
	"github.com/leapstack-labs/barrel/internal/source"
	"github.com/leapstack-labs/barrel/internal/testutil"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// project writes two feature modules and returns a manifest and surface
// over them as the resolver would produce.
func project(t *testing.T) (*core.Manifest, *core.Surface) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.ts":         "export const foo = 1;\nexport const bar = 2;\nexport default 3;\n",
		"b.ts":         "export function baz() { return 'baz'; }\n",
		"polyfills.ts": "(globalThis as any).barrelLoaded = true;\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	m := &core.Manifest{
		Name: "admins",
		Dir:  dir,
		Modules: []core.ModuleRef{
			{Path: "./polyfills", Mode: core.ModeWildcard},
			{Path: "./a", Mode: core.ModeWildcard},
			{Path: "./b", Mode: core.ModeNamed, Names: []core.NamedExport{{Name: "baz", As: "qux"}}},
		},
	}
	s := core.NewSurface("admins", []core.Binding{
		{Name: "foo", Module: "./a", Original: "foo", Ref: 1},
		{Name: "bar", Module: "./a", Original: "bar", Ref: 1},
		{Name: "qux", Module: "./b", Original: "baz", Ref: 2},
	}, nil)
	return m, s
}

func TestEntrySource(t *testing.T) {
	m, s := project(t)
	entry := string(EntrySource(m, s))

	polyfills := strings.Index(entry, `import "./polyfills";`)
	a := strings.Index(entry, `export { foo, bar } from "./a";`)
	b := strings.Index(entry, `export { baz as qux } from "./b";`)
	require.True(t, polyfills >= 0 && a >= 0 && b >= 0, entry)
	assert.Less(t, polyfills, a, "manifest order is kept for side effects")
	assert.Less(t, a, b)
}

func TestBuild_ESM(t *testing.T) {
	m, s := project(t)

	res, err := Build(context.Background(), m, s, Options{
		BuildConfig: core.BuildConfig{Format: "esm", Target: "es2020"},
		Logger:      testutil.NewTestLogger(t),
	})
	require.NoError(t, err)

	js := string(res.JS)
	assert.Contains(t, js, "barrelLoaded")
	assert.Contains(t, js, "qux")
	assert.NotContains(t, js, "export default")
	assert.Equal(t, filepath.Join("out", "admins.js"), res.OutputPath)

	_, out, ok := res.Metafile.JSOutput()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"foo", "bar", "qux"}, out.Exports)

	analysis := res.Metafile.Analyze()
	assert.Positive(t, analysis.TotalBytes)
	assert.NotEmpty(t, analysis.Inputs)
}

func TestBuild_WriteIIFE(t *testing.T) {
	m, s := project(t)
	outDir := t.TempDir()

	res, err := Build(context.Background(), m, s, Options{
		BuildConfig: core.BuildConfig{Format: "iife", Minify: true, Sourcemap: true},
		OutDir:      outDir,
		Write:       true,
	})
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(outDir, "admins.js"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "admins")
	assert.NotEmpty(t, res.JS)
	assert.FileExists(t, filepath.Join(outDir, "admins.js.map"))
}

func TestBuild_Errors(t *testing.T) {
	m, s := project(t)
	ctx := context.Background()

	_, err := Build(ctx, m, nil, Options{})
	assert.True(t, errors.Is(err, ErrNoSurface))

	_, err = Build(ctx, m, s, Options{BuildConfig: core.BuildConfig{Target: "es3000"}})
	assert.ErrorContains(t, err, `unknown build target "es3000"`)

	_, err = Build(ctx, m, s, Options{BuildConfig: core.BuildConfig{Platform: "deno"}})
	assert.ErrorContains(t, err, `unknown build platform "deno"`)

	_, err = Build(ctx, m, s, Options{Write: true})
	assert.ErrorContains(t, err, "output directory is required")

	// A module that disappeared after resolution fails in esbuild with a located message.
	m.Modules = append(m.Modules, core.ModuleRef{Path: "./gone", Mode: core.ModeWildcard})
	_, err = Build(ctx, m, s, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "esbuild errors:")
	assert.Contains(t, err.Error(), "admins.entry.ts:")
}

// The TypeScript loader cannot tell a missing name from a type, so unknown
// names never reach Build: the resolver rejects them first.
func TestBuild_UnknownNameRejectedByResolver(t *testing.T) {
	m, _ := project(t)
	m.Modules[2].Names = append(m.Modules[2].Names, core.NamedExport{Name: "ghost"})

	r := resolve.New(resolve.Config{Source: source.NewFSSource(testutil.NewTestLogger(t))})
	s, err := r.Resolve(context.Background(), m)
	require.ErrorIs(t, err, core.ErrExportNotFound)
	assert.Nil(t, s)
}

func TestBuild_SideEffectOnlyModules(t *testing.T) {
	m, _ := project(t)
	ctx := context.Background()

	s, err := resolve.New(resolve.Config{Source: source.NewFSSource(nil)}).Resolve(ctx, m)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"foo", "bar", "qux"}, s.Names())

	res, err := Build(ctx, m, s, Options{BuildConfig: core.BuildConfig{Format: "esm"}})
	require.NoError(t, err)

	js := string(res.JS)
	loaded := strings.Index(js, "barrelLoaded")
	foo := strings.Index(js, "foo")
	require.True(t, loaded >= 0 && foo >= 0, js)
	assert.Less(t, loaded, foo, "modules initialise in manifest order")
}

func TestVerify(t *testing.T) {
	s := core.NewSurface("m", []core.Binding{{Name: "a"}, {Name: "b"}}, nil)
	meta := &Metafile{Outputs: map[string]MetafileOutput{
		"out/m.js":     {Exports: []string{"b", "c"}},
		"out/m.js.map": {},
	}}

	err := Verify(s, meta, api.FormatESModule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing: [a]")
	assert.Contains(t, err.Error(), "unexpected: [c]")

	assert.NoError(t, Verify(s, meta, api.FormatIIFE))

	meta.Outputs["out/m.js"] = MetafileOutput{Exports: []string{"b", "a"}}
	assert.NoError(t, Verify(s, meta, api.FormatESModule))
}

func TestParseMetafile(t *testing.T) {
	meta, err := ParseMetafile(`{
  "inputs": {"a.ts": {"bytes": 40, "imports": []}, "b.ts": {"bytes": 10, "imports": []}},
  "outputs": {"out/m.js": {
    "bytes": 100,
    "inputs": {"a.ts": {"bytesInOutput": 30}, "b.ts": {"bytesInOutput": 60}},
    "imports": [{"path": "react", "kind": "import-statement", "external": true}],
    "exports": ["x"],
    "entryPoint": "<stdin>"
  }}
}`)
	require.NoError(t, err)

	a := meta.Analyze()
	assert.Equal(t, 100, a.TotalBytes)
	require.Len(t, a.Inputs, 2)
	assert.Equal(t, "b.ts", a.Inputs[0].Path)
	assert.InDelta(t, 60.0, a.Inputs[0].Percentage, 0.001)
	assert.Equal(t, []string{"react"}, a.ExternalImports)

	_, err = ParseMetafile("{")
	assert.Error(t, err)
}

func TestGlobalName(t *testing.T) {
	assert.Equal(t, "admins", globalName("admins"))
	assert.Equal(t, "videoAdmins", globalName("video-admins"))
	assert.Equal(t, "courseImportTools", globalName("course_import.tools"))
}
