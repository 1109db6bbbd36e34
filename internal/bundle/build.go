// Package bundle emits a bundle for a resolved export surface using esbuild.
//
// The entry point handed to esbuild is generated from the surface rather
// than read from the manifest: every wildcard is spelled out as the list of
// names it resolved to, so the bundle exports exactly what was checked.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
)

// ErrNoSurface is returned when Build is called without a resolved surface.
var ErrNoSurface = errors.New("no resolved surface, resolve the manifest first")

// Options configures a build.
type Options struct {
	core.BuildConfig
	// OutDir is where output files go. Required when Write is set.
	OutDir string
	// Write writes output files to disk instead of only returning them.
	Write  bool
	Logger *slog.Logger
}

// Result is a finished build.
type Result struct {
	// OutputPath is the bundle path (inside OutDir).
	OutputPath string
	JS         []byte
	SourceMap  []byte
	Metafile   *Metafile
	Warnings   []string
}

// EntrySource returns the generated entry module for a surface.
func EntrySource(m *core.Manifest, s *core.Surface) []byte {
	return manifest.ExplicitBarrel(m, s)
}

// Build bundles the surface of m.
func Build(ctx context.Context, m *core.Manifest, s *core.Surface, opts Options) (*Result, error) {
	if s == nil {
		return nil, ErrNoSurface
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	buildOpts, err := esbuildOptions(m, s, opts)
	if err != nil {
		return nil, err
	}

	esctx, ctxErr := api.Context(buildOpts)
	if ctxErr != nil {
		return nil, fmt.Errorf("esbuild errors:\n%s", formatMessages(ctxErr.Errors))
	}
	defer esctx.Dispose()

	stop := context.AfterFunc(ctx, esctx.Cancel)
	defer stop()

	result := esctx.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("esbuild errors:\n%s", formatMessages(result.Errors))
	}

	out := &Result{OutputPath: buildOpts.Outfile}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, formatMessage(w))
	}
	for _, f := range result.OutputFiles {
		switch {
		case strings.HasSuffix(f.Path, ".map"):
			out.SourceMap = f.Contents
		case filepath.Ext(f.Path) == ".js":
			out.JS = f.Contents
		}
	}
	if len(out.JS) == 0 && !opts.Write {
		return nil, fmt.Errorf("no JavaScript output generated")
	}

	out.Metafile, err = ParseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}
	if err := Verify(s, out.Metafile, formatOf(opts.Format)); err != nil {
		return nil, err
	}

	if opts.Write && len(out.JS) == 0 {
		if data, err := os.ReadFile(out.OutputPath); err == nil {
			out.JS = data
		}
	}

	logger.Debug("bundle built",
		slog.String("manifest", s.Manifest),
		slog.String("output", out.OutputPath),
		slog.Int("bytes", len(out.JS)),
		slog.Int("warnings", len(out.Warnings)))

	return out, nil
}

// Verify checks that the bundle exports exactly the surface names.
// Only ES module output carries an export list; other formats pass.
// The entry is compiled with the TypeScript loader, which keeps every
// re-exported name because it may be a type, so a name the module lacks
// is not caught here. Resolve rejects those with core.ErrExportNotFound.
func Verify(s *core.Surface, meta *Metafile, format api.Format) error {
	if format != api.FormatESModule {
		return nil
	}
	_, output, ok := meta.JSOutput()
	if !ok {
		return fmt.Errorf("metafile has no JavaScript output")
	}

	want := slices.Sorted(slices.Values(s.Names()))
	got := slices.Sorted(slices.Values(output.Exports))
	if slices.Equal(want, got) {
		return nil
	}

	gotSet := make(map[string]bool, len(got))
	for _, n := range got {
		gotSet[n] = true
	}
	wantSet := make(map[string]bool, len(want))
	for _, n := range want {
		wantSet[n] = true
	}
	var missing, extra []string
	for _, n := range want {
		if !gotSet[n] {
			missing = append(missing, n)
		}
	}
	for _, n := range got {
		if !wantSet[n] {
			extra = append(extra, n)
		}
	}
	return fmt.Errorf("bundle exports do not match the resolved surface (missing: %v, unexpected: %v)", missing, extra)
}

func esbuildOptions(m *core.Manifest, s *core.Surface, opts Options) (api.BuildOptions, error) {
	format := formatOf(opts.Format)
	target, err := targetOf(opts.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}
	platform, err := platformOf(opts.Platform)
	if err != nil {
		return api.BuildOptions{}, err
	}
	if opts.Write && opts.OutDir == "" {
		return api.BuildOptions{}, fmt.Errorf("output directory is required to write a bundle")
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = "out"
	}
	resolveDir := m.Dir
	if resolveDir == "" {
		resolveDir, _ = os.Getwd()
	}

	buildOpts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(EntrySource(m, s)),
			ResolveDir: resolveDir,
			Sourcefile: m.Name + ".entry.ts",
			Loader:     api.LoaderTS,
		},
		Bundle:   true,
		Write:    opts.Write,
		Outfile:  filepath.Join(outDir, m.Name+".js"),
		Metafile: true,

		Loader: map[string]api.Loader{
			".tsx": api.LoaderTSX,
			".ts":  api.LoaderTS,
			".css": api.LoaderCSS,
		},

		Platform: platform,
		Format:   format,
		Target:   target,
		External: opts.External,

		TreeShaking: api.TreeShakingTrue,
		Sourcemap:   api.SourceMapNone,
		LogLevel:    api.LogLevelSilent,
	}

	if format == api.FormatIIFE {
		buildOpts.GlobalName = opts.GlobalName
		if buildOpts.GlobalName == "" {
			buildOpts.GlobalName = globalName(m.Name)
		}
	}
	if opts.Sourcemap {
		buildOpts.Sourcemap = api.SourceMapLinked
	}
	if opts.Minify {
		buildOpts.MinifyWhitespace = true
		buildOpts.MinifyIdentifiers = true
		buildOpts.MinifySyntax = true
	}

	return buildOpts, nil
}

func formatOf(name string) api.Format {
	switch strings.ToLower(name) {
	case "iife":
		return api.FormatIIFE
	case "cjs":
		return api.FormatCommonJS
	default:
		return api.FormatESModule
	}
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

func targetOf(name string) (api.Target, error) {
	if name == "" {
		return api.ES2020, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown build target %q", name)
	}
	return t, nil
}

func platformOf(name string) (api.Platform, error) {
	switch strings.ToLower(name) {
	case "", "browser":
		return api.PlatformBrowser, nil
	case "node":
		return api.PlatformNode, nil
	case "neutral":
		return api.PlatformNeutral, nil
	}
	return api.PlatformDefault, fmt.Errorf("unknown build platform %q", name)
}

// globalName turns "video-admins" into "videoAdmins".
func globalName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

func formatMessages(msgs []api.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		sb.WriteString(formatMessage(msg))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s",
		msg.Location.File,
		msg.Location.Line,
		msg.Location.Column,
		msg.Text)
}
