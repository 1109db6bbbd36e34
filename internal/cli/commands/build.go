package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/barrel/internal/bundle"
	"github.com/leapstack-labs/barrel/internal/cli/config"
	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// maxInputRows caps the bundle composition table.
const maxInputRows = 10

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	var dryRun, noHistory bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve the manifest and bundle it with esbuild",
		Long: `Resolve the manifest, generate an explicit entry point from the
resolved surface and bundle it with esbuild.

The bundle's exports are checked against the resolved surface, so a
bundle never exports a name the manifest check did not see. Every build,
successful or not, is recorded in the build history.`,
		Example: `  # Build the configured manifest into out_dir
  barrel build

  # Minified IIFE bundle with a sourcemap
  barrel build --format iife --minify --sourcemap

  # Build in memory only and show what would be written
  barrel build --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuildCommand(cmd, dryRun, noHistory)
		},
	}

	addBuildFlags(cmd.Flags())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Bundle in memory without writing files")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the build in the history database")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.Formats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("platform", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.Platforms, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// addBuildFlags registers the bundler flags that override build.* settings.
func addBuildFlags(fs *pflag.FlagSet) {
	fs.String("format", "", "Output format (esm|iife|cjs)")
	fs.String("target", "", "Language target, e.g. es2020 or esnext")
	fs.String("platform", "", "Target platform (browser|node|neutral)")
	fs.Bool("minify", false, "Minify the bundle")
	fs.Bool("sourcemap", false, "Write a linked sourcemap")
	fs.StringSlice("external", nil, "Import paths to leave out of the bundle")
	fs.String("global-name", "", "Global variable for the iife format")

	for name, key := range map[string]string{
		"format":      "build.format",
		"target":      "build.target",
		"platform":    "build.platform",
		"minify":      "build.minify",
		"sourcemap":   "build.sourcemap",
		"external":    "build.external",
		"global-name": "build.global_name",
	} {
		config.BindFlag(fs, name, key)
	}
}

func runBuildCommand(cmd *cobra.Command, dryRun, noHistory bool) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	start := time.Now()

	doc, surface, resolveErr := cmdCtx.Resolve(ctx)
	if doc == nil {
		return resolveErr
	}

	var store core.BuildStore
	if !noHistory {
		s, err := cmdCtx.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	opts := bundle.Options{
		BuildConfig: cmdCtx.Cfg.Build,
		OutDir:      cmdCtx.Cfg.OutDir,
		Write:       !dryRun,
		Logger:      cmdCtx.Logger,
	}
	rec, res, err := runBuild(ctx, cmdCtx.Logger, store, doc.Manifest, surface, resolveErr, opts)
	out := buildOutput(rec, res, surface, time.Since(start))

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if jsonErr := r.JSON(out); jsonErr != nil {
			return jsonErr
		}
	case output.ModeMarkdown:
		if err == nil {
			buildMarkdown(r, out, dryRun)
		}
	default:
		if err == nil {
			buildText(r, out, dryRun)
		}
	}
	return err
}

// runBuild bundles a resolved surface and records the outcome in store
// when store is non-nil. A resolve error is recorded as a failed build.
func runBuild(ctx context.Context, logger *slog.Logger, store core.BuildStore, m *core.Manifest, s *core.Surface, resolveErr error, opts bundle.Options) (*core.BuildRecord, *bundle.Result, error) {
	var res *bundle.Result
	err := resolveErr
	if err == nil {
		res, err = bundle.Build(ctx, m, s, opts)
	}

	rec := &core.BuildRecord{Manifest: m.Name, Status: core.BuildStatusSucceeded}
	if err != nil {
		rec.Status = core.BuildStatusFailed
		rec.Error = err.Error()
	}
	if res != nil {
		rec.OutputBytes = len(res.JS)
	}

	if store != nil {
		if recErr := store.RecordBuild(ctx, rec, s); recErr != nil {
			logger.Warn("failed to record build", slog.Any("error", recErr))
		} else {
			logger.Debug("build recorded", slog.String("id", rec.ID), slog.String("status", string(rec.Status)))
		}
	}
	return rec, res, err
}

func buildOutput(rec *core.BuildRecord, res *bundle.Result, s *core.Surface, elapsed time.Duration) output.BuildOutput {
	out := output.BuildOutput{
		ID:         rec.ID,
		Manifest:   rec.Manifest,
		Status:     rec.Status,
		Bytes:      rec.OutputBytes,
		Symbols:    s.Len(),
		Error:      rec.Error,
		DurationMS: elapsed.Milliseconds(),
	}
	if s != nil {
		out.Digest = manifest.Digest(s)
	}
	if res == nil {
		return out
	}

	out.Output = res.OutputPath
	out.Warnings = res.Warnings
	if res.Metafile != nil {
		a := res.Metafile.Analyze()
		for _, in := range a.Inputs {
			out.Inputs = append(out.Inputs, output.InputInfo{Path: in.Path, Bytes: in.BytesInOutput})
		}
		out.External = a.ExternalImports
	}
	return out
}

func buildText(r *output.Renderer, out output.BuildOutput, dryRun bool) {
	styles := r.Styles()

	suffix := ""
	if dryRun {
		suffix = " (dry run, nothing written)"
	}
	r.Success(fmt.Sprintf("Built %s -> %s (%s, %d symbols) in %dms%s",
		out.Manifest, displayPath(out.Output), humanize.Bytes(uint64(out.Bytes)), out.Symbols, out.DurationMS, suffix)) //nolint:gosec // byte counts are never negative
	for _, w := range out.Warnings {
		r.Warning(w)
	}

	if len(out.Inputs) > 0 {
		r.Println("")
		r.Table(inputTable(out.Inputs, out.Bytes))
	}
	if len(out.External) > 0 {
		r.StatusLine("external", fmt.Sprintf("%v", out.External))
	}
	if out.ID != "" {
		r.Println(styles.Muted.Render("recorded as build " + shortID(out.ID)))
	}
}

func buildMarkdown(r *output.Renderer, out output.BuildOutput, dryRun bool) {
	r.Println(output.FormatHeader(1, "Build: "+out.Manifest))
	r.Println("")
	r.Println(output.FormatKeyValue("Status", string(out.Status)))
	r.Println(output.FormatKeyValue("Output", displayPath(out.Output)))
	r.Println(output.FormatKeyValue("Size", humanize.Bytes(uint64(out.Bytes)))) //nolint:gosec // byte counts are never negative
	r.Println(output.FormatKeyValue("Symbols", strconv.Itoa(out.Symbols)))
	r.Println(output.FormatKeyValue("Duration", fmt.Sprintf("%dms", out.DurationMS)))
	if dryRun {
		r.Println(output.FormatKeyValue("Written", "no (dry run)"))
	}
	if out.ID != "" {
		r.Println(output.FormatKeyValue("Build ID", out.ID))
	}
	for _, w := range out.Warnings {
		r.Println(output.FormatKeyValue("Warning", w))
	}

	if len(out.Inputs) > 0 {
		r.Println("")
		r.Println(output.FormatHeader(2, "Composition"))
		r.Table(inputTable(out.Inputs, out.Bytes))
	}
}

func inputTable(inputs []output.InputInfo, total int) output.Table {
	t := output.Table{Header: []string{"Input", "Size", "Share"}}
	for i, in := range inputs {
		if i == maxInputRows {
			t.Rows = append(t.Rows, []string{fmt.Sprintf("... %d more", len(inputs)-maxInputRows), "", ""})
			break
		}
		share := "-"
		if total > 0 {
			share = fmt.Sprintf("%.1f%%", float64(in.Bytes)/float64(total)*100)
		}
		t.Rows = append(t.Rows, []string{in.Path, humanize.Bytes(uint64(in.Bytes)), share}) //nolint:gosec // byte counts are never negative
	}
	return t
}

// displayPath shortens p relative to the working directory when possible.
func displayPath(p string) string {
	if !filepath.IsAbs(p) {
		return p
	}
	if rel, err := filepath.Rel(workingDir(), p); err == nil && !filepath.IsAbs(rel) && len(rel) < len(p) {
		return rel
	}
	return p
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
