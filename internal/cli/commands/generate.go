package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/barrel/pkg/manifest"
	"github.com/spf13/cobra"
)

// ErrStale is returned by generate --check when the file on disk differs.
var ErrStale = errors.New("generated file is out of date")

// Generate formats.
const (
	GenerateTS     = "ts"
	GenerateBarrel = "barrel"
	GenerateYAML   = "yaml"
)

// NewGenerateCommand creates the generate command.
func NewGenerateCommand() *cobra.Command {
	var (
		format string
		out    string
		check  bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the manifest in another form",
		Long: `Write the manifest in one of three forms:

  ts      the explicit entry: every wildcard spelled out as the names it
          resolved to (requires a successful resolve)
  barrel  the declarative entry: export * / export { } statements
  yaml    the YAML manifest, e.g. to convert an existing barrel file

Without --out the result goes to standard output. With --check nothing is
written and the command fails when the file on disk is out of date.`,
		Example: `  # Print the explicit entry point
  barrel generate

  # Convert a TypeScript barrel to a YAML manifest
  barrel generate -m web/ts/entry/admins.ts --format yaml --out admins.yaml

  # Fail in CI when the committed entry is stale
  barrel generate --out web/ts/entry/admins.gen.ts --check`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, format, out, check)
		},
	}

	cmd.Flags().StringVar(&format, "format", GenerateTS, "Output form (ts|barrel|yaml)")
	cmd.Flags().StringVarP(&out, "out", "O", "", "Write to this file instead of standard output")
	cmd.Flags().BoolVar(&check, "check", false, "Compare with --out instead of writing it")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{GenerateTS, GenerateBarrel, GenerateYAML}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runGenerate(cmd *cobra.Command, format, out string, check bool) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	if check && out == "" {
		return fmt.Errorf("--check requires --out")
	}

	var content []byte
	switch format {
	case GenerateTS:
		doc, surface, err := cmdCtx.Resolve(ctx)
		if err != nil {
			return err
		}
		content = manifest.ExplicitBarrel(doc.Manifest, surface)
	case GenerateBarrel:
		doc, err := cmdCtx.LoadManifest(ctx)
		if err != nil {
			return err
		}
		content = manifest.FormatBarrel(doc.Manifest)
	case GenerateYAML:
		doc, err := cmdCtx.LoadManifest(ctx)
		if err != nil {
			return err
		}
		content, err = manifest.FormatYAML(doc.Manifest)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q, expected ts, barrel or yaml", format)
	}

	if out == "" {
		_, err := r.Writer().Write(content)
		return err
	}

	if check {
		existing, err := os.ReadFile(out) //nolint:gosec // G304: path from flags
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read %s: %w", out, err)
		}
		if !bytes.Equal(existing, content) {
			return fmt.Errorf("%w: %s (run `barrel generate --format %s --out %s`)", ErrStale, out, format, out)
		}
		r.Success(out + " is up to date")
		return nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, content, 0o644); err != nil { //nolint:gosec // generated source stays world-readable
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	cmdCtx.Logger.Debug("generated", "file", out, "format", format, "bytes", len(content))
	r.Success("wrote " + out)
	return nil
}
