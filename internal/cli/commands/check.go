package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/internal/metrics"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	"github.com/spf13/cobra"
)

// ErrCheckFailed is returned by check after the failure has been reported,
// so the root command only sets the exit status.
var ErrCheckFailed = errors.New("manifest check failed")

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the manifest resolves without errors",
		Long: `Resolve the manifest and report whether it is valid, without bundling.

Every export collision is reported, not just the first one. The command
exits with a non-zero status when the manifest does not resolve, which
makes it suitable for CI and pre-commit hooks.`,
		Example: `  # Check the configured manifest
  barrel check

  # Machine-readable result
  barrel check -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd)
		},
	}

	return cmd
}

func runCheck(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	doc, surface, err := cmdCtx.Resolve(cmd.Context())
	if doc == nil {
		// The manifest itself could not be read.
		return err
	}

	result := output.CheckOutput{
		Manifest: doc.Manifest.Name,
		OK:       err == nil,
	}
	if err == nil {
		result.Symbols = surface.Len()
		result.Digest = manifest.Digest(surface)
	} else {
		result.Kind = metrics.ResultOf(err)
		result.Error = err.Error()
		var collisions *core.ExportCollisionError
		if errors.As(err, &collisions) {
			result.Collisions = collisions.Collisions
		}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if jsonErr := r.JSON(result); jsonErr != nil {
			return jsonErr
		}
	case output.ModeMarkdown:
		checkMarkdown(r, result)
	default:
		checkText(r, result)
	}

	if !result.OK {
		return ErrCheckFailed
	}
	return nil
}

func checkText(r *output.Renderer, res output.CheckOutput) {
	if res.OK {
		r.Success(fmt.Sprintf("%s resolves to %d symbols (digest %s)", res.Manifest, res.Symbols, shortDigest(res.Digest)))
		return
	}
	if len(res.Collisions) > 0 {
		r.Error(fmt.Sprintf("%s has %d export collision(s)", res.Manifest, len(res.Collisions)))
		for _, c := range res.Collisions {
			r.Printf("  %s\n", c.String())
		}
		return
	}
	r.Error(fmt.Sprintf("%s: %s", res.Manifest, res.Error))
}

func checkMarkdown(r *output.Renderer, res output.CheckOutput) {
	r.Println(output.FormatHeader(1, "Check: "+res.Manifest))
	r.Println("")
	if res.OK {
		r.Println(output.FormatKeyValue("Status", "ok"))
		r.Println(output.FormatKeyValue("Symbols", fmt.Sprintf("%d", res.Symbols)))
		r.Println(output.FormatKeyValue("Digest", res.Digest))
		return
	}

	r.Println(output.FormatKeyValue("Status", "failed"))
	r.Println(output.FormatKeyValue("Kind", res.Kind))
	if len(res.Collisions) == 0 {
		r.Println(output.FormatKeyValue("Error", res.Error))
		return
	}

	r.Println("")
	r.Println(output.FormatHeader(2, "Collisions"))
	r.Table(collisionTable(res.Collisions))
}

func collisionTable(collisions []core.Collision) output.Table {
	t := output.Table{Header: []string{"Symbol", "First", "Second"}}
	for _, c := range collisions {
		t.Rows = append(t.Rows, []string{c.Name, bindingSource(c.First), bindingSource(c.Second)})
	}
	return t
}

// bindingSource renders where a binding comes from: "./a" or "./a (renamed from foo)".
func bindingSource(b core.Binding) string {
	if b.Renamed() {
		return fmt.Sprintf("%s (renamed from %s)", b.Module, b.Original)
	}
	return b.Module
}
