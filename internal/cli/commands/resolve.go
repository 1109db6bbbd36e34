package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	"github.com/spf13/cobra"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	var namesOnly bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the manifest and print its export surface",
		Long: `Resolve every module reference of the manifest and print the resulting
export surface: each exported name and the module symbol it forwards.

Resolution fails when a module cannot be found, a named symbol does not
exist, or two references export the same name.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Print the surface of the configured manifest
  barrel resolve

  # Resolve another manifest as JSON
  barrel resolve -m web/ts/entry/admins.ts -o json

  # One exported name per line
  barrel resolve --names`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResolve(cmd, namesOnly)
		},
	}

	cmd.Flags().BoolVar(&namesOnly, "names", false, "Print only the exported names, one per line")

	return cmd
}

func runResolve(cmd *cobra.Command, namesOnly bool) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	doc, surface, err := cmdCtx.Resolve(cmd.Context())
	if err != nil {
		return err
	}
	m := doc.Manifest

	if namesOnly {
		for _, name := range surface.Names() {
			r.Println(name)
		}
		return nil
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(surfaceOutput(m, surface))
	case output.ModeMarkdown:
		resolveMarkdown(r, m, surface)
	default:
		resolveText(r, m, surface)
	}
	return nil
}

// surfaceOutput builds the JSON shape of a surface.
func surfaceOutput(m *core.Manifest, s *core.Surface) output.SurfaceOutput {
	out := output.SurfaceOutput{
		Manifest: m.Name,
		File:     m.File,
		Digest:   manifest.Digest(s),
		Symbols:  s.Len(),
		Modules:  make([]output.ModuleOutput, len(m.Modules)),
		Bindings: s.Bindings,
	}
	for i, ref := range m.Modules {
		mo := output.ModuleOutput{Path: ref.Path, Mode: string(ref.Mode), Symbols: []string{}}
		if i < len(s.Modules) {
			mo.ID = s.Modules[i]
		}
		out.Modules[i] = mo
	}
	for _, b := range s.Bindings {
		out.Modules[b.Ref].Symbols = append(out.Modules[b.Ref].Symbols, b.Name)
	}
	return out
}

// resolveText outputs the surface as a styled table.
func resolveText(r *output.Renderer, m *core.Manifest, s *core.Surface) {
	styles := r.Styles()

	r.Header(1, fmt.Sprintf("Export surface: %s (%d symbols)", m.Name, s.Len()))

	t := output.Table{Header: []string{"#", "Symbol", "Module", "Original"}}
	for i, b := range s.Bindings {
		original := ""
		if b.Renamed() {
			original = b.Original
		}
		t.Rows = append(t.Rows, []string{strconv.Itoa(i + 1), b.Name, b.Module, original})
	}
	r.Table(t)

	r.Println("")
	r.Println(styles.Muted.Render(fmt.Sprintf("%d modules, digest %s", len(m.Modules), shortDigest(manifest.Digest(s)))))
}

// resolveMarkdown outputs the surface grouped by module reference.
func resolveMarkdown(r *output.Renderer, m *core.Manifest, s *core.Surface) {
	r.Println(output.FormatHeader(1, "Export surface: "+m.Name))
	r.Println("")

	byRef := make([][]core.Binding, len(m.Modules))
	for _, b := range s.Bindings {
		byRef[b.Ref] = append(byRef[b.Ref], b)
	}

	for i, ref := range m.Modules {
		r.Println(output.FormatHeader(2, fmt.Sprintf("`%s` (%s)", ref.Path, ref.Mode)))
		if len(byRef[i]) == 0 {
			r.Println("- (no symbols)")
		}
		for _, b := range byRef[i] {
			if b.Renamed() {
				r.Printf("- %s (from %s)\n", b.Name, b.Original)
				continue
			}
			r.Printf("- %s\n", b.Name)
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Modules", strconv.Itoa(len(m.Modules))))
	r.Println(output.FormatKeyValue("Symbols", strconv.Itoa(s.Len())))
	r.Println(output.FormatKeyValue("Digest", manifest.Digest(s)))
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
