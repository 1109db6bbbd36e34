package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/internal/dag"
	"github.com/leapstack-labs/barrel/internal/source"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to the re-export graph.
type GraphQuerier interface {
	Dependencies(string) []string
	Dependents(string) []string
	NodeCount() int
	EdgeCount() int
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "graph",
		Aliases: []string{"dag"},
		Short:   "Show the re-export graph of the manifest",
		Long: `Display the graph of modules the manifest re-exports, including
modules reached through nested export * statements.

Modules are grouped by level: level 0 re-exports nothing, and each
barrel sits one level above the deepest module it re-exports.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the graph
  barrel graph

  # Output as JSON
  barrel graph --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd)
		},
	}

	return cmd
}

func runGraph(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	doc, err := cmdCtx.LoadManifest(ctx)
	if err != nil {
		return err
	}

	graph, rootID, err := buildGraph(ctx, cmdCtx.NewSource(doc), doc.Manifest)
	if err != nil {
		return err
	}

	levels, err := graph.Levels()
	if err != nil {
		return fmt.Errorf("failed to get graph levels: %w", err)
	}

	label := func(id string) string {
		if id == rootID {
			return id
		}
		return relativeTo(doc.Manifest.Dir, id)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return graphJSON(r, doc.Manifest.Name, graph, levels, label)
	case output.ModeMarkdown:
		graphMarkdown(r, graph, levels, label)
	default:
		graphText(r, graph, levels, label)
	}
	return nil
}

// buildGraph looks up every manifest reference and records which module
// re-exports which. The manifest itself is the single top node.
func buildGraph(ctx context.Context, src source.Source, m *core.Manifest) (*dag.Graph, string, error) {
	rootID := m.Name
	if m.File != "" {
		rootID = filepath.Base(m.File)
	}

	graph := dag.NewGraph()
	graph.AddNode(rootID, m)

	for _, ref := range m.Modules {
		mod, err := src.Exports(ctx, m.Dir, ref.Path)
		if err != nil {
			return nil, "", fmt.Errorf("resolving %s: %w", ref.String(), err)
		}
		if err := graph.AddEdge(mod.ID, rootID); err != nil {
			return nil, "", err
		}
		for file, deps := range mod.Reexports {
			for _, dep := range deps {
				if err := graph.AddEdge(dep, file); err != nil {
					return nil, "", err
				}
			}
		}
	}
	return graph, rootID, nil
}

// relativeTo shortens absolute module paths for display.
func relativeTo(dir, id string) string {
	if dir == "" || !filepath.IsAbs(id) {
		return id
	}
	if rel, err := filepath.Rel(dir, id); err == nil {
		return rel
	}
	return id
}

func labels(ids []string, label func(string) string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = label(id)
	}
	return out
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, graph GraphQuerier, levels [][]string, label func(string) string) {
	styles := r.Styles()

	r.Header(1, "Re-export Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, id := range level {
			deps := graph.Dependencies(id)
			users := graph.Dependents(id)

			r.Printf("  %s\n", styles.Module.Render(label(id)))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("re-exports:"), strings.Join(labels(deps, label), ", "))
			}
			if len(users) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(labels(users, label), ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d modules, %d re-exports", graph.NodeCount(), graph.EdgeCount())))
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string, label func(string) string) {
	r.Println(output.FormatHeader(1, "Re-export Graph"))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Leaf modules)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, id := range level {
			deps := graph.Dependencies(id)
			users := graph.Dependents(id)

			r.Printf("- %s\n", label(id))
			if len(deps) > 0 {
				r.Printf("  - re-exports: %s\n", strings.Join(labels(deps, label), ", "))
			}
			if len(users) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(labels(users, label), ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Modules", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Re-exports", fmt.Sprintf("%d", graph.EdgeCount())))
}

// graphJSON outputs the graph in JSON format.
func graphJSON(r *output.Renderer, name string, graph GraphQuerier, levels [][]string, label func(string) string) error {
	out := output.GraphOutput{
		Manifest:   name,
		Levels:     make([]output.GraphLevel, 0, len(levels)),
		TotalNodes: graph.NodeCount(),
		TotalEdges: graph.EdgeCount(),
	}

	for i, level := range levels {
		gl := output.GraphLevel{Level: i, Nodes: make([]output.GraphNode, 0, len(level))}
		for _, id := range level {
			gl.Nodes = append(gl.Nodes, output.GraphNode{
				ID:        label(id),
				DependsOn: labels(graph.Dependencies(id), label),
				UsedBy:    labels(graph.Dependents(id), label),
			})
		}
		out.Levels = append(out.Levels, gl)
	}

	return r.JSON(out)
}
