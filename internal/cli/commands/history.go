package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/spf13/cobra"
)

// DefaultHistoryLimit is the number of builds listed when --limit is not set.
const DefaultHistoryLimit = 20

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var (
		name   string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history [build-id]",
		Short: "List recorded builds",
		Long: `List builds recorded by barrel build, newest first.

With a build id (or a unique prefix of one) the command shows that build
and the export surface it was built from.`,
		Example: `  # Recent builds
  barrel history

  # Failed builds of one manifest
  barrel history --name admins --status failed

  # Show one build
  barrel history 3f2a9c1e`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryShow(cmd, args[0])
			}
			return runHistory(cmd, core.BuildFilter{
				Manifest: name,
				Status:   core.BuildStatus(status),
				Limit:    limit,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only builds of this manifest name")
	cmd.Flags().StringVar(&status, "status", "", "Only builds with this status (succeeded|failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", DefaultHistoryLimit, "Maximum number of builds to list, 0 for all")

	_ = cmd.RegisterFlagCompletionFunc("status", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(core.BuildStatusSucceeded), string(core.BuildStatusFailed)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runHistory(cmd *cobra.Command, filter core.BuildFilter) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	switch filter.Status {
	case "", core.BuildStatusSucceeded, core.BuildStatusFailed:
	default:
		return fmt.Errorf("unknown status %q, expected succeeded or failed", filter.Status)
	}

	store, err := cmdCtx.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	builds, err := store.ListBuilds(ctx, filter)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if builds == nil {
			builds = []*core.BuildRecord{}
		}
		return r.JSON(output.HistoryOutput{Builds: builds})
	}

	if len(builds) == 0 {
		r.Println("No builds recorded yet. Run `barrel build` first.")
		return nil
	}

	r.Header(1, fmt.Sprintf("Build history (%d)", len(builds)))
	t := output.Table{Header: []string{"ID", "Manifest", "Status", "Symbols", "Size", "Digest", "When"}}
	for _, b := range builds {
		t.Rows = append(t.Rows, []string{
			shortID(b.ID),
			b.Manifest,
			statusText(r, b.Status),
			strconv.Itoa(b.SymbolCount),
			humanize.Bytes(uint64(b.OutputBytes)), //nolint:gosec // byte counts are never negative
			shortDigest(b.Digest),
			humanize.RelTime(b.CreatedAt, time.Now(), "ago", "from now"),
		})
	}
	r.Table(t)
	return nil
}

func runHistoryShow(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rec, err := store.GetBuild(ctx, id)
	if err != nil {
		return err
	}
	surface, err := store.Surface(ctx, rec.ID)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			*core.BuildRecord
			Surface *core.Surface `json:"surface,omitempty"`
		}{rec, surface})
	}

	r.Header(1, "Build "+rec.ID)
	r.Println(output.FormatKeyValue("Manifest", rec.Manifest))
	r.Println(output.FormatKeyValue("Status", statusText(r, rec.Status)))
	r.Println(output.FormatKeyValue("Created", rec.CreatedAt.Local().Format(time.RFC3339)))
	if rec.Digest != "" {
		r.Println(output.FormatKeyValue("Digest", rec.Digest))
	}
	r.Println(output.FormatKeyValue("Symbols", strconv.Itoa(rec.SymbolCount)))
	r.Println(output.FormatKeyValue("Modules", strconv.Itoa(rec.ModuleCount)))
	if rec.Error != "" {
		r.Println(output.FormatKeyValue("Error", rec.Error))
	}

	if surface.Len() > 0 {
		r.Println("")
		t := output.Table{Header: []string{"Symbol", "Module", "Original"}}
		for _, b := range surface.Bindings {
			original := ""
			if b.Renamed() {
				original = b.Original
			}
			t.Rows = append(t.Rows, []string{b.Name, b.Module, original})
		}
		r.Table(t)
	}
	return nil
}

func statusText(r *output.Renderer, s core.BuildStatus) string {
	if r.EffectiveMode() != output.ModeText {
		return string(s)
	}
	if s == core.BuildStatusFailed {
		return r.Styles().Error.Render(string(s))
	}
	return r.Styles().Success.Render(string(s))
}
