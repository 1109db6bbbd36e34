package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/leapstack-labs/barrel/internal/state"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/spf13/cobra"
)

// ErrSurfaceChanged is returned by diff --exit-code when the surfaces differ.
var ErrSurfaceChanged = errors.New("export surface changed")

// workingLabel names the surface resolved from the files on disk.
const workingLabel = "working"

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	var (
		working  bool
		exitCode bool
	)

	cmd := &cobra.Command{
		Use:   "diff [old-build] [new-build]",
		Short: "Compare export surfaces of recorded builds",
		Long: `Compare two export surfaces and list the symbols that were added,
removed, or now point at a different module or symbol.

  no arguments   the last two successful builds of the manifest
  one build      that build against the working surface
  two builds     the two builds

With --working the latest successful build is compared against the
surface resolved from the files on disk.`,
		Example: `  # What changed between the last two builds
  barrel diff

  # What changed since the last build
  barrel diff --working

  # Fail when the surface changed (CI)
  barrel diff --working --exit-code`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args, working, exitCode)
		},
	}

	cmd.Flags().BoolVar(&working, "working", false, "Compare the latest build with the current files")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with an error when the surfaces differ")

	return cmd
}

// labeledSurface is a surface and where it came from.
type labeledSurface struct {
	label   string
	surface *core.Surface
}

func runDiff(cmd *cobra.Command, args []string, working, exitCode bool) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	store, err := cmdCtx.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var from, to labeledSurface
	switch {
	case len(args) == 2:
		if from, err = storedSurface(ctx, store, args[0]); err != nil {
			return err
		}
		if to, err = storedSurface(ctx, store, args[1]); err != nil {
			return err
		}
	case len(args) == 1:
		if from, err = storedSurface(ctx, store, args[0]); err != nil {
			return err
		}
		if to, err = workingSurface(ctx, cmdCtx); err != nil {
			return err
		}
	default:
		if from, to, err = defaultPair(ctx, cmdCtx, store, working); err != nil {
			return err
		}
	}

	d := core.Diff(from.surface, to.surface)
	out := diffOutput(from.label, to.label, d)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if err := r.JSON(out); err != nil {
			return err
		}
	default:
		diffText(r, out)
	}

	if exitCode && !d.Empty() {
		return ErrSurfaceChanged
	}
	return nil
}

// defaultPair picks the surfaces compared when no build ids are given.
func defaultPair(ctx context.Context, cmdCtx *CommandContext, store *state.SQLiteStore, working bool) (labeledSurface, labeledSurface, error) {
	doc, err := cmdCtx.LoadManifest(ctx)
	if err != nil {
		return labeledSurface{}, labeledSurface{}, err
	}
	name := doc.Manifest.Name

	if working {
		latest, err := store.LatestBuild(ctx, name)
		if err != nil {
			return labeledSurface{}, labeledSurface{}, err
		}
		from, err := storedSurface(ctx, store, latest.ID)
		if err != nil {
			return labeledSurface{}, labeledSurface{}, err
		}
		to, err := workingSurface(ctx, cmdCtx)
		return from, to, err
	}

	builds, err := store.ListBuilds(ctx, core.BuildFilter{Manifest: name, Status: core.BuildStatusSucceeded, Limit: 2})
	if err != nil {
		return labeledSurface{}, labeledSurface{}, err
	}
	if len(builds) < 2 {
		return labeledSurface{}, labeledSurface{}, fmt.Errorf("need two successful builds of %s to compare, found %d (try --working)", name, len(builds))
	}
	// ListBuilds is newest first.
	from, err := storedSurface(ctx, store, builds[1].ID)
	if err != nil {
		return labeledSurface{}, labeledSurface{}, err
	}
	to, err := storedSurface(ctx, store, builds[0].ID)
	return from, to, err
}

func storedSurface(ctx context.Context, store core.BuildStore, id string) (labeledSurface, error) {
	rec, err := store.GetBuild(ctx, id)
	if err != nil {
		return labeledSurface{}, err
	}
	s, err := store.Surface(ctx, rec.ID)
	if err != nil {
		return labeledSurface{}, err
	}
	return labeledSurface{label: shortID(rec.ID), surface: s}, nil
}

func workingSurface(ctx context.Context, cmdCtx *CommandContext) (labeledSurface, error) {
	_, s, err := cmdCtx.Resolve(ctx)
	if err != nil {
		return labeledSurface{}, err
	}
	return labeledSurface{label: workingLabel, surface: s}, nil
}

func diffOutput(from, to string, d *core.SurfaceDiff) output.DiffOutput {
	out := output.DiffOutput{
		From:    from,
		To:      to,
		Added:   d.Added,
		Removed: d.Removed,
		Changed: make([]output.ChangedSymbol, 0, len(d.Changed)),
	}
	if out.Added == nil {
		out.Added = []core.Binding{}
	}
	if out.Removed == nil {
		out.Removed = []core.Binding{}
	}
	for _, pair := range d.Changed {
		out.Changed = append(out.Changed, output.ChangedSymbol{Name: pair[1].Name, Old: pair[0], New: pair[1]})
	}
	return out
}

// diffText prints a unified-diff style listing.
func diffText(r *output.Renderer, out output.DiffOutput) {
	styles := r.Styles()

	r.Println(styles.Header2.Render(fmt.Sprintf("%s..%s", out.From, out.To)))
	if len(out.Added)+len(out.Removed)+len(out.Changed) == 0 {
		r.Println("no changes")
		return
	}

	for _, b := range out.Removed {
		r.Println(styles.Error.Render("- " + b.String()))
	}
	for _, b := range out.Added {
		r.Println(styles.Success.Render("+ " + b.String()))
	}
	for _, c := range out.Changed {
		r.Println(styles.Warning.Render(fmt.Sprintf("~ %s: %s -> %s", c.Name, bindingSource(c.Old), bindingSource(c.New))))
	}

	r.Println("")
	r.Println(styles.Muted.Render(fmt.Sprintf("%d added, %d removed, %d changed", len(out.Added), len(out.Removed), len(out.Changed))))
}
