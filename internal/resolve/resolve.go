// Package resolve turns a bundle manifest into its export surface.
//
// Resolution happens in two phases. Module exports are looked up
// concurrently, then merged sequentially in manifest order. The merge is the
// only place that decides names, so the result never depends on goroutine
// scheduling.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/barrel/internal/source"
	"github.com/leapstack-labs/barrel/pkg/core"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel module lookups when none is configured.
const DefaultConcurrency = 8

// Observer is notified after every resolution. It is used for metrics.
type Observer interface {
	ObserveResolve(manifest string, surface *core.Surface, err error, elapsed time.Duration)
}

// Resolver resolves manifests against a module source.
type Resolver struct {
	source      source.Source
	logger      *slog.Logger
	concurrency int
	observer    Observer
}

// Config holds Resolver settings.
type Config struct {
	Source source.Source
	Logger *slog.Logger
	// Concurrency bounds parallel module lookups, DefaultConcurrency when <= 0.
	Concurrency int
	Observer    Observer
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{
		source:      cfg.Source,
		logger:      logger,
		concurrency: concurrency,
		observer:    cfg.Observer,
	}
}

// Resolve computes the export surface of m.
//
// It fails with a *core.ManifestError for malformed declarations, a
// *core.ModuleNotFoundError for the first unresolvable reference in
// manifest order, a *core.ExportNotFoundError when a named reference lists
// a missing symbol, and a *core.ExportCollisionError listing every final
// name claimed twice. No partial surface is returned on error.
func (r *Resolver) Resolve(ctx context.Context, m *core.Manifest) (surface *core.Surface, err error) {
	start := time.Now()
	defer func() {
		if r.observer != nil && m != nil {
			r.observer.ObserveResolve(m.Name, surface, err, time.Since(start))
		}
	}()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if r.source == nil {
		return nil, fmt.Errorf("resolver has no module source")
	}

	modules, err := r.lookup(ctx, m)
	if err != nil {
		return nil, err
	}

	surface, err = merge(m, modules)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved manifest",
		slog.String("manifest", m.Name),
		slog.Int("modules", len(m.Modules)),
		slog.Int("symbols", surface.Len()),
		slog.Duration("elapsed", time.Since(start)))

	return surface, nil
}

// lookup fetches every referenced module. Results and errors are stored
// by reference index and the first error in manifest order wins.
func (r *Resolver) lookup(ctx context.Context, m *core.Manifest) ([]*source.Module, error) {
	modules := make([]*source.Module, len(m.Modules))
	errs := make([]error, len(m.Modules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, ref := range m.Modules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			mod, err := r.source.Exports(gctx, m.Dir, ref.Path)
			if err != nil {
				errs[i] = err
				return nil
			}
			modules[i] = mod
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			r.logger.Debug("module lookup failed",
				slog.String("manifest", m.Name),
				slog.String("module", m.Modules[i].Path),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("resolving %s: %w", m.Modules[i].String(), err)
		}
	}
	return modules, nil
}

// merge folds module exports into bindings in manifest order.
func merge(m *core.Manifest, modules []*source.Module) (*core.Surface, error) {
	var (
		bindings   []core.Binding
		collisions []core.Collision
		ids        = make([]string, len(m.Modules))
		claimed    = make(map[string]int)
	)

	add := func(b core.Binding) {
		if i, dup := claimed[b.Name]; dup {
			collisions = append(collisions, core.Collision{Name: b.Name, First: bindings[i], Second: b})
			return
		}
		claimed[b.Name] = len(bindings)
		bindings = append(bindings, b)
	}

	for i, ref := range m.Modules {
		mod := modules[i]
		ids[i] = mod.ID

		switch ref.Mode {
		case core.ModeWildcard:
			for _, name := range mod.Exports {
				if name == core.DefaultExport {
					continue
				}
				add(core.Binding{Name: name, Module: ref.Path, Original: name, Ref: i})
			}
		case core.ModeNamed:
			for _, n := range ref.Names {
				if !mod.Has(n.Name) {
					return nil, &core.ExportNotFoundError{Module: ref.Path, Name: n.Name, Available: mod.Exports}
				}
				add(core.Binding{Name: n.FinalName(), Module: ref.Path, Original: n.Name, Ref: i})
			}
		}
	}

	if len(collisions) > 0 {
		return nil, &core.ExportCollisionError{Manifest: m.Name, Collisions: collisions}
	}
	return core.NewSurface(m.Name, bindings, ids), nil
}
