// Package source looks up the exported symbol names of the modules a
// manifest references.
//
// The resolver only needs to know which names a module exports, so every
// implementation reduces a module to an ordered list of names:
//
//	MapSource    in-memory fixtures, used by tests and dry runs
//	FSSource     TypeScript/JavaScript files parsed with tree-sitter
//	CachedSource content-hash cache in front of another Source
package source

import (
	"context"
	"path"
	"slices"
	"sort"

	"github.com/leapstack-labs/barrel/pkg/core"
)

// Module is a resolved module and the names it exports.
type Module struct {
	// ID identifies the module independent of how it was referenced:
	// the absolute file path for FSSource, the map key for MapSource.
	ID string
	// Path is the specifier the module was requested with.
	Path string
	// Exports are the module's exported names in declaration order.
	// A `default` export is included when the module has one.
	Exports []string
	// Files are every file read to compute Exports, including files
	// reached through nested `export * from` and named re-exports.
	// The module's own file is last.
	Files []string
	// Reexports maps a file to the files it star-re-exports, in order.
	// Only files with at least one `export * from` appear.
	Reexports map[string][]string
	// Probed are candidate paths checked and found missing while resolving
	// the module and its re-exports. Creating one can change Exports.
	Probed []string
}

// Has reports whether the module exports name.
func (m *Module) Has(name string) bool {
	return slices.Contains(m.Exports, name)
}

// Source resolves a module specifier, relative to dir, to its exports.
// Implementations must be safe for concurrent use and must return a
// *core.ModuleNotFoundError when the module cannot be located.
type Source interface {
	Exports(ctx context.Context, dir, specifier string) (*Module, error)
}

// MapSource serves exports from memory. Keys are module specifiers as
// written in the manifest; dir is ignored.
type MapSource map[string][]string

// Exports implements Source.
func (s MapSource) Exports(ctx context.Context, dir, specifier string) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, ok := s[specifier]
	if !ok {
		names, ok = s[path.Clean(specifier)]
	}
	if !ok {
		return nil, &core.ModuleNotFoundError{Path: specifier, Dir: dir}
	}
	return &Module{ID: specifier, Path: specifier, Exports: slices.Clone(names)}, nil
}

// Paths returns the known specifiers, sorted.
func (s MapSource) Paths() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
