package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/barrel/internal/dag"
	"github.com/leapstack-labs/barrel/internal/jsparse"
	"github.com/leapstack-labs/barrel/pkg/core"
)

// DefaultExtensions are tried, in order, when a specifier has no matching file.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

var errBareSpecifier = errors.New("bare package specifiers cannot be resolved statically, use a relative path")

// FSSource reads modules from disk.
type FSSource struct {
	// Extensions overrides DefaultExtensions.
	Extensions []string
	Logger     *slog.Logger
}

// NewFSSource creates a file system source.
func NewFSSource(logger *slog.Logger) *FSSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FSSource{Logger: logger}
}

func (s *FSSource) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *FSSource) extensions() []string {
	if len(s.Extensions) > 0 {
		return s.Extensions
	}
	return DefaultExtensions
}

// Resolve maps a specifier to a file the way a bundler does: the exact
// file, then the specifier with each extension, then an index file if the
// specifier names a directory.
func (s *FSSource) Resolve(dir, specifier string) (string, error) {
	file, _, err := s.resolve(dir, specifier)
	return file, err
}

// resolve is Resolve that also returns the candidates checked before the
// hit. Creating one of them later changes what the specifier resolves to.
func (s *FSSource) resolve(dir, specifier string) (string, []string, error) {
	if !isRelative(specifier) {
		return "", nil, &core.ModuleNotFoundError{Path: specifier, Dir: dir, Cause: errBareSpecifier}
	}

	base := specifier
	if !filepath.IsAbs(base) {
		base = filepath.Join(dir, filepath.FromSlash(specifier))
	}
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}

	candidates := []string{base}
	for _, ext := range s.extensions() {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range s.extensions() {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}

	var tried []string
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || info.IsDir() {
			tried = append(tried, c)
			continue
		}
		return c, tried, nil
	}

	return "", tried, &core.ModuleNotFoundError{Path: specifier, Dir: dir, Tried: tried}
}

func isRelative(specifier string) bool {
	return strings.HasPrefix(specifier, ".") || filepath.IsAbs(specifier)
}

// parsedFile is one file of a re-export chain.
type parsedFile struct {
	file *jsparse.File
	// stars are the resolved files of `export * from` statements, in order.
	stars []string
	// forwarded maps the sources of named re-exports to their files.
	// Sources that could not be resolved are absent.
	forwarded map[string]string
}

// origin identifies the binding behind an exported name so that two
// re-exports of the same binding are not treated as ambiguous.
type origin string

// exportTable is the computed surface of one file.
type exportTable struct {
	names   []string
	origins map[string]origin
}

// exportWalk holds the state of one Exports call.
type exportWalk struct {
	s      *FSSource
	graph  *dag.Graph
	files  map[string]*parsedFile
	tables map[string]*exportTable
	probed []string
}

func (w *exportWalk) resolve(dir, specifier string) (string, error) {
	file, tried, err := w.s.resolve(dir, specifier)
	w.probed = append(w.probed, tried...)
	return file, err
}

// Exports implements Source.
func (s *FSSource) Exports(ctx context.Context, dir, specifier string) (*Module, error) {
	w := &exportWalk{
		s:      s,
		graph:  dag.NewGraph(),
		files:  make(map[string]*parsedFile),
		tables: make(map[string]*exportTable),
	}

	file, err := w.resolve(dir, specifier)
	if err != nil {
		return nil, err
	}
	if err := w.discover(ctx, file); err != nil {
		return nil, err
	}

	// Only star edges are in the graph: a star cycle has no well-defined
	// surface, while named re-export cycles are legal.
	order, err := w.graph.Sort()
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", specifier, err)
	}

	table := w.table(file)

	visited := make([]string, 0, len(order))
	var reexports map[string][]string
	for _, n := range order {
		if n.ID != file {
			visited = append(visited, n.ID)
		}
		if stars := w.files[n.ID].stars; len(stars) > 0 {
			if reexports == nil {
				reexports = make(map[string][]string)
			}
			reexports[n.ID] = stars
		}
	}
	visited = append(visited, file)

	return &Module{
		ID:        file,
		Path:      specifier,
		Exports:   table.names,
		Files:     visited,
		Reexports: reexports,
		Probed:    w.probed,
	}, nil
}

// discover parses file and every file it re-exports from, recording
// edges from each star dependency to the file that re-exports it.
func (w *exportWalk) discover(ctx context.Context, file string) error {
	if _, seen := w.files[file]; seen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	content, err := os.ReadFile(file) //nolint:gosec // G304: path resolved from a manifest reference
	if err != nil {
		return &core.ModuleNotFoundError{Path: file, Cause: err}
	}
	parsed, err := jsparse.Parse(ctx, file, content)
	if err != nil {
		return err
	}
	if parsed.SyntaxErrorLine > 0 {
		w.s.logger().Warn("syntax error in module, exports may be incomplete",
			slog.String("file", file),
			slog.Int("line", parsed.SyntaxErrorLine))
	}

	pf := &parsedFile{file: parsed}
	w.files[file] = pf
	w.graph.AddNode(file, nil)
	dir := filepath.Dir(file)

	for _, src := range parsed.StarSources() {
		dep, err := w.resolve(dir, src)
		if err != nil {
			return fmt.Errorf("in %s: %w", file, err)
		}
		if err := w.graph.AddEdge(dep, file); err != nil {
			return err
		}
		pf.stars = append(pf.stars, dep)
		if err := w.discover(ctx, dep); err != nil {
			return err
		}
	}

	for _, src := range parsed.ForwardedSources() {
		if !isRelative(src) {
			continue
		}
		dep, err := w.resolve(dir, src)
		if err != nil || !jsparse.Supported(dep) {
			// The name stays exported with this file as its origin.
			w.s.logger().Debug("named re-export source not followed",
				slog.String("file", file),
				slog.String("source", src))
			continue
		}
		if pf.forwarded == nil {
			pf.forwarded = make(map[string]string)
		}
		pf.forwarded[src] = dep
		if err := w.discover(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// table computes the export table of file with ES module rules: names the
// file exports itself shadow star re-exports, star re-exports never
// forward `default`, and a name reached through two stars with different
// origins is ambiguous and not exported at all. A named re-export keeps
// the origin of the binding it forwards.
//
// Tables are memoized. While a file is being computed its entry is nil,
// which ends named re-export cycles.
func (w *exportWalk) table(file string) *exportTable {
	if t, ok := w.tables[file]; ok {
		return t
	}
	w.tables[file] = nil

	pf := w.files[file]
	t := &exportTable{origins: make(map[string]origin)}
	add := func(name string, o origin) {
		if name == "" {
			return
		}
		if _, dup := t.origins[name]; dup {
			return
		}
		t.names = append(t.names, name)
		t.origins[name] = o
	}

	for _, st := range pf.file.Statements {
		switch st.Kind {
		case jsparse.KindExportFrom:
			for _, sp := range st.Specifiers {
				add(sp.Exported, w.forwardedOrigin(file, pf, st.Source, sp.Local, sp.Exported))
			}
		case jsparse.KindExportLocal:
			for _, sp := range st.Specifiers {
				if src, imported, ok := pf.file.ImportOf(sp.Local); ok {
					add(sp.Exported, w.forwardedOrigin(file, pf, src, imported, sp.Exported))
					continue
				}
				add(sp.Exported, origin(file+"#"+sp.Local))
			}
		case jsparse.KindExportDeclaration, jsparse.KindExportNamespace, jsparse.KindExportDefault:
			for _, n := range st.Names {
				add(n, origin(file+"#"+n))
			}
		}
	}

	ambiguous := make(map[string]bool)
	var starNames []string
	starOrigins := make(map[string]origin)
	for _, dep := range pf.stars {
		depTable := w.table(dep)
		if depTable == nil {
			continue
		}
		for _, name := range depTable.names {
			if name == core.DefaultExport {
				continue
			}
			if _, local := t.origins[name]; local {
				continue
			}
			o := depTable.origins[name]
			prev, seen := starOrigins[name]
			switch {
			case !seen:
				starOrigins[name] = o
				starNames = append(starNames, name)
			case prev != o:
				ambiguous[name] = true
			}
		}
	}

	for _, name := range starNames {
		if ambiguous[name] {
			w.s.logger().Warn("ambiguous star re-export dropped",
				slog.String("file", file),
				slog.String("symbol", name))
			continue
		}
		t.names = append(t.names, name)
		t.origins[name] = starOrigins[name]
	}

	w.tables[file] = t
	return t
}

// forwardedOrigin returns the origin of the binding `imported` of source
// src as seen from file, which exports it as `exported`.
func (w *exportWalk) forwardedOrigin(file string, pf *parsedFile, src, imported, exported string) origin {
	if !isRelative(src) {
		return origin("module:" + src + "#" + imported)
	}
	if dep, ok := pf.forwarded[src]; ok {
		if dt := w.table(dep); dt != nil {
			if o, ok := dt.origins[imported]; ok {
				return o
			}
		}
	}
	return origin(file + "#" + exported)
}
