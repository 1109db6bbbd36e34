package core

import (
	"fmt"
	"sort"
	"strings"
)

// Binding maps one final exported name to the module symbol it forwards.
type Binding struct {
	// Name is the final name on the bundle surface.
	Name string `json:"name"`
	// Module is the module path as declared in the manifest.
	Module string `json:"module"`
	// Original is the symbol name inside Module.
	Original string `json:"original"`
	// Ref is the index of the declaring module reference in the manifest.
	Ref int `json:"ref"`
}

// Renamed reports whether the binding forwards the symbol under a different name.
func (b Binding) Renamed() bool {
	return b.Name != b.Original
}

func (b Binding) String() string {
	if b.Renamed() {
		return fmt.Sprintf("%s: %s.%s", b.Name, b.Module, b.Original)
	}
	return fmt.Sprintf("%s: %s", b.Name, b.Module)
}

// Surface is the resolved export surface of a manifest.
// Bindings are ordered by manifest reference order, then by the order
// the module declares its exports (or lists them, for named references).
type Surface struct {
	Manifest string    `json:"manifest"`
	Bindings []Binding `json:"bindings"`
	// Modules holds the resolved module id for every manifest reference, by index.
	Modules []string `json:"modules,omitempty"`

	index map[string]int
}

// NewSurface builds a surface from ordered bindings.
// It does not check for duplicate names; the resolver does that.
func NewSurface(manifest string, bindings []Binding, modules []string) *Surface {
	s := &Surface{
		Manifest: manifest,
		Bindings: bindings,
		Modules:  modules,
	}
	s.reindex()
	return s
}

func (s *Surface) reindex() {
	s.index = make(map[string]int, len(s.Bindings))
	for i, b := range s.Bindings {
		if _, exists := s.index[b.Name]; !exists {
			s.index[b.Name] = i
		}
	}
}

// Len returns the number of exported symbols.
func (s *Surface) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bindings)
}

// Lookup returns the binding for a final exported name.
func (s *Surface) Lookup(name string) (Binding, bool) {
	if s == nil {
		return Binding{}, false
	}
	if s.index == nil {
		s.reindex()
	}
	i, ok := s.index[name]
	if !ok {
		return Binding{}, false
	}
	return s.Bindings[i], true
}

// Names returns the final exported names in surface order.
func (s *Surface) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Bindings))
	for i, b := range s.Bindings {
		names[i] = b.Name
	}
	return names
}

// ByModule groups bindings by module path, keeping manifest order for both
// modules and bindings.
func (s *Surface) ByModule() []ModuleBindings {
	if s == nil {
		return nil
	}

	var groups []ModuleBindings
	pos := make(map[string]int)
	for _, b := range s.Bindings {
		i, ok := pos[b.Module]
		if !ok {
			i = len(groups)
			pos[b.Module] = i
			groups = append(groups, ModuleBindings{Module: b.Module})
		}
		groups[i].Bindings = append(groups[i].Bindings, b)
	}
	return groups
}

// ModuleBindings is the slice of a surface contributed by one module.
type ModuleBindings struct {
	Module   string
	Bindings []Binding
}

// Canonical returns a stable, line-oriented text form of the surface.
// Two surfaces are equal exactly when their canonical forms are equal.
func (s *Surface) Canonical() []byte {
	var sb strings.Builder
	sb.WriteString("manifest ")
	sb.WriteString(s.Manifest)
	sb.WriteByte('\n')
	for _, b := range s.Bindings {
		sb.WriteString(b.Name)
		sb.WriteByte('\t')
		sb.WriteString(b.Module)
		sb.WriteByte('\t')
		sb.WriteString(b.Original)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// SurfaceDiff describes how an export surface changed between two resolutions.
type SurfaceDiff struct {
	Added   []Binding `json:"added"`
	Removed []Binding `json:"removed"`
	// Changed holds symbols whose name stayed but whose target moved, as [old, new] pairs.
	Changed [][2]Binding `json:"changed"`
}

// Empty reports whether the two surfaces export the same bindings.
func (d *SurfaceDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares two surfaces by final name. Results are sorted by name.
func Diff(oldSurface, newSurface *Surface) *SurfaceDiff {
	d := &SurfaceDiff{}

	oldByName := make(map[string]Binding)
	if oldSurface != nil {
		for _, b := range oldSurface.Bindings {
			oldByName[b.Name] = b
		}
	}
	newByName := make(map[string]Binding)
	if newSurface != nil {
		for _, b := range newSurface.Bindings {
			newByName[b.Name] = b
		}
	}

	for name, nb := range newByName {
		ob, ok := oldByName[name]
		switch {
		case !ok:
			d.Added = append(d.Added, nb)
		case ob.Module != nb.Module || ob.Original != nb.Original:
			d.Changed = append(d.Changed, [2]Binding{ob, nb})
		}
	}
	for name, ob := range oldByName {
		if _, ok := newByName[name]; !ok {
			d.Removed = append(d.Removed, ob)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Name < d.Added[j].Name })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Name < d.Removed[j].Name })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i][1].Name < d.Changed[j][1].Name })

	return d
}
