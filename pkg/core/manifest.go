package core

import (
	"fmt"
	"strings"
)

// ExportMode controls how a module reference forwards symbols.
type ExportMode string

// Export modes.
const (
	// ModeWildcard forwards every symbol the module exports (export * from).
	ModeWildcard ExportMode = "wildcard"
	// ModeNamed forwards an explicit subset, optionally renamed (export { a as b } from).
	ModeNamed ExportMode = "named"
)

// Valid reports whether m is a known export mode.
func (m ExportMode) Valid() bool {
	return m == ModeWildcard || m == ModeNamed
}

// DefaultExport is the name of the default export. Wildcard re-exports never forward it.
const DefaultExport = "default"

// NamedExport is one symbol of a named-subset re-export.
type NamedExport struct {
	// Name is the symbol as exported by the source module.
	Name string `json:"name" yaml:"name"`
	// As is the optional rename on the bundle surface.
	As string `json:"as,omitempty" yaml:"as,omitempty"`
}

// FinalName returns the name the symbol has on the bundle surface.
func (n NamedExport) FinalName() string {
	if n.As != "" {
		return n.As
	}
	return n.Name
}

func (n NamedExport) String() string {
	if n.As != "" && n.As != n.Name {
		return n.Name + " as " + n.As
	}
	return n.Name
}

// ModuleRef identifies a source module and how its exports are forwarded.
type ModuleRef struct {
	// Path is the module specifier, relative to the manifest directory.
	Path  string        `json:"path"`
	Mode  ExportMode    `json:"mode"`
	Names []NamedExport `json:"names,omitempty"`
	// Line is the 1-based declaration line in the manifest file, 0 if unknown.
	Line int `json:"-"`
}

func (r ModuleRef) String() string {
	if r.Mode == ModeNamed {
		parts := make([]string, len(r.Names))
		for i, n := range r.Names {
			parts[i] = n.String()
		}
		return fmt.Sprintf("{ %s } from %q", strings.Join(parts, ", "), r.Path)
	}
	return fmt.Sprintf("* from %q", r.Path)
}

// Manifest is the ordered list of module references that make up a bundle entry point.
type Manifest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// File is the manifest file the references were read from, if any.
	File string `json:"file,omitempty"`
	// Dir is the base directory relative module paths are resolved against.
	Dir     string      `json:"dir,omitempty"`
	Modules []ModuleRef `json:"modules"`
}

// Validate checks the manifest's static declarations.
// It does not touch the referenced modules.
func (m *Manifest) Validate() error {
	if m == nil {
		return &ManifestError{Message: "manifest is nil"}
	}
	if len(m.Modules) == 0 {
		return &ManifestError{File: m.File, Message: "manifest declares no modules"}
	}

	for i, ref := range m.Modules {
		fail := func(format string, args ...any) error {
			return &ManifestError{
				File:    m.File,
				Line:    ref.Line,
				Message: fmt.Sprintf("module #%d: ", i+1) + fmt.Sprintf(format, args...),
			}
		}

		if strings.TrimSpace(ref.Path) == "" {
			return fail("path is required")
		}
		if !ref.Mode.Valid() {
			return fail("invalid mode %q, must be one of: wildcard, named", ref.Mode)
		}

		switch ref.Mode {
		case ModeWildcard:
			if len(ref.Names) > 0 {
				return fail("wildcard re-export of %q cannot list names", ref.Path)
			}
		case ModeNamed:
			if len(ref.Names) == 0 {
				return fail("named re-export of %q lists no names", ref.Path)
			}
			seen := make(map[string]bool, len(ref.Names))
			for _, n := range ref.Names {
				if n.Name == "" {
					return fail("named re-export of %q has an empty symbol name", ref.Path)
				}
				if seen[n.FinalName()] {
					return fail("named re-export of %q lists %q twice", ref.Path, n.FinalName())
				}
				seen[n.FinalName()] = true
			}
		}
	}

	return nil
}
