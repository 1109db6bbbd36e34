// Package manifest reads and writes bundle manifests.
//
// Two input formats are supported: a YAML manifest and a TypeScript or
// JavaScript barrel file made only of `export * from` and
// `export { ... } from` statements. Both produce a core.Manifest.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/barrel/internal/jsparse"
	"github.com/leapstack-labs/barrel/pkg/core"
	"gopkg.in/yaml.v3"
)

// Document is a loaded manifest plus optional inline module fixtures.
type Document struct {
	Manifest *core.Manifest
	// Fixtures maps module paths to their export lists. When present the
	// manifest can be resolved without reading any module source.
	Fixtures map[string][]string
}

// IsBarrel reports whether path is a script barrel rather than a YAML manifest.
func IsBarrel(path string) bool {
	return jsparse.Supported(path)
}

// Load reads a manifest file, choosing the format by extension.
// Relative module paths are anchored at the manifest's directory.
func Load(ctx context.Context, path string) (*Document, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: manifest path comes from config or flags
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("manifest file does not exist: %s\nHint: set `manifest` in barrel.yaml or pass --manifest", path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var doc *Document
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".yaml" || ext == ".yml":
		doc, err = ParseYAML(path, bytes.NewReader(content))
	case IsBarrel(path):
		var m *core.Manifest
		m, err = ParseBarrel(ctx, path, content)
		doc = &Document{Manifest: m}
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q (expected .yaml, .yml, .ts, .tsx, .js)", ext)
	}
	if err != nil {
		return nil, err
	}

	if abs, err := filepath.Abs(path); err == nil {
		doc.Manifest.Dir = filepath.Dir(abs)
	} else {
		doc.Manifest.Dir = filepath.Dir(path)
	}
	return doc, nil
}

// yamlManifest is the on-disk YAML shape.
type yamlManifest struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	Modules     []yamlModule        `yaml:"modules"`
	Fixtures    map[string][]string `yaml:"fixtures,omitempty"`
}

type yamlModule struct {
	Path  string     `yaml:"path"`
	Mode  string     `yaml:"mode,omitempty"`
	Names []yamlName `yaml:"names,omitempty"`
}

// yamlName accepts "Name", "Name as Alias" or {name: Name, as: Alias}.
type yamlName core.NamedExport

func (n *yamlName) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		name, alias, _ := strings.Cut(value.Value, " as ")
		n.Name = strings.TrimSpace(name)
		n.As = strings.TrimSpace(alias)
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			switch key.Value {
			case "name":
				n.Name = val.Value
			case "as":
				n.As = val.Value
			default:
				return fmt.Errorf("line %d: unknown field %q in export name, expected name or as", key.Line, key.Value)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: export name must be a string or a {name, as} mapping", value.Line)
	}
}

func (n yamlName) MarshalYAML() (any, error) {
	if n.As == "" || n.As == n.Name {
		return n.Name, nil
	}
	return map[string]string{"name": n.Name, "as": n.As}, nil
}

// ParseYAML decodes a YAML manifest. Unknown fields are rejected.
func ParseYAML(file string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &core.ManifestError{File: file, Message: "manifest is empty"}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &core.ManifestError{File: file, Message: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var ym yamlManifest
	if err := dec.Decode(&ym); err != nil {
		return nil, &core.ManifestError{File: file, Message: err.Error()}
	}

	lines := moduleLines(&root)
	m := &core.Manifest{
		Name:        ym.Name,
		Description: ym.Description,
		File:        file,
	}
	if m.Name == "" {
		m.Name = nameFromFile(file)
	}

	for i, ymod := range ym.Modules {
		ref := core.ModuleRef{Path: ymod.Path, Mode: core.ExportMode(ymod.Mode)}
		if i < len(lines) {
			ref.Line = lines[i]
		}
		for _, n := range ymod.Names {
			ref.Names = append(ref.Names, core.NamedExport(n))
		}
		if ref.Mode == "" {
			ref.Mode = core.ModeWildcard
			if len(ref.Names) > 0 {
				ref.Mode = core.ModeNamed
			}
		}
		m.Modules = append(m.Modules, ref)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &Document{Manifest: m, Fixtures: ym.Fixtures}, nil
}

// moduleLines returns the source line of each entry under `modules`.
func moduleLines(root *yaml.Node) []int {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "modules" {
			continue
		}
		seq := doc.Content[i+1]
		lines := make([]int, len(seq.Content))
		for j, item := range seq.Content {
			lines[j] = item.Line
		}
		return lines
	}
	return nil
}

// ParseBarrel turns a barrel source file into a manifest. Only re-export
// statements are allowed; anything else is reported with its line.
func ParseBarrel(ctx context.Context, file string, content []byte) (*core.Manifest, error) {
	f, err := jsparse.Parse(ctx, file, content)
	if err != nil {
		return nil, &core.ManifestError{File: file, Message: err.Error()}
	}
	if f.SyntaxErrorLine > 0 {
		return nil, &core.ManifestError{File: file, Line: f.SyntaxErrorLine, Message: "syntax error"}
	}

	m := &core.Manifest{
		Name:        nameFromFile(file),
		Description: f.LeadingComment,
		File:        file,
	}

	for _, st := range f.Statements {
		switch st.Kind {
		case jsparse.KindExportStar:
			m.Modules = append(m.Modules, core.ModuleRef{
				Path: st.Source,
				Mode: core.ModeWildcard,
				Line: st.Line,
			})
		case jsparse.KindExportFrom:
			ref := core.ModuleRef{Path: st.Source, Mode: core.ModeNamed, Line: st.Line}
			for _, sp := range st.Specifiers {
				ne := core.NamedExport{Name: sp.Local}
				if sp.Exported != sp.Local {
					ne.As = sp.Exported
				}
				ref.Names = append(ref.Names, ne)
			}
			m.Modules = append(m.Modules, ref)
		default:
			return nil, &core.ManifestError{
				File:    file,
				Line:    st.Line,
				Message: fmt.Sprintf("unsupported statement in barrel (%s): only `export * from` and `export { ... } from` are allowed", st.Kind),
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func nameFromFile(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
