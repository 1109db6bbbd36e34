package manifest

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/barrel/pkg/core"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

// GeneratedHeader marks files written by ExplicitBarrel.
const GeneratedHeader = "// Code generated by barrel. DO NOT EDIT."

// FormatYAML renders a manifest in the YAML manifest format.
func FormatYAML(m *core.Manifest) ([]byte, error) {
	ym := yamlManifest{Name: m.Name, Description: m.Description}
	for _, ref := range m.Modules {
		ymod := yamlModule{Path: ref.Path}
		for _, n := range ref.Names {
			ymod.Names = append(ymod.Names, yamlName(n))
		}
		ym.Modules = append(ym.Modules, ymod)
	}

	out, err := yaml.Marshal(&ym)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return out, nil
}

// FormatBarrel renders a manifest as a barrel source file with the same
// wildcard and named re-exports it declares.
func FormatBarrel(m *core.Manifest) []byte {
	var sb strings.Builder
	writeDescription(&sb, m.Description)
	for _, ref := range m.Modules {
		if ref.Mode == core.ModeWildcard {
			fmt.Fprintf(&sb, "export * from %s;\n", strconv.Quote(ref.Path))
			continue
		}
		parts := make([]string, len(ref.Names))
		for i, n := range ref.Names {
			parts[i] = n.String()
		}
		writeNamed(&sb, parts, ref.Path)
	}
	return []byte(sb.String())
}

// ExplicitBarrel renders the resolved surface as a barrel in which every
// wildcard is replaced by the enumerated list of symbols it resolved to.
// References keep their manifest order so modules still load in the
// declared sequence; a reference that contributed nothing becomes a bare
// import so its side effects still run. An empty `export {} from` clause
// would be dropped by the TypeScript loader as a type-only re-export.
func ExplicitBarrel(m *core.Manifest, s *core.Surface) []byte {
	byRef := make([][]core.Binding, len(m.Modules))
	for _, b := range s.Bindings {
		if b.Ref >= 0 && b.Ref < len(byRef) {
			byRef[b.Ref] = append(byRef[b.Ref], b)
		}
	}

	var sb strings.Builder
	sb.WriteString(GeneratedHeader)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "// Source: %s (%d symbols, digest %s)\n", sourceName(m), s.Len(), Digest(s)[:12])
	writeDescription(&sb, m.Description)

	for i, ref := range m.Modules {
		if len(byRef[i]) == 0 {
			fmt.Fprintf(&sb, "import %s;\n", strconv.Quote(ref.Path))
			continue
		}
		parts := make([]string, len(byRef[i]))
		for j, b := range byRef[i] {
			parts[j] = core.NamedExport{Name: b.Original, As: b.Name}.String()
		}
		writeNamed(&sb, parts, ref.Path)
	}
	return []byte(sb.String())
}

// Digest returns the hex BLAKE3 hash of the surface's canonical form.
func Digest(s *core.Surface) string {
	sum := blake3.Sum256(s.Canonical())
	return hex.EncodeToString(sum[:])
}

func writeNamed(sb *strings.Builder, parts []string, path string) {
	line := fmt.Sprintf("export { %s } from %s;\n", strings.Join(parts, ", "), strconv.Quote(path))
	if len(line) <= 100 {
		sb.WriteString(line)
		return
	}
	sb.WriteString("export {\n")
	for _, p := range parts {
		fmt.Fprintf(sb, "  %s,\n", p)
	}
	fmt.Fprintf(sb, "} from %s;\n", strconv.Quote(path))
}

func writeDescription(sb *strings.Builder, desc string) {
	if desc == "" {
		return
	}
	sb.WriteString("/* ")
	sb.WriteString(strings.ReplaceAll(desc, "*/", "* /"))
	sb.WriteString(" */\n")
}

func sourceName(m *core.Manifest) string {
	if m.File != "" {
		return m.File
	}
	return m.Name
}
