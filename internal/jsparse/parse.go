// Package jsparse provides Tree-sitter based extraction of module-level
// export and import statements from TypeScript and JavaScript sources.
package jsparse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// StatementKind classifies a top-level statement.
type StatementKind string

// Statement kinds.
const (
	// KindExportStar is `export * from "x"`.
	KindExportStar StatementKind = "export_star"
	// KindExportNamespace is `export * as ns from "x"`.
	KindExportNamespace StatementKind = "export_namespace"
	// KindExportFrom is `export { a, b as c } from "x"`.
	KindExportFrom StatementKind = "export_from"
	// KindExportLocal is `export { a, b as c }` without a source.
	KindExportLocal StatementKind = "export_local"
	// KindExportDeclaration is `export const|function|class|... name`.
	KindExportDeclaration StatementKind = "export_declaration"
	// KindExportDefault is `export default ...`.
	KindExportDefault StatementKind = "export_default"
	// KindImport is any import statement.
	KindImport StatementKind = "import"
	// KindOther is any statement that is not an import or export.
	KindOther StatementKind = "other"
)

// Specifier is one entry of an export or import clause.
type Specifier struct {
	// Local is the name inside the source module (or local scope).
	// For imports it is the imported name, `default` for a default import.
	Local string
	// Exported is the name on this module's surface.
	// For imports it is the binding created in this file.
	Exported string
}

// Statement is a top-level statement relevant to the module surface.
type Statement struct {
	Kind StatementKind
	// Source is the module specifier for re-exports and imports.
	Source string
	// Specifiers holds clause entries for KindExportFrom, KindExportLocal
	// and KindImport.
	Specifiers []Specifier
	// Names holds the exported names for declarations, namespace exports and defaults.
	Names []string
	// TypeOnly is set for `export type { ... }` and `import type`.
	TypeOnly bool
	// Line is the 1-based start line.
	Line int
}

// File is a parsed source file.
type File struct {
	Path       string
	Statements []Statement
	// LeadingComment is the text of comments before the first statement.
	LeadingComment string
	// SyntaxErrorLine is the first line with a syntax error, 0 when the file parsed cleanly.
	SyntaxErrorLine int
}

// Exports returns the names this file exports by itself, in source order,
// without following `export * from` statements.
func (f *File) Exports() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	for _, st := range f.Statements {
		switch st.Kind {
		case KindExportFrom, KindExportLocal:
			for _, sp := range st.Specifiers {
				add(sp.Exported)
			}
		case KindExportDeclaration, KindExportNamespace, KindExportDefault:
			for _, n := range st.Names {
				add(n)
			}
		}
	}
	return names
}

// StarSources returns the sources of `export * from` statements in order.
func (f *File) StarSources() []string {
	var out []string
	for _, st := range f.Statements {
		if st.Kind == KindExportStar {
			out = append(out, st.Source)
		}
	}
	return out
}

// ImportOf reports the module and the name a local binding was imported
// from.
func (f *File) ImportOf(local string) (source, imported string, ok bool) {
	for _, st := range f.Statements {
		if st.Kind != KindImport {
			continue
		}
		for _, sp := range st.Specifiers {
			if sp.Exported == local {
				return st.Source, sp.Local, true
			}
		}
	}
	return "", "", false
}

// ForwardedSources returns the sources whose bindings this file exports
// again by name: `export { a } from "x"` and `import { a } from "x"`
// followed by `export { a }`. Sources are in order and unique.
func (f *File) ForwardedSources() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(src string) {
		if src != "" && !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}

	for _, st := range f.Statements {
		switch st.Kind {
		case KindExportFrom:
			add(st.Source)
		case KindExportLocal:
			for _, sp := range st.Specifiers {
				if src, _, ok := f.ImportOf(sp.Local); ok {
					add(src)
				}
			}
		}
	}
	return out
}

// languageFor picks the grammar for a file extension.
func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// Supported reports whether path has an extension this package can parse.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return true
	}
	return false
}

// Parse parses content and extracts its top-level statements.
// Parsers are not shared, so Parse is safe for concurrent use.
func Parse(ctx context.Context, path string, content []byte) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(languageFor(path))

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	f := &File{Path: path}
	if root.HasError() {
		f.SyntaxErrorLine = firstErrorLine(root)
	}

	var comments []string
	seenStatement := false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() == "comment" {
			if !seenStatement {
				comments = append(comments, cleanComment(n.Content(content)))
			}
			continue
		}
		seenStatement = true
		f.Statements = append(f.Statements, parseStatement(n, content))
	}
	f.LeadingComment = strings.TrimSpace(strings.Join(comments, "\n"))

	return f, nil
}

func parseStatement(n *sitter.Node, content []byte) Statement {
	st := Statement{Kind: KindOther, Line: int(n.StartPoint().Row) + 1}

	switch n.Type() {
	case "import_statement":
		st.Kind = KindImport
		if src := n.ChildByFieldName("source"); src != nil {
			st.Source = unquote(src.Content(content))
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "type":
				st.TypeOnly = true
			case "import_clause":
				st.Specifiers = parseImportClause(child, content)
			}
		}
		return st
	case "export_statement":
	default:
		return st
	}

	if src := n.ChildByFieldName("source"); src != nil {
		st.Source = unquote(src.Content(content))
	}

	var (
		hasStar    bool
		hasDefault bool
		afterAs    bool
	)
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "*":
			hasStar = true
		case "default":
			hasDefault = true
		case "type":
			st.TypeOnly = true
		case "as":
			afterAs = true
		case "identifier":
			// Older grammars spell `export * as ns` without a namespace_export node.
			if hasStar && afterAs {
				st.Names = append(st.Names, child.Content(content))
			}
		case "namespace_export":
			st.Kind = KindExportNamespace
			st.Names = append(st.Names, namespaceName(child, content))
		case "export_clause":
			st.Specifiers = parseExportClause(child, content)
		}
	}

	switch {
	case st.Kind == KindExportNamespace:
	case hasStar && len(st.Names) > 0:
		st.Kind = KindExportNamespace
	case hasStar:
		st.Kind = KindExportStar
	case hasDefault:
		st.Kind = KindExportDefault
		st.Names = []string{"default"}
	case st.Specifiers != nil && st.Source != "":
		st.Kind = KindExportFrom
	case st.Specifiers != nil:
		st.Kind = KindExportLocal
	default:
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			st.Kind = KindExportDeclaration
			st.Names = declarationNames(decl, content)
		}
	}

	return st
}

func parseExportClause(n *sitter.Node, content []byte) []Specifier {
	specs := []Specifier{}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "export_specifier" {
			continue
		}
		name := child.ChildByFieldName("name")
		if name == nil {
			continue
		}
		sp := Specifier{Local: unquote(name.Content(content))}
		sp.Exported = sp.Local
		if alias := child.ChildByFieldName("alias"); alias != nil {
			sp.Exported = unquote(alias.Content(content))
		}
		specs = append(specs, sp)
	}
	return specs
}

// parseImportClause returns default and named import bindings.
// Namespace imports bind the whole module and are left out.
func parseImportClause(n *sitter.Node, content []byte) []Specifier {
	var specs []Specifier
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "identifier":
			specs = append(specs, Specifier{Local: "default", Exported: child.Content(content)})
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				sp := Specifier{Local: unquote(name.Content(content))}
				sp.Exported = sp.Local
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					sp.Exported = alias.Content(content)
				}
				specs = append(specs, sp)
			}
		}
	}
	return specs
}

func namespaceName(n *sitter.Node, content []byte) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "identifier" || child.Type() == "string" {
			return unquote(child.Content(content))
		}
	}
	return ""
}

// declarationNames returns the names bound by an exported declaration.
func declarationNames(n *sitter.Node, content []byte) []string {
	switch n.Type() {
	case "lexical_declaration", "variable_declaration":
		var names []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			decl := n.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			if target := decl.ChildByFieldName("name"); target != nil {
				names = append(names, patternNames(target, content)...)
			}
		}
		return names
	case "ambient_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if names := declarationNames(n.NamedChild(i), content); len(names) > 0 {
				return names
			}
		}
		return nil
	default:
		// function, generator, class, abstract class, interface, type alias, enum, namespace
		if name := n.ChildByFieldName("name"); name != nil {
			return []string{unquote(name.Content(content))}
		}
		return nil
	}
}

// patternNames collects identifiers bound by a (possibly destructuring) pattern.
func patternNames(n *sitter.Node, content []byte) []string {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{n.Content(content)}
	case "pair_pattern":
		if v := n.ChildByFieldName("value"); v != nil {
			return patternNames(v, content)
		}
		return nil
	case "assignment_pattern", "object_assignment_pattern":
		if l := n.ChildByFieldName("left"); l != nil {
			return patternNames(l, content)
		}
		return nil
	}

	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		names = append(names, patternNames(n.NamedChild(i), content)...)
	}
	return names
}

func firstErrorLine(root *sitter.Node) int {
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			return 0
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			return int(n.StartPoint().Row) + 1
		}
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		if q := s[0]; (q == '"' || q == '\'' || q == '`') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func cleanComment(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "//") {
		return strings.TrimSpace(strings.TrimPrefix(s, "//"))
	}
	s = strings.TrimPrefix(s, "/*")
	s = strings.TrimSuffix(s, "*/")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "*"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
