// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/barrel/internal/cli/output"
	basetestutil "github.com/leapstack-labs/barrel/internal/testutil"
)

// Project files written by SetupTestProject.
const (
	TestConfig = `manifest: manifest.yaml
out_dir: dist
state_path: .barrel/state.db
`

	TestManifest = `name: admins
description: Admin console bundle
modules:
  - path: ./users
  - path: ./stats
    names:
      - count
      - mean as average
fixtures:
  ./users: [listUsers, fetchUser, UserCard]
  ./stats: [count, mean, median]
`

	// TestCollidingManifest exports listUsers from two modules.
	TestCollidingManifest = `name: broken
modules:
  - path: ./users
  - path: ./legacy
fixtures:
  ./users: [listUsers, fetchUser]
  ./legacy: [listUsers]
`
)

// SetupTestProject creates a temporary project whose manifest resolves
// against inline fixtures.
func SetupTestProject(t *testing.T) string {
	t.Helper()
	return basetestutil.WriteTree(t, map[string]string{
		"barrel.yaml":   TestConfig,
		"manifest.yaml": TestManifest,
	})
}

// SetupSourceProject creates a temporary project with TypeScript module
// sources, so it can be resolved from disk and bundled.
func SetupSourceProject(t *testing.T) string {
	t.Helper()
	return basetestutil.WriteTree(t, map[string]string{
		"barrel.yaml": TestConfig,
		"manifest.yaml": `name: admins
modules:
  - path: ./src/users
  - path: ./src/stats
    names:
      - mean as average
`,
		"src/users/index.ts": "export * from \"./api\";\nexport { UserCard } from \"./card\";\n",
		"src/users/api.ts":   "export function listUsers() { return []; }\nexport function fetchUser(id: string) { return { id }; }\n",
		"src/users/card.ts":  "export function UserCard(name: string) { return `<b>${name}</b>`; }\n",
		"src/stats.ts":       "export function mean(xs: number[]) { return xs.reduce((a, b) => a + b, 0) / xs.length; }\nexport const median = 0;\n",
	})
}

// CapturedRenderer is an output.Renderer writing into buffers.
type CapturedRenderer struct {
	*output.Renderer
	out    bytes.Buffer
	errOut bytes.Buffer
}

// NewCapturedRenderer returns a renderer in mode; isTTY simulates a terminal.
func NewCapturedRenderer(mode output.Mode, isTTY bool) *CapturedRenderer {
	c := &CapturedRenderer{}
	c.Renderer = output.NewRendererWithTTY(&c.out, &c.errOut, isTTY, mode)
	return c
}

// Stdout returns everything written to the output stream.
func (c *CapturedRenderer) Stdout() string { return c.out.String() }

// Stderr returns everything written to the error stream.
func (c *CapturedRenderer) Stderr() string { return c.errOut.String() }

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	// Check for balanced code fences
	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	// Check that headers have content
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
