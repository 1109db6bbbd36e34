package output

import "github.com/leapstack-labs/barrel/pkg/core"

// JSON output shapes. Field names are stable; scripts depend on them.

// SurfaceOutput is the JSON output of `barrel resolve`.
type SurfaceOutput struct {
	Manifest string         `json:"manifest"`
	File     string         `json:"file,omitempty"`
	Digest   string         `json:"digest"`
	Symbols  int            `json:"symbols"`
	Modules  []ModuleOutput `json:"modules"`
	Bindings []core.Binding `json:"bindings"`
}

// ModuleOutput summarizes one manifest reference.
type ModuleOutput struct {
	Path    string   `json:"path"`
	Mode    string   `json:"mode"`
	ID      string   `json:"id,omitempty"`
	Symbols []string `json:"symbols"`
}

// CheckOutput is the JSON output of `barrel check`.
type CheckOutput struct {
	Manifest   string           `json:"manifest"`
	OK         bool             `json:"ok"`
	Symbols    int              `json:"symbols,omitempty"`
	Digest     string           `json:"digest,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	Collisions []core.Collision `json:"collisions,omitempty"`
}

// InputInfo is one input's contribution to a bundle.
type InputInfo struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// BuildOutput is the JSON output of `barrel build`.
type BuildOutput struct {
	ID         string           `json:"id,omitempty"`
	Manifest   string           `json:"manifest"`
	Status     core.BuildStatus `json:"status"`
	Output     string           `json:"output,omitempty"`
	Bytes      int              `json:"bytes"`
	Symbols    int              `json:"symbols"`
	Digest     string           `json:"digest,omitempty"`
	DurationMS int64            `json:"duration_ms"`
	Warnings   []string         `json:"warnings,omitempty"`
	Inputs     []InputInfo      `json:"inputs,omitempty"`
	External   []string         `json:"external_imports,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// HistoryOutput is the JSON output of `barrel history`.
type HistoryOutput struct {
	Builds []*core.BuildRecord `json:"builds"`
}

// DiffOutput is the JSON output of `barrel diff`.
type DiffOutput struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Added   []core.Binding  `json:"added"`
	Removed []core.Binding  `json:"removed"`
	Changed []ChangedSymbol `json:"changed"`
}

// ChangedSymbol is a name whose target moved.
type ChangedSymbol struct {
	Name string       `json:"name"`
	Old  core.Binding `json:"old"`
	New  core.Binding `json:"new"`
}

// GraphNode is one module in the re-export graph.
type GraphNode struct {
	ID        string   `json:"id"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
}

// GraphLevel groups nodes whose re-exports are all at lower levels.
type GraphLevel struct {
	Level int         `json:"level"`
	Nodes []GraphNode `json:"nodes"`
}

// GraphOutput is the JSON output of `barrel graph`.
type GraphOutput struct {
	Manifest   string       `json:"manifest"`
	Levels     []GraphLevel `json:"levels"`
	TotalNodes int          `json:"total_nodes"`
	TotalEdges int          `json:"total_edges"`
}
