package bundle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Metafile is the subset of esbuild's metafile JSON that barrel reads.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is an input file in the metafile.
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport is an import edge in the metafile.
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput is an output file in the metafile.
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib is the contribution of one input to an output.
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// ParseMetafile decodes esbuild's metafile JSON.
func ParseMetafile(data string) (*Metafile, error) {
	var m Metafile
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to decode metafile: %w", err)
	}
	return &m, nil
}

// JSOutput returns the JavaScript output of a single-entry build.
func (m *Metafile) JSOutput() (string, MetafileOutput, bool) {
	keys := make([]string, 0, len(m.Outputs))
	for k := range m.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(k, ".js") || strings.HasSuffix(k, ".mjs") || strings.HasSuffix(k, ".cjs") {
			return k, m.Outputs[k], true
		}
	}
	return "", MetafileOutput{}, false
}

// InputStat is the size one input file contributes to the bundle.
type InputStat struct {
	Path          string  `json:"path"`
	Bytes         int     `json:"bytes"`
	BytesInOutput int     `json:"bytes_in_output"`
	Percentage    float64 `json:"percentage"`
}

// Analysis summarizes a bundle's composition.
type Analysis struct {
	TotalBytes      int         `json:"total_bytes"`
	Inputs          []InputStat `json:"inputs"`
	ExternalImports []string    `json:"external_imports,omitempty"`
}

// Analyze breaks down the JavaScript output by input file, largest first.
func (m *Metafile) Analyze() *Analysis {
	_, out, ok := m.JSOutput()
	if !ok {
		return &Analysis{}
	}

	a := &Analysis{TotalBytes: out.Bytes}
	for path, contrib := range out.Inputs {
		stat := InputStat{
			Path:          path,
			Bytes:         m.Inputs[path].Bytes,
			BytesInOutput: contrib.BytesInOutput,
		}
		if out.Bytes > 0 {
			stat.Percentage = float64(contrib.BytesInOutput) / float64(out.Bytes) * 100
		}
		a.Inputs = append(a.Inputs, stat)
	}
	sort.Slice(a.Inputs, func(i, j int) bool {
		if a.Inputs[i].BytesInOutput != a.Inputs[j].BytesInOutput {
			return a.Inputs[i].BytesInOutput > a.Inputs[j].BytesInOutput
		}
		return a.Inputs[i].Path < a.Inputs[j].Path
	})

	seen := make(map[string]bool)
	for _, imp := range out.Imports {
		if imp.External && !seen[imp.Path] {
			seen[imp.Path] = true
			a.ExternalImports = append(a.ExternalImports, imp.Path)
		}
	}
	sort.Strings(a.ExternalImports)
	return a
}
