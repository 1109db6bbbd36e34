package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedExport_FinalName(t *testing.T) {
	assert.Equal(t, "baz", NamedExport{Name: "baz"}.FinalName())
	assert.Equal(t, "qux", NamedExport{Name: "baz", As: "qux"}.FinalName())
	assert.Equal(t, "baz as qux", NamedExport{Name: "baz", As: "qux"}.String())
}

func TestModuleRef_String(t *testing.T) {
	w := ModuleRef{Path: "../schedule", Mode: ModeWildcard}
	assert.Equal(t, `* from "../schedule"`, w.String())

	n := ModuleRef{Path: "../video-sections", Mode: ModeNamed, Names: []NamedExport{
		{Name: "VideoSectionsAdmin"}, {Name: "VideoSectionUpdater", As: "Updater"},
	}}
	assert.Equal(t, `{ VideoSectionsAdmin, VideoSectionUpdater as Updater } from "../video-sections"`, n.String())
}

func TestManifest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modules   []ModuleRef
		errSubstr string
	}{
		{
			name: "valid",
			modules: []ModuleRef{
				{Path: "./a", Mode: ModeWildcard},
				{Path: "./b", Mode: ModeNamed, Names: []NamedExport{{Name: "baz", As: "qux"}}},
			},
		},
		{
			name:      "no modules",
			errSubstr: "declares no modules",
		},
		{
			name:      "empty path",
			modules:   []ModuleRef{{Path: " ", Mode: ModeWildcard}},
			errSubstr: "path is required",
		},
		{
			name:      "unknown mode",
			modules:   []ModuleRef{{Path: "./a", Mode: "star"}},
			errSubstr: "invalid mode",
		},
		{
			name:      "wildcard with names",
			modules:   []ModuleRef{{Path: "./a", Mode: ModeWildcard, Names: []NamedExport{{Name: "x"}}}},
			errSubstr: "cannot list names",
		},
		{
			name:      "named without names",
			modules:   []ModuleRef{{Path: "./a", Mode: ModeNamed}},
			errSubstr: "lists no names",
		},
		{
			name:      "named with empty symbol",
			modules:   []ModuleRef{{Path: "./a", Mode: ModeNamed, Names: []NamedExport{{As: "x"}}}},
			errSubstr: "empty symbol name",
		},
		{
			name: "named lists a final name twice",
			modules: []ModuleRef{{Path: "./a", Mode: ModeNamed, Names: []NamedExport{
				{Name: "x"}, {Name: "y", As: "x"},
			}}},
			errSubstr: `lists "x" twice`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Name: "test", File: "admins.yaml", Modules: tt.modules}
			err := m.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
			assert.True(t, errors.Is(err, ErrInvalidManifest))
		})
	}
}

func TestManifestError_Position(t *testing.T) {
	err := &ManifestError{File: "admins.ts", Line: 4, Message: "unexpected statement"}
	assert.Equal(t, "admins.ts:4: unexpected statement", err.Error())
}
