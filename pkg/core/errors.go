package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks. The typed errors below match them.
var (
	ErrModuleNotFound  = errors.New("module not found")
	ErrExportCollision = errors.New("export collision")
	ErrExportNotFound  = errors.New("export not found")
	ErrInvalidManifest = errors.New("invalid manifest")
	ErrReexportCycle   = errors.New("re-export cycle")
)

// ModuleNotFoundError is returned when a module reference cannot be located.
type ModuleNotFoundError struct {
	Path string
	// Dir is the directory the path was resolved from.
	Dir string
	// Tried lists the candidate files that were checked, if any.
	Tried []string
	Cause error
}

func (e *ModuleNotFoundError) Error() string {
	msg := fmt.Sprintf("module not found: %q", e.Path)
	if e.Dir != "" {
		msg += fmt.Sprintf(" (from %s)", e.Dir)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ModuleNotFoundError) Is(target error) bool { return target == ErrModuleNotFound }

func (e *ModuleNotFoundError) Unwrap() error { return e.Cause }

// Collision is one final name claimed by two module references.
type Collision struct {
	Name   string  `json:"name"`
	First  Binding `json:"first"`
	Second Binding `json:"second"`
}

func (c Collision) String() string {
	return fmt.Sprintf("symbol %q exported by %s (as %s) and %s (as %s)",
		c.Name, c.First.Module, c.First.Original, c.Second.Module, c.Second.Original)
}

// ExportCollisionError lists every final name exported more than once.
type ExportCollisionError struct {
	Manifest   string
	Collisions []Collision
}

func (e *ExportCollisionError) Error() string {
	if len(e.Collisions) == 1 {
		return "export collision: " + e.Collisions[0].String()
	}
	parts := make([]string, len(e.Collisions))
	for i, c := range e.Collisions {
		parts[i] = "  " + c.String()
	}
	return fmt.Sprintf("%d export collisions:\n%s", len(e.Collisions), strings.Join(parts, "\n"))
}

func (e *ExportCollisionError) Is(target error) bool { return target == ErrExportCollision }

// Names returns the colliding names in report order.
func (e *ExportCollisionError) Names() []string {
	names := make([]string, len(e.Collisions))
	for i, c := range e.Collisions {
		names[i] = c.Name
	}
	return names
}

// ExportNotFoundError is returned when a named re-export lists a symbol the module lacks.
type ExportNotFoundError struct {
	Module string
	Name   string
	// Available is the module's actual export list.
	Available []string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("module %q has no export named %q", e.Module, e.Name)
}

func (e *ExportNotFoundError) Is(target error) bool { return target == ErrExportNotFound }

// ManifestError reports a malformed manifest declaration.
type ManifestError struct {
	File    string
	Line    int
	Message string
}

func (e *ManifestError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *ManifestError) Is(target error) bool { return target == ErrInvalidManifest }

// CycleError reports modules that re-export each other in a loop.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "re-export cycle: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Is(target error) bool { return target == ErrReexportCycle }
