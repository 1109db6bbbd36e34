// Package core defines the shared language of the barrel system.
//
// This package contains:
//   - Manifest entities (Manifest, ModuleRef, NamedExport)
//   - The resolved export surface (Surface, Binding, SurfaceDiff)
//   - The error taxonomy (ModuleNotFound, ExportCollision, ...)
//   - Build records and configuration types shared by the CLI and libraries
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
