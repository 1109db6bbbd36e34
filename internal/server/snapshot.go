package server

import (
	"sync"
	"time"

	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
)

// Snapshot holds the latest resolution result. A failed resolution keeps
// the previous surface so clients keep being served while the error is
// reported alongside it.
type Snapshot struct {
	mu        sync.RWMutex
	manifest  *core.Manifest
	surface   *core.Surface
	digest    string
	lastErr   error
	updatedAt time.Time
}

// Update records a resolution result.
func (s *Snapshot) Update(m *core.Manifest, surface *core.Surface, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updatedAt = time.Now().UTC()
	s.lastErr = err
	if err != nil {
		return
	}
	s.manifest = m
	s.surface = surface
	s.digest = manifest.Digest(surface)
}

// Current returns the last good surface and the latest error, if any.
func (s *Snapshot) Current() (*core.Manifest, *core.Surface, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest, s.surface, s.digest, s.lastErr
}

// Ready reports whether a surface has been resolved successfully.
func (s *Snapshot) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.surface != nil
}

// UpdatedAt returns the time of the last Update.
func (s *Snapshot) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
