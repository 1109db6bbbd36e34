package source

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/leapstack-labs/barrel/internal/dag"
	"lukechampine.com/blake3"
)

// CachedSource memoizes another Source. An entry stays valid while every
// file it was computed from has the same BLAKE3 content hash and no probed
// candidate path has appeared, so watch mode only reparses modules whose
// files changed.
type CachedSource struct {
	next   Source
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	// files links each source file to the cache keys computed from it.
	files *dag.Graph

	hits   int
	misses int
}

type cacheEntry struct {
	module *Module
	hashes map[string][32]byte
	// probed would win resolution if created.
	probed []string
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int
	Hits    int
	Misses  int
}

// NewCachedSource wraps next with a content-addressed cache.
func NewCachedSource(next Source, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedSource{
		next:    next,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
		files:   dag.NewGraph(),
	}
}

func cacheKey(dir, specifier string) string {
	return "ref:" + dir + "\x00" + specifier
}

// Exports implements Source.
func (c *CachedSource) Exports(ctx context.Context, dir, specifier string) (*Module, error) {
	key := cacheKey(dir, specifier)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && entry.fresh() {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.clone(), nil
	}

	mod, err := c.next.Exports(ctx, dir, specifier)
	if err != nil {
		return nil, err
	}

	entry = &cacheEntry{
		module: mod,
		hashes: make(map[string][32]byte, len(mod.Files)),
		probed: slices.Clone(mod.Probed),
	}
	for _, f := range mod.Files {
		content, err := os.ReadFile(f) //nolint:gosec // G304: file was just read by the wrapped source
		if err != nil {
			// The file vanished between parse and hash; do not cache.
			return mod, nil
		}
		entry.hashes[f] = blake3.Sum256(content)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	c.entries[key] = entry
	c.files.AddNode(key, nil)
	for _, f := range mod.Files {
		_ = c.files.AddEdge(f, key)
	}
	for _, p := range mod.Probed {
		_ = c.files.AddEdge(p, key)
	}
	c.logger.Debug("cached module exports",
		slog.String("module", mod.ID),
		slog.Int("exports", len(mod.Exports)),
		slog.Int("files", len(mod.Files)))

	return entry.clone(), nil
}

// Invalidate drops every entry computed from one of the changed files, or
// probed at one of them, and returns the number of entries removed.
func (c *CachedSource) Invalidate(changed []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, id := range c.files.Affected(changed) {
		if _, ok := c.entries[id]; ok {
			delete(c.entries, id)
			c.files.RemoveNode(id)
			removed++
		}
	}
	return removed
}

// Reset drops all entries.
func (c *CachedSource) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.files = dag.NewGraph()
}

// Stats returns a snapshot of the cache counters.
func (c *CachedSource) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

func (e *cacheEntry) fresh() bool {
	for f, want := range e.hashes {
		content, err := os.ReadFile(f) //nolint:gosec // G304: cached module file
		if err != nil || blake3.Sum256(content) != want {
			return false
		}
	}
	for _, p := range e.probed {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return false
		}
	}
	return true
}

func (e *cacheEntry) clone() *Module {
	m := *e.module
	m.Exports = slices.Clone(m.Exports)
	m.Files = slices.Clone(m.Files)
	m.Reexports = maps.Clone(m.Reexports)
	m.Probed = slices.Clone(m.Probed)
	return &m
}
