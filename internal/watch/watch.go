// Package watch reports batches of changed source files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Defaults for Config fields left empty.
var (
	DefaultInclude  = []string{"**/*.{ts,tsx,js,jsx,mjs}", "**/*.{yaml,yml}"}
	DefaultExclude  = []string{"**/node_modules/**", "**/.git/**", "**/.barrel/**"}
	DefaultDebounce = 100 * time.Millisecond
)

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string
	// Include and Exclude are doublestar globs relative to Root.
	Include  []string
	Exclude  []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches a directory tree and reports changed files in
// debounced batches.
type Watcher struct {
	root     string
	include  []string
	exclude  []string
	debounce time.Duration
	logger   *slog.Logger
}

// New validates cfg and creates a Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch root is required")
	}
	w := &Watcher{
		root:     cfg.Root,
		include:  cfg.Include,
		exclude:  cfg.Exclude,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if len(w.include) == 0 {
		w.include = DefaultInclude
	}
	if len(w.exclude) == 0 {
		w.exclude = DefaultExclude
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}
	for _, p := range append(append([]string{}, w.include...), w.exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
	}
	return w, nil
}

// Run watches until ctx is done, calling onChange with the sorted absolute
// paths changed during each quiet period. onChange runs on the watch
// goroutine, so batches never overlap.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := w.addRecursive(watcher, w.root); err != nil {
		return err
	}
	w.logger.Debug("watching for changes", slog.String("root", w.root))

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(watcher, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", slog.String("dir", event.Name), slog.Any("error", err))
					}
					continue
				}
			}
			if !w.Match(event.Name) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			w.logger.Debug("files changed", slog.Int("count", len(changed)), slog.String("first", changed[0]))
			onChange(ctx, changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

// Match reports whether path is included and not excluded.
func (w *Watcher) Match(path string) bool {
	rel, ok := w.rel(path)
	if !ok {
		return false
	}
	if matchAny(w.exclude, rel) {
		return false
	}
	return matchAny(w.include, rel)
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// addRecursive adds dir and its subdirectories, skipping excluded ones.
func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && matchAny(w.exclude, rel) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
