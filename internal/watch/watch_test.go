package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/barrel/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "root is required")

	_, err = New(Config{Root: t.TempDir(), Include: []string{"[unclosed"}})
	assert.ErrorContains(t, err, "invalid watch pattern")

	w, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)
}

func TestMatch(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "project")
	w, err := New(Config{Root: root})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"web/ts/entry/admins.ts", true},
		{"web/ts/stats/chart.tsx", true},
		{"barrel.yaml", true},
		{"web/ts/styles.css", false},
		{"web/node_modules/react/index.js", false},
		{".git/HEAD", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Match(filepath.Join(root, filepath.FromSlash(tt.path))))
		})
	}

	assert.False(t, w.Match(filepath.Join(string(filepath.Separator), "elsewhere", "a.ts")))
}

func TestRun_DebouncesBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "stats"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0o750))

	w, err := New(Config{Root: root, Debounce: 50 * time.Millisecond, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		batches [][]string
	)
	got := make(chan struct{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, changed []string) {
			mu.Lock()
			batches = append(batches, changed)
			mu.Unlock()
			got <- struct{}{}
		})
	}()

	// Give the watcher time to register directories.
	time.Sleep(100 * time.Millisecond)

	a := filepath.Join(root, "stats", "index.ts")
	b := filepath.Join(root, "admins.ts")
	require.NoError(t, os.WriteFile(a, []byte("export const a = 1;"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("export * from './stats';"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x", "index.js"), []byte("ignored"), 0o600))

	collected := func() []string {
		mu.Lock()
		defer mu.Unlock()
		var all []string
		for _, batch := range batches {
			all = append(all, batch...)
		}
		return all
	}
	deadline := time.After(5 * time.Second)
	for !slices.Contains(collected(), a) || !slices.Contains(collected(), b) {
		select {
		case <-got:
		case <-deadline:
			t.Fatalf("changes not reported, got %v", collected())
		}
	}

	cancel()
	require.NoError(t, <-done)

	all := collected()
	assert.Contains(t, all, a)
	assert.Contains(t, all, b)
	for _, p := range all {
		assert.NotContains(t, p, "node_modules")
		assert.NotContains(t, p, "notes.txt")
	}
}
