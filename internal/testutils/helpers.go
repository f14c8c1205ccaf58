// Package testutils holds helpers shared by htmlc package tests.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/htmlc/internal/renderer"
)

// Tree maps slash-separated relative paths to file contents. A path ending
// in "/" is an empty directory.
type Tree map[string]string

// WriteTree creates tree under root on fsys.
func WriteTree(t testing.TB, fsys afero.Fs, root string, tree Tree) {
	t.Helper()

	require.NoError(t, fsys.MkdirAll(root, 0o755))
	for rel, content := range tree {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, fsys.MkdirAll(path, 0o755))
			continue
		}
		require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
}

// ReadTree returns every file and directory below root in the same shape
// WriteTree accepts. Directories are listed only when empty.
func ReadTree(t testing.TB, fsys afero.Fs, root string) Tree {
	t.Helper()

	tree := Tree{}
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			entries, err := afero.ReadDir(fsys, path)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				tree[rel+"/"] = ""
			}
			return nil
		}
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		tree[rel] = string(data)
		return nil
	})
	require.NoError(t, err)

	return tree
}

// Paths returns the sorted keys of tree.
func (tree Tree) Paths() []string {
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// StubRenderer is a renderer.Renderer that wraps source contents in a fixed
// prefix and suffix. It fails for configured paths and tracks concurrency.
type StubRenderer struct {
	Fs     afero.Fs
	Prefix string
	Suffix string
	Delay  time.Duration

	mu       sync.Mutex
	failures map[string]error
	calls    []string

	active    atomic.Int32
	maxActive atomic.Int32
}

// NewStubRenderer creates a StubRenderer reading sources from fsys.
func NewStubRenderer(fsys afero.Fs) *StubRenderer {
	return &StubRenderer{Fs: fsys, Prefix: "<p>", Suffix: "</p>", failures: make(map[string]error)}
}

// FailOn makes Render of path return err.
func (r *StubRenderer) FailOn(path string, err error) *StubRenderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[filepath.Clean(path)] = err
	return r
}

// Name implements renderer.Renderer.
func (r *StubRenderer) Name() string { return "stub" }

// Render implements renderer.Renderer.
func (r *StubRenderer) Render(ctx context.Context, path string, _ any, _ renderer.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, path)
	failure := r.failures[filepath.Clean(path)]
	r.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failure != nil {
		return "", failure
	}

	data, err := afero.ReadFile(r.Fs, path)
	if err != nil {
		return "", err
	}
	return r.Prefix + string(data) + r.Suffix, nil
}

// Calls returns the rendered paths, sorted.
func (r *StubRenderer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := append([]string(nil), r.calls...)
	sort.Strings(calls)
	return calls
}

// MaxConcurrent returns the highest number of simultaneous Render calls seen.
func (r *StubRenderer) MaxConcurrent() int {
	return int(r.maxActive.Load())
}
