package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kgfleet/internal/atomicfile"
	"github.com/zjrosen/kgfleet/internal/watcher"
)

func startWatcher(t *testing.T, files ...string) (*watcher.Watcher, <-chan struct{}) {
	t.Helper()
	w, err := watcher.New(watcher.Config{Files: files, DebounceDur: 50 * time.Millisecond})
	require.NoError(t, err, "failed to create watcher")
	t.Cleanup(func() { _ = w.Stop() })

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")
	return w, onChange
}

func expectNotification(t *testing.T, ch <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(within):
		t.Fatal("expected notification but got timeout")
	}
}

func expectSilence(t *testing.T, ch <-chan struct{}, wait time.Duration) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected notification")
	case <-time.After(wait):
	}
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "mcp-projects.yaml")
	require.NoError(t, os.WriteFile(registry, []byte("projects: {}\n"), 0o644))

	_, onChange := startWatcher(t, registry)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(registry, []byte(fmt.Sprintf("# %d\n", i)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	expectNotification(t, onChange, 300*time.Millisecond)
	expectSilence(t, onChange, 100*time.Millisecond)
}

func TestWatcher_AtomicReplaceNotifies(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base-compose.yaml")
	require.NoError(t, os.WriteFile(base, []byte("services: {}\n"), 0o644))

	_, onChange := startWatcher(t, base)

	require.NoError(t, atomicfile.WriteFile(base, []byte("services:\n  a: {}\n"), 0o644))
	expectNotification(t, onChange, 300*time.Millisecond)
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "mcp-projects.yaml")
	manifest := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(registry, []byte("projects: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(manifest, []byte("services: {}\n"), 0o644))

	_, onChange := startWatcher(t, registry)

	require.NoError(t, os.WriteFile(manifest, []byte("services:\n  x: {}\n"), 0o644))
	expectSilence(t, onChange, 150*time.Millisecond)
}

func TestWatcher_SetFilesAddsDirectories(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "mcp-projects.yaml")
	require.NoError(t, os.WriteFile(registry, []byte("projects: {}\n"), 0o644))
	projectDir := filepath.Join(dir, "alpha", "ai", "graph")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	config := filepath.Join(projectDir, "mcp-config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("services: []\n"), 0o644))

	w, onChange := startWatcher(t, registry)
	require.NoError(t, w.SetFiles([]string{registry, config}))

	require.NoError(t, os.WriteFile(config, []byte("services:\n  - id: a\n"), 0o644))
	expectNotification(t, onChange, 300*time.Millisecond)
}

func TestWatcher_StopTwice(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "mcp-projects.yaml")
	require.NoError(t, os.WriteFile(registry, nil, 0o644))

	w, err := watcher.New(watcher.DefaultConfig(registry))
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Stop())
		assert.NoError(t, w.Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/repo/mcp-projects.yaml", "/repo/base-compose.yaml")

	assert.Equal(t, []string{"/repo/mcp-projects.yaml", "/repo/base-compose.yaml"}, cfg.Files)
	assert.Equal(t, 300*time.Millisecond, cfg.DebounceDur)
}
