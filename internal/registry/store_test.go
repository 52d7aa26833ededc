package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp-projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreLoad_MissingFileIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))

	reg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestStoreLoad_EmptyFileIsEmpty(t *testing.T) {
	store := NewStore(writeRegistry(t, ""))

	reg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestStoreLoad_ParsesEntriesInNameOrder(t *testing.T) {
	store := NewStore(writeRegistry(t, `
version: 1
projects:
  zeta:
    root_dir: /work/zeta
    config_file: /work/zeta/ai/graph/mcp-config.yaml
    enabled: false
  alpha:
    root_dir: /work/alpha
    config_file: /work/alpha/ai/graph/mcp-config.yaml
    enabled: true
    ports:
      main: 8001
`))

	reg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())

	alpha, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "/work/alpha", alpha.RootDir)
	assert.True(t, alpha.Enabled)
	assert.Equal(t, map[string]int{"main": 8001}, alpha.Ports)

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "alpha", enabled[0].Name)
}

func TestStoreLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not yaml", content: "projects: [unclosed"},
		{name: "projects is a list", content: "projects:\n  - alpha\n"},
		{name: "enabled wrong type", content: "projects:\n  alpha:\n    root_dir: /a\n    config_file: /a/c.yaml\n    enabled: sometimes\n"},
		{name: "unknown field", content: "projects:\n  alpha:\n    root: /a\n"},
		{name: "future version", content: "version: 9\nprojects: {}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(writeRegistry(t, tt.content)).Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRegistryCorrupt), "got %v", err)

			var corrupt *CorruptError
			require.True(t, errors.As(err, &corrupt))
			assert.Contains(t, corrupt.Path, "mcp-projects.yaml")
		})
	}
}

func TestStoreLoad_RelativeRootRejected(t *testing.T) {
	store := NewStore(writeRegistry(t, `
projects:
  alpha:
    root_dir: relative/alpha
    config_file: /work/alpha/mcp-config.yaml
    enabled: true
`))

	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))

	var pathErr *InvalidPathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, "alpha", pathErr.Project)
	assert.Equal(t, "root_dir", pathErr.Field)
	assert.Equal(t, "relative/alpha", pathErr.Path)
}

func TestStoreSave_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-projects.yaml")
	store := NewStore(path)

	reg := New()
	require.NoError(t, reg.Put(Entry{Name: "beta", RootDir: "/w/beta", ConfigPath: "/w/beta/c.yaml", Enabled: true}))
	require.NoError(t, reg.Put(Entry{Name: "alpha", RootDir: "/w/alpha", ConfigPath: "/w/alpha/c.yaml"}))
	require.NoError(t, reg.SetPorts("beta", map[string]int{"main": 8002, "aux": 8003}))
	require.NoError(t, store.Save(reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# !! WARNING")
	assert.Contains(t, content, "version: 1")
	assert.Less(t, strings.Index(content, "alpha:"), strings.Index(content, "beta:"))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, reg.Entries(), loaded.Entries())
}

func TestStoreSave_Deterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-projects.yaml")
	store := NewStore(path)

	reg := New()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Put(Entry{Name: name, RootDir: "/w/" + name, ConfigPath: "/w/" + name + "/c.yaml", Enabled: true}))
	}

	require.NoError(t, store.Save(reg))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(reg))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRegistry_PutRejectsRelativeConfig(t *testing.T) {
	reg := New()
	err := reg.Put(Entry{Name: "a", RootDir: "/w/a", ConfigPath: "c.yaml"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))
	assert.Contains(t, err.Error(), "config_file")
}

func TestRegistry_PutKeepsPorts(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Put(Entry{Name: "a", RootDir: "/w/a", ConfigPath: "/w/a/c.yaml", Ports: map[string]int{"main": 8004}}))
	require.NoError(t, reg.Put(Entry{Name: "a", RootDir: "/w/a2", ConfigPath: "/w/a2/c.yaml", Enabled: true}))

	e, _ := reg.Get("a")
	assert.Equal(t, "/w/a2", e.RootDir)
	assert.Equal(t, map[string]int{"main": 8004}, e.Ports)
}

func TestRegistry_SetEnabledUnknown(t *testing.T) {
	err := New().SetEnabled("ghost", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestRegistry_Remove(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Put(Entry{Name: "a", RootDir: "/w/a", ConfigPath: "/w/a/c.yaml"}))

	assert.True(t, reg.Remove("a"))
	assert.False(t, reg.Remove("a"))
	assert.Zero(t, reg.Len())
}
