package entities

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kgfleet/internal/project"
)

// projectWithDirs creates a project root whose domain root contains dirs.
func projectWithDirs(t *testing.T, dirs ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "ai", "graph", filepath.FromSlash(d)), 0o755))
	}
	return root
}

func service(dir project.EntitiesDir) project.ServiceDefinition {
	return project.ServiceDefinition{Project: "alpha", ID: "main", EntitiesDir: dir}
}

func TestResolve_StringForm(t *testing.T) {
	root := projectWithDirs(t, "rules/a")

	res, err := NewResolver("").Resolve(root, service(project.Single("rules")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ai", "graph", "rules"), res.Spec.MountHostPath)
	assert.Equal(t, "", res.Spec.Selector)
	assert.Nil(t, res.Spec.Names())
	assert.Empty(t, res.Warnings)
}

func TestResolve_StringFormMissingDirWarns(t *testing.T) {
	root := projectWithDirs(t)

	res, err := NewResolver("").Resolve(root, service(project.Single("entities")))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "does not exist")
}

func TestResolve_ListCommonParent(t *testing.T) {
	root := projectWithDirs(t, "rules/a", "rules/b", "rules/c")

	res, err := NewResolver("").Resolve(root, service(project.Selection("rules/a", "rules/b")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ai", "graph", "rules"), res.Spec.MountHostPath)
	assert.Equal(t, "a,b", res.Spec.Selector)
	assert.Equal(t, []string{"a", "b"}, res.Spec.Names())
}

func TestResolve_ListPreservesOrderAndDedupes(t *testing.T) {
	root := projectWithDirs(t, "rules/a", "rules/b")

	res, err := NewResolver("").Resolve(root, service(project.Selection("rules/b", "./rules/a", "rules/b/")))
	require.NoError(t, err)
	assert.Equal(t, "b,a", res.Spec.Selector)
}

func TestResolve_ListDirectlyUnderDomainRoot(t *testing.T) {
	root := projectWithDirs(t, "a", "b")

	res, err := NewResolver("").Resolve(root, service(project.Selection("a", "b")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ai", "graph"), res.Spec.MountHostPath)
	assert.Equal(t, "a,b", res.Spec.Selector)
}

func TestResolve_MixedParents(t *testing.T) {
	root := projectWithDirs(t, "rules/a", "other/b")

	_, err := NewResolver("").Resolve(root, service(project.Selection("rules/a", "other/b")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMixedParent))

	var mixed *MixedParentError
	require.True(t, errors.As(err, &mixed))
	assert.Equal(t, "alpha", mixed.Project)
	assert.Equal(t, "main", mixed.Service)
	assert.Equal(t, []string{"rules", "other"}, mixed.Parents)
	assert.Contains(t, err.Error(), "other/b")
}

func TestResolve_NestedDepthIsMixed(t *testing.T) {
	root := projectWithDirs(t, "rules/a", "rules/a/deep")

	_, err := NewResolver("").Resolve(root, service(project.Selection("rules/a", "rules/a/deep")))
	assert.True(t, errors.Is(err, ErrMixedParent))
}

func TestResolve_MissingSubdir(t *testing.T) {
	root := projectWithDirs(t, "rules/a")

	_, err := NewResolver("").Resolve(root, service(project.Selection("rules/a", "rules/missing")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSubdir))

	var missing *MissingSubdirError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "missing", missing.Name)
	assert.Equal(t, filepath.Join(root, "ai", "graph", "rules"), missing.Mount)
}

func TestResolve_FileIsNotSubdir(t *testing.T) {
	root := projectWithDirs(t, "rules/a")
	require.NoError(t, os.WriteFile(filepath.Join(root, "ai", "graph", "rules", "b"), []byte("x"), 0o644))

	_, err := NewResolver("").Resolve(root, service(project.Selection("rules/a", "rules/b")))
	assert.True(t, errors.Is(err, ErrMissingSubdir))
}

func TestResolve_EmptyListDefaults(t *testing.T) {
	root := projectWithDirs(t, "entities")

	res, err := NewResolver("").Resolve(root, service(project.Selection()))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ai", "graph", "entities"), res.Spec.MountHostPath)
	assert.Equal(t, "", res.Spec.Selector)
	require.Len(t, res.Warnings, 1)
}

func TestResolve_InvalidEntries(t *testing.T) {
	root := projectWithDirs(t, "rules/a", "rules/ a")

	tests := []struct {
		name string
		dir  project.EntitiesDir
	}{
		{name: "escapes root", dir: project.Selection("../outside/a")},
		{name: "absolute", dir: project.Single("/etc")},
		{name: "comma in name", dir: project.Selection("rules/a,b")},
		{name: "blank entry", dir: project.Selection("rules/a", " ")},
		{name: "dot entry", dir: project.Selection(".")},
		{name: "leading space in name", dir: project.Selection("rules/ a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver("").Resolve(root, service(tt.dir))
			require.Error(t, err)
			assert.True(t, errors.Is(err, project.ErrConfigSchema), "got %v", err)
		})
	}
}

func TestResolve_CustomDomainRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "kg", "rules", "x"), 0o755))

	res, err := NewResolver("kg").Resolve(root, service(project.Selection("rules/x")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "kg", "rules"), res.Spec.MountHostPath)
	assert.Equal(t, "x", res.Spec.Selector)
}

func TestSelectorRoundTrip(t *testing.T) {
	assert.Equal(t, "", FormatSelector(nil))
	assert.Nil(t, ParseSelector(""))
	assert.Nil(t, ParseSelector("  "))
	assert.Equal(t, []string{"a", "b"}, ParseSelector(FormatSelector([]string{"a", "b"})))
	assert.Equal(t, []string{"a", "b"}, ParseSelector(" a, ,b ,"))
}
