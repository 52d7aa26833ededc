package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kgfleet/internal/config"
	"github.com/zjrosen/kgfleet/internal/paths"
	"github.com/zjrosen/kgfleet/internal/presentation"
	"github.com/zjrosen/kgfleet/internal/project"
	"github.com/zjrosen/kgfleet/internal/registry"
)

const cliBase = `x-graphiti-mcp-custom-base:
  image: graphiti-mcp:latest
  environment:
    MCP_PORT: 8000

services:
  neo4j:
    image: neo4j:5
`

const cliProjectConfig = `services:
  - id: main
    entities_dir: entities
`

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type cli struct {
	t      *testing.T
	root   string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultBaseComposeFile), []byte(cliBase), 0o644))
	cfgPath := filepath.Join(root, "kgfleet.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("port_floor: 8001\n"), 0o644))
	t.Setenv(paths.RootEnv, root)
	return &cli{t: t, root: root, config: cfgPath}
}

func (c *cli) project(name string) string {
	c.t.Helper()
	dir := filepath.Join(c.root, "projects", name)
	graph := filepath.Join(dir, "ai", "graph")
	require.NoError(c.t, os.MkdirAll(filepath.Join(graph, "entities"), 0o755))
	require.NoError(c.t, os.WriteFile(filepath.Join(graph, "mcp-config.yaml"), []byte(cliProjectConfig), 0o644))
	return dir
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", c.config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (c *cli) services() map[string]any {
	c.t.Helper()
	data, err := os.ReadFile(filepath.Join(c.root, config.DefaultOutputFile))
	require.NoError(c.t, err)
	var doc map[string]any
	require.NoError(c.t, yaml.Unmarshal(data, &doc))
	return doc["services"].(map[string]any)
}

func TestGenerateOptions(t *testing.T) {
	c := config.Defaults()
	c.OutputFile = "/srv/compose.yml"

	opts := generateOptions(c, "/repo")
	assert.Equal(t, "/repo/mcp-projects.yaml", opts.RegistryPath)
	assert.Equal(t, "/repo/base-compose.yaml", opts.BasePath)
	assert.Equal(t, "/srv/compose.yml", opts.OutputPath)
	assert.Equal(t, 8001, opts.PortFloor)
	assert.Equal(t, "mcp-", opts.ServicePrefix)
	assert.Equal(t, "ai/graph", opts.DomainRoot)
	assert.Equal(t, "/app/project_entities", opts.ContainerPath)
	assert.Equal(t, ".cursor", opts.Editor.Dir)
	assert.False(t, opts.DryRun)
}

func TestNewEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "alpha"), 0o755))
	t.Chdir(dir)

	e, err := newEntry("alpha", "", "", "ai/graph", true)
	require.NoError(t, err)
	wantRoot, err := filepath.Abs("alpha")
	require.NoError(t, err)
	assert.Equal(t, registry.Entry{
		Name:       "alpha",
		RootDir:    wantRoot,
		ConfigPath: filepath.Join(wantRoot, "ai", "graph", "mcp-config.yaml"),
		Enabled:    true,
	}, e)
	require.NoError(t, e.Validate())

	e, err = newEntry("./alpha", "renamed", "alpha/cfg.yaml", "ai/graph", false)
	require.NoError(t, err)
	assert.Equal(t, "renamed", e.Name)
	assert.Equal(t, filepath.Join(wantRoot, "cfg.yaml"), e.ConfigPath)
	assert.False(t, e.Enabled)
}

func TestNewEntry_Errors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := newEntry(filepath.Join(dir, "missing"), "", "", "ai/graph", true)
	require.Error(t, err)

	_, err = newEntry(file, "", "", "ai/graph", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestWatchFiles(t *testing.T) {
	dir := t.TempDir()
	opts := generateOptions(config.Defaults(), dir)

	assert.Equal(t, []string{opts.RegistryPath, opts.BasePath}, watchFiles(opts))

	reg := registry.New()
	require.NoError(t, reg.Put(registry.Entry{Name: "a", RootDir: "/p/a", ConfigPath: "/p/a/c.yaml", Enabled: true}))
	require.NoError(t, reg.Put(registry.Entry{Name: "b", RootDir: "/p/b", ConfigPath: "/p/b/c.yaml"}))
	require.NoError(t, registry.NewStore(opts.RegistryPath).Save(reg))

	assert.Equal(t, []string{opts.RegistryPath, opts.BasePath, "/p/a/c.yaml"}, watchFiles(opts))
}

func TestCLI_RegistryAndGenerate(t *testing.T) {
	c := newCLI(t)
	alpha := c.project("alpha")
	beta := c.project("beta")

	out, err := c.run("registry", "add", alpha)
	require.NoError(t, err)
	assert.Contains(t, out, "registered alpha")

	_, err = c.run("registry", "add", beta, "--disabled")
	require.NoError(t, err)

	out, err = c.run("registry", "list", "--json")
	require.NoError(t, err)
	var entries []presentation.RegistryEntryDTO
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.True(t, entries[0].Enabled)
	assert.False(t, entries[1].Enabled)

	out, err = c.run("generate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "alpha ok")
	svcs := c.services()
	assert.Contains(t, svcs, "mcp-main")
	assert.Contains(t, svcs, "neo4j")

	_, err = os.Stat(filepath.Join(alpha, ".cursor", "mcp.json"))
	require.NoError(t, err)

	reg, err := registry.NewStore(filepath.Join(c.root, config.DefaultRegistryFile)).Load()
	require.NoError(t, err)
	e, _ := reg.Get("alpha")
	assert.Equal(t, map[string]int{"main": 8001}, e.Ports)
}

func TestCLI_GenerateFailureKeepsManifest(t *testing.T) {
	c := newCLI(t)
	alpha := c.project("alpha")
	_, err := c.run("registry", "add", alpha)
	require.NoError(t, err)
	_, err = c.run("generate")
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(c.root, config.DefaultOutputFile))
	require.NoError(t, err)

	// A second project with the same service id produces a name conflict.
	beta := c.project("beta")
	_, err = c.run("registry", "add", beta)
	require.NoError(t, err)

	out, err := c.run("generate")
	require.ErrorIs(t, err, errFailed)
	assert.Contains(t, out, "aborted")

	after, err := os.ReadFile(filepath.Join(c.root, config.DefaultOutputFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCLI_DryRunWritesNothing(t *testing.T) {
	c := newCLI(t)
	alpha := c.project("alpha")
	_, err := c.run("registry", "add", alpha)
	require.NoError(t, err)

	out, err := c.run("generate", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "+  mcp-main:")
	assert.Contains(t, out, "dry run:")

	_, err = os.Stat(filepath.Join(c.root, config.DefaultOutputFile))
	assert.True(t, os.IsNotExist(err))
}

func TestCLI_DisableAndRemove(t *testing.T) {
	c := newCLI(t)
	alpha := c.project("alpha")
	_, err := c.run("registry", "add", alpha)
	require.NoError(t, err)

	out, err := c.run("registry", "disable", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled alpha")

	_, err = c.run("registry", "enable", "ghost")
	require.Error(t, err)

	out, err = c.run("registry", "remove", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "removed alpha")

	out, err = c.run("registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no projects registered")
}

func TestCLI_RulesCheck(t *testing.T) {
	c := newCLI(t)
	dir := filepath.Join(t.TempDir(), "entities")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "arch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arch", "decision.yaml"),
		[]byte("name: Decision\ndescription: An architectural decision\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arch", "broken.yaml"), []byte("name: [\n"), 0o644))

	out, err := c.run("rules", "check", dir, "--selector", "arch")
	require.NoError(t, err)
	assert.Contains(t, out, "1 entity types: Decision")

	_, err = c.run("rules", "check", dir, "--selector", "arch", "--strict")
	require.Error(t, err)
}

func TestCLI_Init(t *testing.T) {
	c := newCLI(t)
	target := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	c.config = target

	out, err := c.run("init", "--repo-root", c.root)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "repo_root: "+c.root)
	assert.Contains(t, string(data), "port_floor: 8001")

	_, err = c.run("init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCLI_ProjectInit(t *testing.T) {
	c := newCLI(t)
	dir := filepath.Join(c.root, "projects", "gamma")

	out, err := c.run("project", "init", "gamma", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "registered gamma")

	graph := filepath.Join(dir, "ai", "graph")
	configPath := filepath.Join(graph, "mcp-config.yaml")
	_, err = os.Stat(filepath.Join(graph, "entities", ".gitkeep"))
	require.NoError(t, err)

	services, err := project.NewLoader("").Load(configPath, "gamma")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "gamma-main", services[0].ID)
	assert.Equal(t, "gamma", services[0].GroupID)
	assert.Equal(t, project.Single("entities"), services[0].EntitiesDir)

	reg, err := registry.NewStore(filepath.Join(c.root, config.DefaultRegistryFile)).Load()
	require.NoError(t, err)
	e, ok := reg.Get("gamma")
	require.True(t, ok)
	assert.Equal(t, dir, e.RootDir)
	assert.Equal(t, configPath, e.ConfigPath)
	assert.True(t, e.Enabled)

	out, err = c.run("generate")
	require.NoError(t, err, out)
	assert.Contains(t, c.services(), "mcp-gamma-main")

	// Re-running keeps an edited config and the recorded ports.
	edited := "services:\n  - id: edited\n"
	require.NoError(t, os.WriteFile(configPath, []byte(edited), 0o644))
	out, err = c.run("project", "init", "gamma", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "keeping existing")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, edited, string(data))
	reg, err = registry.NewStore(filepath.Join(c.root, config.DefaultRegistryFile)).Load()
	require.NoError(t, err)
	e, _ = reg.Get("gamma")
	assert.Equal(t, map[string]int{"gamma-main": 8001}, e.Ports)

	_, err = c.run("project", "init", "gamma", dir, "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: gamma-main")
}

func TestCLI_ProjectInitInvalidName(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()

	_, err := c.run("project", "init", "bad name", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid project name")

	_, err = os.Stat(filepath.Join(dir, "ai"))
	assert.True(t, os.IsNotExist(err))
}

func TestCLI_ProjectEntity(t *testing.T) {
	c := newCLI(t)
	alpha := c.project("alpha")

	out, err := c.run("project", "entity", "service-area", alpha)
	require.NoError(t, err, out)
	entitiesDir := filepath.Join(alpha, "ai", "graph", "entities")
	assert.Contains(t, out, "wrote "+filepath.Join(entitiesDir, "ServiceArea.yaml"))

	out, err = c.run("rules", "check", entitiesDir, "--strict")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 entity types: ServiceArea")

	_, err = c.run("project", "entity", "service-area", alpha)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = c.run("project", "entity", "bad/name", alpha)
	require.Error(t, err)
}

func TestCLI_ProjectEntityFilteredService(t *testing.T) {
	c := newCLI(t)
	dir := filepath.Join(c.root, "projects", "delta")
	graph := filepath.Join(dir, "ai", "graph")
	require.NoError(t, os.MkdirAll(graph, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(graph, "mcp-config.yaml"),
		[]byte("services:\n  - id: main\n    entities_dir: [rules/arch, rules/ops]\n"), 0o644))

	_, err := c.run("project", "entity", "decision", dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(graph, "rules", "arch", "Decision.yaml"))
	require.NoError(t, err)
}

func TestCLI_ProjectEntityWithoutConfig(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("project", "entity", "widget", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project init")
}

func TestEntityTypeName(t *testing.T) {
	tests := map[string]string{
		"widget":       "Widget",
		"service-area": "ServiceArea",
		"api_key":      "ApiKey",
		"a--b":         "AB",
		"_":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, entityTypeName(in), in)
	}
}
