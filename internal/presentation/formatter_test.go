package presentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kgfleet/internal/generate"
	"github.com/zjrosen/kgfleet/internal/registry"
	"github.com/zjrosen/kgfleet/internal/rules"
)

func sampleResult() *generate.Result {
	return &generate.Result{
		RunID:      "run-1",
		OutputPath: "/repo/docker-compose.yml",
		Projects: []generate.ProjectReport{
			{
				Name: "alpha",
				Services: []generate.ServiceReport{
					{ID: "main", Name: "mcp-alpha-main", Port: 8001, Mount: "/p/alpha/ai/graph/entities", Selector: "arch"},
					{ID: "aux", Name: "mcp-alpha-aux", Port: 8002, Mount: "/p/alpha/ai/graph/entities"},
				},
				Warnings: []string{"environment key MCP_GROUP_ID is reserved"},
			},
			{
				Name:   "beta",
				Errors: []error{errors.New("mixed parent: ai/graph/entities")},
			},
		},
	}
}

func TestFormatter_Result(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).Result(sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "alpha ok")
	assert.Contains(t, out, "mcp-alpha-main")
	assert.Contains(t, out, "8001")
	assert.Contains(t, out, "[arch]")
	assert.Contains(t, out, "[*]")
	assert.Contains(t, out, "warning: environment key MCP_GROUP_ID is reserved")
	assert.Contains(t, out, "beta error")
	assert.Contains(t, out, "error: mixed parent: ai/graph/entities")
	assert.Contains(t, out, "aborted: /repo/docker-compose.yml left unchanged")
}

func TestFormatter_ResultWritten(t *testing.T) {
	r := sampleResult()
	r.Projects = r.Projects[:1]
	r.Written = true

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).Result(r))
	assert.Contains(t, buf.String(), "wrote /repo/docker-compose.yml")
	assert.NotContains(t, buf.String(), "aborted")
}

func TestFormatter_ResultJoinedErrorSplitsLines(t *testing.T) {
	r := &generate.Result{
		OutputPath: "out.yml",
		Errors:     []error{errors.Join(errors.New("port 8005 first"), errors.New("port 8005 second"))},
	}
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).Result(r))
	assert.Contains(t, buf.String(), "error: port 8005 first\nerror: port 8005 second\n")
}

func TestFormatter_Diff(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	require.NoError(t, f.Diff(""))
	assert.Equal(t, "no changes\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Diff(" same\n-old\n+new\n"))
	assert.Equal(t, " same\n-old\n+new\n", buf.String())
}

func TestFormatter_Registry(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	require.NoError(t, f.Registry(nil))
	assert.Equal(t, "no projects registered\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Registry([]registry.Entry{
		{Name: "alpha", RootDir: "/p/alpha", ConfigPath: "/p/alpha/ai/graph/mcp-config.yaml", Enabled: true},
		{Name: "beta", RootDir: "/p/beta", ConfigPath: "/p/beta/cfg.yaml"},
	}))
	out := buf.String()
	assert.Contains(t, out, "alpha enabled")
	assert.Contains(t, out, "beta disabled")
	assert.Contains(t, out, "config: /p/beta/cfg.yaml")
}

func TestFormatter_Rules(t *testing.T) {
	catalog := rules.NewCatalog()
	catalog.Register(rules.EntityType{Name: "Requirement"})
	catalog.Register(rules.EntityType{Name: "Decision"})
	report := &rules.Report{
		Attempts: []rules.LoadAttempt{
			{Path: "/m/arch/decision.yaml", Outcome: rules.OutcomeLoaded, Entities: []string{"Decision", "Requirement"}},
			{Path: "/m/arch/broken.yaml", Outcome: rules.OutcomeFailed, Err: errors.New("yaml: bad indent")},
		},
		Warnings: []string{"selected subdirectory missing: ops"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).Rules(catalog, report))
	out := buf.String()
	assert.Contains(t, out, "loaded /m/arch/decision.yaml Decision, Requirement")
	assert.Contains(t, out, "failed /m/arch/broken.yaml: yaml: bad indent")
	assert.Contains(t, out, "warning: selected subdirectory missing: ops")
	assert.Contains(t, out, "2 entity types: Decision, Requirement")
}

func TestFormatter_JSONResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).JSON(FromResult(sampleResult())))

	var got ResultDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Projects, 2)
	assert.True(t, got.Projects[0].OK)
	assert.Equal(t, 8001, got.Projects[0].Services[0].Port)
	assert.False(t, got.Projects[1].OK)
	assert.Equal(t, []string{"mixed parent: ai/graph/entities"}, got.Projects[1].Errors)
	assert.Empty(t, got.Errors)
}

func TestFromEntries(t *testing.T) {
	got := FromEntries([]registry.Entry{
		{Name: "alpha", RootDir: "/p/alpha", ConfigPath: "/p/alpha/c.yaml", Enabled: true, Ports: map[string]int{"main": 8001}},
	})
	require.Len(t, got, 1)
	assert.Equal(t, RegistryEntryDTO{
		Name: "alpha", RootDir: "/p/alpha", ConfigFile: "/p/alpha/c.yaml", Enabled: true, Ports: map[string]int{"main": 8001},
	}, got[0])
}
