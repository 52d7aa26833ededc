// Package config provides configuration types, defaults and persistence for kgfleet.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/kgfleet/internal/compose"
	"github.com/zjrosen/kgfleet/internal/editor"
	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/log"
	"github.com/zjrosen/kgfleet/internal/ports"
	"github.com/zjrosen/kgfleet/internal/project"
	"github.com/zjrosen/kgfleet/internal/rules"
	"github.com/zjrosen/kgfleet/internal/tracing"
)

// Default file names, resolved against the repository root.
const (
	DefaultRegistryFile    = "mcp-projects.yaml"
	DefaultBaseComposeFile = "base-compose.yaml"
	DefaultOutputFile      = "docker-compose.yml"
)

// Config holds all configuration options for kgfleet.
type Config struct {
	// RepoRoot locates the registry, base template and manifest. Empty means
	// discover it (see paths.ResolveRoot).
	RepoRoot        string `mapstructure:"repo_root"`
	RegistryFile    string `mapstructure:"registry_file"`
	BaseComposeFile string `mapstructure:"base_compose_file"`
	OutputFile      string `mapstructure:"output_file"`

	PortFloor     int    `mapstructure:"port_floor"`
	ServicePrefix string `mapstructure:"service_prefix"`
	SharedBaseKey string `mapstructure:"shared_base_key"`

	Entities EntitiesConfig `mapstructure:"entities"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Tracing  tracing.Config `mapstructure:"tracing"`

	Debug bool `mapstructure:"debug"`
}

// EntitiesConfig controls where rule directories are found and mounted.
type EntitiesConfig struct {
	DomainRoot    string `mapstructure:"domain_root"`    // relative to each project root
	DefaultDir    string `mapstructure:"default_dir"`    // used for an empty entities_dir list
	ContainerPath string `mapstructure:"container_path"` // mount target inside the service
	SharedRoot    string `mapstructure:"shared_root"`    // installation-wide rules inside the service
}

// EditorConfig controls the per-project editor descriptor.
type EditorConfig struct {
	Dir       string `mapstructure:"dir"`
	File      string `mapstructure:"file"`
	Transport string `mapstructure:"transport"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Options converts the settings into editor sync options.
func (e EditorConfig) Options() editor.Options {
	return editor.Options{Dir: e.Dir, File: e.File, Transport: e.Transport, KeyPrefix: e.KeyPrefix}
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"`
}

// DefaultTracesFilePath returns ~/.config/kgfleet/traces/traces.jsonl, or ""
// if the home directory is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kgfleet", "traces", "traces.jsonl")
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		RegistryFile:    DefaultRegistryFile,
		BaseComposeFile: DefaultBaseComposeFile,
		OutputFile:      DefaultOutputFile,
		PortFloor:       ports.DefaultFloor,
		ServicePrefix:   project.DefaultServicePrefix,
		SharedBaseKey:   compose.DefaultSharedKey,
		Entities: EntitiesConfig{
			DomainRoot:    entities.DefaultDomainRoot,
			DefaultDir:    entities.DefaultEntitiesDir,
			ContainerPath: entities.DefaultContainerPath,
			SharedRoot:    rules.DefaultSharedRoot,
		},
		Editor: EditorConfig{
			Dir:       editor.DefaultDir,
			File:      editor.DefaultFile,
			Transport: editor.DefaultTransport,
			KeyPrefix: editor.DefaultKeyPrefix,
		},
		Watch:   WatchConfig{DebounceMs: 300},
		Tracing: tracing.DefaultConfig(),
	}
}

// RegistryPath returns the registry file path under root.
func (c Config) RegistryPath(root string) string { return resolve(root, c.RegistryFile, DefaultRegistryFile) }

// BaseComposePath returns the base template path under root.
func (c Config) BaseComposePath(root string) string {
	return resolve(root, c.BaseComposeFile, DefaultBaseComposeFile)
}

// OutputPath returns the manifest path under root.
func (c Config) OutputPath(root string) string { return resolve(root, c.OutputFile, DefaultOutputFile) }

func resolve(root, name, def string) string {
	if name == "" {
		name = def
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(root, name)
}

// Validate checks the configuration for values that would break generation.
func Validate(c Config) error {
	if c.PortFloor < 1 || c.PortFloor > 65535 {
		return fmt.Errorf("port_floor must be between 1 and 65535, got %d", c.PortFloor)
	}
	if c.ServicePrefix == "" {
		return fmt.Errorf("service_prefix must not be empty")
	}
	if c.Entities.ContainerPath != "" && !filepath.IsAbs(c.Entities.ContainerPath) {
		return fmt.Errorf("entities.container_path must be absolute, got %q", c.Entities.ContainerPath)
	}
	if filepath.IsAbs(c.Entities.DomainRoot) {
		return fmt.Errorf("entities.domain_root must be relative to the project root, got %q", c.Entities.DomainRoot)
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative, got %d", c.Watch.DebounceMs)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTracing checks tracing settings.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}
	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# kgfleet configuration

# Repository root holding the registry, base template and generated manifest.
# Defaults to $MCP_GRAPHITI_REPO_PATH, then the nearest parent directory
# containing base-compose.yaml.
# repo_root: /path/to/repo

registry_file: mcp-projects.yaml
base_compose_file: base-compose.yaml
output_file: docker-compose.yml

# Lowest automatically assigned host port.
port_floor: 8001

# Compose service names are service_prefix + service id.
service_prefix: mcp-

# Top-level base template section every generated service starts from.
shared_base_key: x-graphiti-mcp-custom-base

entities:
  domain_root: ai/graph                  # rule root, relative to each project
  default_dir: entities                  # used when entities_dir is an empty list
  container_path: /app/project_entities  # mount target inside the service
  shared_root: /app/entities             # installation-wide rules inside the service

editor:
  dir: .cursor
  file: mcp.json
  transport: sse
  key_prefix: graphiti-

watch:
  debounce_ms: 300

# Tracing of generation runs
# tracing:
#   enabled: true
#   exporter: file          # none, file, stdout, otlp
#   file_path: ~/.config/kgfleet/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at configPath with default
// settings and comments, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
