// Package project loads a project's service definitions from its local
// config file (mcp-config.yaml) and validates their shape.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kgfleet/internal/log"
)

// DefaultServicePrefix is prepended to a service id to form its compose
// service name and default container name.
const DefaultServicePrefix = "mcp-"

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidID reports whether s may be used as a service id or project name.
func ValidID(s string) bool {
	return validID.MatchString(s)
}

// knownFields lists every key a service definition may carry.
var knownFields = []string{
	"id",
	"container_name",
	"port_default",
	"group_id",
	"entities_dir",
	"include_root_entities",
	"environment",
	"sync_editor_config",
	"sync_cursor_mcp_config",
}

// ServiceDefinition is one service declared by a project.
type ServiceDefinition struct {
	Project       string
	ID            string
	ContainerName string
	// PortDefault is the explicit host port, or nil for automatic assignment.
	PortDefault         *int
	GroupID             string
	EntitiesDir         EntitiesDir
	IncludeRootEntities bool
	Environment         map[string]string
	SyncEditorConfig    bool
}

// ServiceName is the compose service key for this definition.
func (s ServiceDefinition) ServiceName(prefix string) string {
	return prefix + s.ID
}

// serviceFile is the raw YAML form of a service definition.
type serviceFile struct {
	ID                  string            `yaml:"id"`
	ContainerName       string            `yaml:"container_name"`
	PortDefault         *int              `yaml:"port_default"`
	GroupID             string            `yaml:"group_id"`
	EntitiesDir         EntitiesDir       `yaml:"entities_dir"`
	IncludeRootEntities *bool             `yaml:"include_root_entities"`
	Environment         map[string]string `yaml:"environment"`
	SyncEditorConfig    *bool             `yaml:"sync_editor_config"`
	SyncCursorConfig    *bool             `yaml:"sync_cursor_mcp_config"`
}

// Loader reads project config files.
type Loader struct {
	ServicePrefix string
}

// NewLoader returns a loader using prefix for default container names.
func NewLoader(prefix string) *Loader {
	if prefix == "" {
		prefix = DefaultServicePrefix
	}
	return &Loader{ServicePrefix: prefix}
}

// Load reads and validates the service definitions in configPath. The
// returned slice is sorted by service id.
func (l *Loader) Load(configPath, projectName string) ([]ServiceDefinition, error) {
	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path comes from the registry
	if errors.Is(err, os.ErrNotExist) {
		return nil, &MissingError{Project: projectName, Path: configPath}
	}
	if err != nil {
		return nil, fmt.Errorf("project %q: reading %s: %w", projectName, configPath, err)
	}

	schemaErr := func(service, field, format string, args ...any) error {
		return &SchemaError{
			Project: projectName,
			Path:    configPath,
			Service: service,
			Field:   field,
			Msg:     fmt.Sprintf(format, args...),
		}
	}

	var doc yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, schemaErr("", "services", "file is empty")
		}
		return nil, schemaErr("", "", "invalid YAML: %v", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, schemaErr("", "", "top level must be a mapping")
	}
	servicesNode := mappingValue(root, "services")
	if servicesNode == nil {
		return nil, schemaErr("", "services", "required field is missing")
	}
	if servicesNode.Kind != yaml.SequenceNode {
		return nil, schemaErr("", "services", "must be a list")
	}

	services := make([]ServiceDefinition, 0, len(servicesNode.Content))
	seen := make(map[string]int, len(servicesNode.Content))
	for i, node := range servicesNode.Content {
		label := "#" + strconv.Itoa(i)
		if node.Kind != yaml.MappingNode {
			return nil, schemaErr(label, "", "service entry must be a mapping")
		}
		if idNode := mappingValue(node, "id"); idNode != nil && idNode.Value != "" {
			label = idNode.Value
		}

		for j := 0; j+1 < len(node.Content); j += 2 {
			key := node.Content[j].Value
			if !slices.Contains(knownFields, key) {
				return nil, schemaErr(label, key, "unknown field")
			}
		}

		var raw serviceFile
		if err := node.Decode(&raw); err != nil {
			field := ""
			if errors.Is(err, errEntitiesDirType) {
				field = "entities_dir"
			}
			return nil, schemaErr(label, field, "%v", err)
		}

		if raw.ID == "" {
			return nil, schemaErr(label, "id", "required field is missing")
		}
		if !validID.MatchString(raw.ID) {
			return nil, schemaErr(label, "id", "must match %s", validID.String())
		}
		if prev, dup := seen[raw.ID]; dup {
			return nil, schemaErr(raw.ID, "id", "duplicate id (also declared by service #%d)", prev)
		}
		seen[raw.ID] = i

		if !raw.EntitiesDir.IsSet() {
			return nil, schemaErr(raw.ID, "entities_dir", "required field is missing")
		}
		if !raw.EntitiesDir.List && raw.EntitiesDir.Paths[0] == "" {
			return nil, schemaErr(raw.ID, "entities_dir", "must not be empty")
		}
		if raw.PortDefault != nil && (*raw.PortDefault < 1 || *raw.PortDefault > 65535) {
			return nil, schemaErr(raw.ID, "port_default", "port %d is out of range", *raw.PortDefault)
		}

		svc := ServiceDefinition{
			Project:             projectName,
			ID:                  raw.ID,
			ContainerName:       raw.ContainerName,
			PortDefault:         raw.PortDefault,
			GroupID:             raw.GroupID,
			EntitiesDir:         raw.EntitiesDir,
			IncludeRootEntities: boolOr(raw.IncludeRootEntities, true),
			Environment:         raw.Environment,
			SyncEditorConfig:    boolOr(raw.SyncEditorConfig, boolOr(raw.SyncCursorConfig, true)),
		}
		if svc.ContainerName == "" {
			svc.ContainerName = svc.ServiceName(l.ServicePrefix)
		}
		if svc.GroupID == "" {
			svc.GroupID = projectName
		}
		services = append(services, svc)
	}

	slices.SortFunc(services, func(a, b ServiceDefinition) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	log.Debug(log.CatConfig, "loaded project config", "project", projectName, "path", configPath, "services", len(services))
	return services, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
