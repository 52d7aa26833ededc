package compose

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kgfleet/internal/log"
)

// DefaultSharedKey is the top-level base template key holding the settings
// every generated service starts from.
const DefaultSharedKey = "x-graphiti-mcp-custom-base"

const servicesKey = "services"

// BaseTemplate is a parsed base compose file.
type BaseTemplate struct {
	Path      string
	SharedKey string

	keys     []string
	values   map[string]any
	services []string
}

// LoadBase reads and validates the base template at path.
func LoadBase(path, sharedKey string) (*BaseTemplate, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from app config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &BaseTemplateError{Path: path, Msg: "file not found", Err: err}
		}
		return nil, &BaseTemplateError{Path: path, Msg: "read failed", Err: err}
	}
	return ParseBase(path, data, sharedKey)
}

// ParseBase parses base template content. path is only used in errors.
func ParseBase(path string, data []byte, sharedKey string) (*BaseTemplate, error) {
	if sharedKey == "" {
		sharedKey = DefaultSharedKey
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &BaseTemplateError{Path: path, Msg: "invalid YAML", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &BaseTemplateError{Path: path, Msg: "top level must be a mapping"}
	}
	root := doc.Content[0]

	b := &BaseTemplate{
		Path:      path,
		SharedKey: sharedKey,
		values:    make(map[string]any, len(root.Content)/2),
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var v any
		if err := root.Content[i+1].Decode(&v); err != nil {
			return nil, &BaseTemplateError{Path: path, Field: key, Msg: "cannot decode", Err: err}
		}
		if _, dup := b.values[key]; !dup {
			b.keys = append(b.keys, key)
		}
		b.values[key] = v

		if key == servicesKey && root.Content[i+1].Kind == yaml.MappingNode {
			svc := root.Content[i+1]
			for j := 0; j+1 < len(svc.Content); j += 2 {
				b.services = append(b.services, svc.Content[j].Value)
			}
		}
	}

	if _, ok := asMap(b.values[servicesKey]); !ok {
		return nil, &BaseTemplateError{Path: path, Field: servicesKey, Msg: "missing or not a mapping"}
	}
	if _, ok := asMap(b.values[sharedKey]); !ok {
		return nil, &BaseTemplateError{Path: path, Field: sharedKey, Msg: "shared service section missing or not a mapping"}
	}

	log.Debug(log.CatCompose, "loaded base template", "path", path, "services", len(b.services))
	return b, nil
}

// Services returns the base template's service names in file order.
func (b *BaseTemplate) Services() []string {
	return append([]string(nil), b.services...)
}

// Shared returns a copy of the shared service section.
func (b *BaseTemplate) Shared() map[string]any {
	m, _ := asMap(clone(b.values[b.SharedKey]))
	return m
}

func (b *BaseTemplate) service(name string) any {
	m, _ := asMap(b.values[servicesKey])
	return clone(m[name])
}

// HostPorts returns host ports published by base services, keyed by port
// with the publishing service as value. Entries whose host side is not a
// literal number are ignored.
func (b *BaseTemplate) HostPorts() map[int]string {
	out := make(map[int]string)
	for _, name := range b.services {
		svc, ok := asMap(b.service(name))
		if !ok {
			continue
		}
		list, ok := svc["ports"].([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			if port, ok := hostPort(entry); ok {
				out[port] = name
			}
		}
	}
	return out
}

// hostPort extracts the published port from a short ("8000:3000",
// "127.0.0.1:8000:3000") or long ({published: 8000}) port entry.
func hostPort(entry any) (int, bool) {
	switch v := entry.(type) {
	case string:
		parts := strings.Split(v, ":")
		if len(parts) < 2 {
			return 0, false
		}
		host := strings.SplitN(parts[len(parts)-2], "/", 2)[0]
		port, err := strconv.Atoi(host)
		return port, err == nil
	case map[string]any:
		switch p := v["published"].(type) {
		case int:
			return p, true
		case string:
			port, err := strconv.Atoi(p)
			return port, err == nil
		}
	}
	return 0, false
}

// environment normalizes a compose environment value (mapping or
// "KEY=VALUE" list) into a mapping.
func environment(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	if m, ok := asMap(v); ok {
		return m, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("environment must be a mapping or a list, got %T", v)
	}
	out := make(map[string]any, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("environment list entries must be strings, got %T", item)
		}
		k, val, _ := strings.Cut(s, "=")
		out[k] = val
	}
	return out, nil
}
