package compose

import (
	"bytes"
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/log"
)

// DefaultPortVar names the container port variable interpolated by the
// container runtime.
const DefaultPortVar = "MCP_PORT"

// ServiceBlock is everything the synthesizer needs for one generated service.
type ServiceBlock struct {
	Project       string
	ServiceID     string
	Name          string
	ContainerName string
	Port          int
	GroupID       string
	// MountHostPath is the absolute host directory mounted read-only.
	MountHostPath string
	Selector      string
	IncludeRoot   bool
	// Environment holds project-supplied extra variables.
	Environment map[string]string
}

// Options configures a Synthesizer.
type Options struct {
	ContainerPath string
	PortVar       string
	// PortFloor is only used in the header note.
	PortFloor int
	Generator string
}

// Synthesizer builds manifests from a base template.
type Synthesizer struct {
	base *BaseTemplate
	opts Options
}

// NewSynthesizer returns a synthesizer for base.
func NewSynthesizer(base *BaseTemplate, opts Options) *Synthesizer {
	if opts.ContainerPath == "" {
		opts.ContainerPath = entities.DefaultContainerPath
	}
	if opts.PortVar == "" {
		opts.PortVar = DefaultPortVar
	}
	if opts.Generator == "" {
		opts.Generator = "kgfleet"
	}
	return &Synthesizer{base: base, opts: opts}
}

// Document is a synthesized manifest ready to render.
type Document struct {
	Header []string
	// Services lists generated service names in manifest order.
	Services []string
	Warnings []string

	root *yaml.Node
}

// Synthesize builds the full manifest. Blocks are ordered by project then
// service id regardless of input order. Nothing is written to disk.
func (s *Synthesizer) Synthesize(blocks []ServiceBlock) (*Document, error) {
	sorted := slices.Clone(blocks)
	slices.SortFunc(sorted, func(a, b ServiceBlock) int {
		if c := cmp.Compare(a.Project, b.Project); c != 0 {
			return c
		}
		return cmp.Compare(a.ServiceID, b.ServiceID)
	})

	if err := s.checkNames(sorted); err != nil {
		return nil, err
	}

	shared := s.base.Shared()
	sharedEnv, err := environment(shared["environment"])
	if err != nil {
		return nil, &BaseTemplateError{Path: s.base.Path, Field: s.base.SharedKey + ".environment", Msg: err.Error()}
	}

	doc := &Document{Header: s.header()}
	generated := make([]*yaml.Node, 0, 2*len(sorted))
	for _, b := range sorted {
		svc, warnings, err := s.service(shared, sharedEnv, b)
		doc.Warnings = append(doc.Warnings, warnings...)
		if err != nil {
			return nil, err
		}

		key, val, err := keyValue(b.Name, svc)
		if err != nil {
			return nil, fmt.Errorf("encode service %s: %w", b.Name, err)
		}
		generated = append(generated, key, val)
		doc.Services = append(doc.Services, b.Name)
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range s.base.keys {
		if k == servicesKey {
			services := &yaml.Node{Kind: yaml.MappingNode}
			for _, name := range s.base.services {
				key, val, err := keyValue(name, s.base.service(name))
				if err != nil {
					return nil, fmt.Errorf("encode base service %s: %w", name, err)
				}
				services.Content = append(services.Content, key, val)
			}
			services.Content = append(services.Content, generated...)
			root.Content = append(root.Content, scalar(k), services)
			continue
		}
		key, val, err := keyValue(k, s.base.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		root.Content = append(root.Content, key, val)
	}
	doc.root = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}

	log.Debug(log.CatCompose, "synthesized manifest", "generated", len(doc.Services), "warnings", len(doc.Warnings))
	return doc, nil
}

func (s *Synthesizer) checkNames(blocks []ServiceBlock) error {
	owners := make(map[string][]string)
	var order []string
	for _, name := range s.base.services {
		owners[name] = append(owners[name], "base template")
		order = append(order, name)
	}
	for _, b := range blocks {
		if b.Name == "" {
			return fmt.Errorf("project %s service %s: empty compose service name", b.Project, b.ServiceID)
		}
		if _, seen := owners[b.Name]; !seen {
			order = append(order, b.Name)
		}
		owners[b.Name] = append(owners[b.Name], fmt.Sprintf("project %s service %s", b.Project, b.ServiceID))
	}
	for _, name := range order {
		if len(owners[name]) > 1 {
			return &ServiceConflictError{Name: name, Sources: owners[name]}
		}
	}
	return nil
}

// service builds one generated service: shared section merged with the
// per-service overrides.
func (s *Synthesizer) service(shared, sharedEnv map[string]any, b ServiceBlock) (any, []string, error) {
	var warnings []string
	where := fmt.Sprintf("project %s service %s", b.Project, b.ServiceID)

	env := make(map[string]any, len(sharedEnv)+len(entities.RequiredEnv)+len(b.Environment))
	for k, v := range sharedEnv {
		env[k] = v
	}
	extras := make([]string, 0, len(b.Environment))
	for k := range b.Environment {
		extras = append(extras, k)
	}
	slices.Sort(extras)
	for _, k := range extras {
		if slices.Contains(entities.RequiredEnv, k) {
			warnings = append(warnings, fmt.Sprintf("%s: environment %s is managed by the generator, project value ignored", where, k))
			continue
		}
		env[k] = b.Environment[k]
	}
	env[entities.EnvGroupID] = b.GroupID
	env[entities.EnvUseCustomEntities] = "true"
	env[entities.EnvEntitiesDir] = s.opts.ContainerPath
	env[entities.EnvEntities] = b.Selector
	env[entities.EnvIncludeRootEntities] = strconv.FormatBool(b.IncludeRoot)

	var volumes []any
	if list, ok := shared["volumes"].([]any); ok {
		for _, v := range list {
			if str, ok := v.(string); ok && mountTarget(str) == s.opts.ContainerPath {
				warnings = append(warnings, fmt.Sprintf("%s: dropped shared volume %q targeting %s", where, str, s.opts.ContainerPath))
				continue
			}
			volumes = append(volumes, v)
		}
	} else if shared["volumes"] != nil {
		warnings = append(warnings, fmt.Sprintf("%s: shared volumes is not a list, ignored", where))
	}
	volumes = append(volumes, fmt.Sprintf("%s:%s:ro", filepath.ToSlash(b.MountHostPath), s.opts.ContainerPath))

	rest, _ := asMap(clone(shared))
	delete(rest, "volumes")
	delete(rest, "environment")
	override := map[string]any{
		"container_name": b.ContainerName,
		"ports":          []any{fmt.Sprintf("%d:${%s}", b.Port, s.opts.PortVar)},
		"environment":    env,
		"volumes":        volumes,
	}
	for _, w := range warnings {
		log.Warn(log.CatCompose, w)
	}
	svc, err := Merge(rest, override)
	if err != nil {
		return nil, warnings, fmt.Errorf("%s: %w", where, err)
	}
	return svc, warnings, nil
}

// mountTarget returns the container side of a short volume entry.
func mountTarget(volume string) string {
	parts := strings.Split(volume, ":")
	if len(parts) < 2 {
		return ""
	}
	if len(parts) >= 3 {
		return parts[len(parts)-2]
	}
	return parts[1]
}

func (s *Synthesizer) header() []string {
	base := filepath.Base(s.base.Path)
	if base == "." || base == "" {
		base = "the base template"
	}
	lines := []string{
		"Generated by " + s.opts.Generator,
		fmt.Sprintf("Do not edit this file directly. Modify %s or the project mcp-config.yaml files instead.", base),
	}
	if s.opts.PortFloor > 0 {
		lines = append(lines,
			fmt.Sprintf("Ports: assigned from %d upward and kept stable across runs.", s.opts.PortFloor),
			"       Override with 'port_default' in a project's mcp-config.yaml.",
		)
	}
	return lines
}

// Render serializes the document with its header comment.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	for _, line := range d.Header {
		buf.WriteString(strings.TrimRight("# "+line, " "))
		buf.WriteByte('\n')
	}
	if len(d.Header) > 0 {
		buf.WriteByte('\n')
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func keyValue(key string, v any) (*yaml.Node, *yaml.Node, error) {
	val := &yaml.Node{}
	if err := val.Encode(v); err != nil {
		return nil, nil, err
	}
	return scalar(key), val, nil
}
