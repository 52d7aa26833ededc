// Package entities resolves a service's entities_dir into the single host
// mount and selector string handed to the running service.
//
// A string entities_dir mounts that directory and loads everything under it.
// A list entities_dir must name sibling directories: their shared parent is
// mounted once and the selector lists the chosen children, so each service
// keeps exactly one volume mount no matter how narrow its selection is.
package entities

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zjrosen/kgfleet/internal/log"
	"github.com/zjrosen/kgfleet/internal/project"
)

const (
	// DefaultDomainRoot is where rule directories live, relative to a project root.
	DefaultDomainRoot = "ai/graph"
	// DefaultEntitiesDir is mounted when a list-form entities_dir is empty.
	DefaultEntitiesDir = "entities"
)

// SelectionSpec is the resolved mount and selector for one service.
type SelectionSpec struct {
	// MountHostPath is the absolute host directory mounted into the container.
	MountHostPath string
	// Selector is "" (load all) or comma-joined child directory names.
	Selector string
}

// Names returns the selected child names, or nil when everything is loaded.
func (s SelectionSpec) Names() []string {
	return ParseSelector(s.Selector)
}

// Resolution is a SelectionSpec plus any non-fatal findings.
type Resolution struct {
	Spec     SelectionSpec
	Warnings []string
}

// Resolver turns entities_dir settings into selection specs.
type Resolver struct {
	// DomainRoot is the rule root relative to each project's root directory.
	DomainRoot string
	// DefaultDir is used for an empty list-form entities_dir.
	DefaultDir string
}

// NewResolver returns a resolver with the given domain root, falling back to
// DefaultDomainRoot when empty.
func NewResolver(domainRoot string) *Resolver {
	if domainRoot == "" {
		domainRoot = DefaultDomainRoot
	}
	return &Resolver{DomainRoot: domainRoot, DefaultDir: DefaultEntitiesDir}
}

// Root returns the absolute domain-rule root for a project.
func (r *Resolver) Root(projectRoot string) string {
	return filepath.Join(projectRoot, filepath.FromSlash(r.DomainRoot))
}

// Resolve computes the selection spec for svc of the project rooted at
// projectRoot. List-form failures return *MixedParentError or
// *MissingSubdirError; malformed entries return *project.SchemaError.
func (r *Resolver) Resolve(projectRoot string, svc project.ServiceDefinition) (Resolution, error) {
	root := r.Root(projectRoot)
	dir := svc.EntitiesDir

	if !dir.List {
		rel, err := r.cleanEntry(svc, dir.Paths[0])
		if err != nil {
			return Resolution{}, err
		}
		mount := filepath.Join(root, filepath.FromSlash(rel))
		res := Resolution{Spec: SelectionSpec{MountHostPath: mount}}
		if !isDir(mount) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("entity directory %s does not exist; volume mount may fail", mount))
		}
		log.Debug(log.CatEntities, "resolved load-all selection", "project", svc.Project, "service", svc.ID, "mount", mount)
		return res, nil
	}

	if len(dir.Paths) == 0 {
		mount := filepath.Join(root, r.DefaultDir)
		res := Resolution{
			Spec: SelectionSpec{MountHostPath: mount},
			Warnings: []string{
				fmt.Sprintf("empty entities_dir list, defaulting to all rules under %s", mount),
			},
		}
		if !isDir(mount) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("default entity directory %s does not exist", mount))
		}
		return res, nil
	}

	entries := make([]string, len(dir.Paths))
	parents := make([]string, len(dir.Paths))
	names := make([]string, 0, len(dir.Paths))
	mixed := false
	for i, raw := range dir.Paths {
		rel, err := r.cleanEntry(svc, raw)
		if err != nil {
			return Resolution{}, err
		}
		entries[i] = raw
		parents[i] = path.Dir(rel)
		if parents[i] != parents[0] {
			mixed = true
		}

		name := path.Base(rel)
		if !validName(name) {
			return Resolution{}, schemaError(svc, fmt.Sprintf("entry %q does not name a subdirectory", raw))
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if mixed {
		return Resolution{}, &MixedParentError{
			Project: svc.Project,
			Service: svc.ID,
			Entries: entries,
			Parents: parents,
		}
	}

	mount := filepath.Join(root, filepath.FromSlash(parents[0]))
	for _, name := range names {
		if !isDir(filepath.Join(mount, name)) {
			return Resolution{}, &MissingSubdirError{
				Project: svc.Project,
				Service: svc.ID,
				Mount:   mount,
				Name:    name,
			}
		}
	}

	spec := SelectionSpec{MountHostPath: mount, Selector: FormatSelector(names)}
	log.Debug(log.CatEntities, "resolved filtered selection", "project", svc.Project, "service", svc.ID,
		"mount", mount, "selector", spec.Selector)
	return Resolution{Spec: spec}, nil
}

// cleanEntry normalizes one entities_dir entry to a slash-separated path
// relative to the domain root. Entries may not escape the root.
func (r *Resolver) cleanEntry(svc project.ServiceDefinition, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", schemaError(svc, "entries must not be empty")
	}
	slashed := filepath.ToSlash(trimmed)
	if path.IsAbs(slashed) || filepath.IsAbs(trimmed) {
		return "", schemaError(svc, fmt.Sprintf("entry %q must be relative to %s", raw, r.DomainRoot))
	}
	rel := path.Clean(slashed)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", schemaError(svc, fmt.Sprintf("entry %q escapes %s", raw, r.DomainRoot))
	}
	return rel, nil
}

func schemaError(svc project.ServiceDefinition, msg string) error {
	return &project.SchemaError{
		Project: svc.Project,
		Service: svc.ID,
		Field:   "entities_dir",
		Msg:     msg,
	}
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
