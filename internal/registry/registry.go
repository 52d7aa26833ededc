// Package registry stores the installation-wide list of known projects.
//
// The registry file maps project names to their root directory, their
// service-definition file and an enabled flag. Ports assigned by previous
// generations are kept alongside each entry so that regeneration does not
// move a service to a different host port.
package registry

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
)

// Entry is one registered project.
type Entry struct {
	Name       string
	RootDir    string
	ConfigPath string
	Enabled    bool
	// Ports holds the host port last assigned to each service id.
	Ports map[string]int
}

// Validate checks that both paths are absolute.
func (e Entry) Validate() error {
	if e.RootDir == "" || !filepath.IsAbs(e.RootDir) {
		return &InvalidPathError{Project: e.Name, Field: "root_dir", Path: e.RootDir}
	}
	if e.ConfigPath == "" || !filepath.IsAbs(e.ConfigPath) {
		return &InvalidPathError{Project: e.Name, Field: "config_file", Path: e.ConfigPath}
	}
	return nil
}

// Registry is an in-memory copy of the registry file. It is loaded fresh on
// every invocation and never shared between runs.
type Registry struct {
	entries map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Names returns project names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.entries))
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, name := range r.Names() {
		out = append(out, r.entries[name])
	}
	return out
}

// Enabled returns the enabled entries sorted by name.
func (r *Registry) Enabled() []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// Put adds or replaces an entry after validating its paths. Existing port
// assignments are kept when the new entry carries none.
func (r *Registry) Put(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if prev, ok := r.entries[e.Name]; ok && e.Ports == nil {
		e.Ports = prev.Ports
	}
	r.entries[e.Name] = e
	return nil
}

// SetEnabled flips the enabled flag of an existing project.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("project %q is not registered", name)
	}
	e.Enabled = enabled
	r.entries[name] = e
	return nil
}

// SetPorts replaces the recorded port assignments for a project.
func (r *Registry) SetPorts(name string, ports map[string]int) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("project %q is not registered", name)
	}
	if len(ports) == 0 {
		e.Ports = nil
	} else {
		e.Ports = maps.Clone(ports)
	}
	r.entries[name] = e
	return nil
}

// Remove deletes a project and reports whether it was registered.
func (r *Registry) Remove(name string) bool {
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}
