// Package rules is the service-side half of the entity selection contract.
// Given a mounted directory and a selector it discovers and loads domain-rule
// files, isolating every file so one bad file or one missing selected
// subdirectory never stops the rest from loading.
package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/log"
)

// Field describes one attribute of an entity type.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// EntityType is one extraction rule loaded from a rule file.
type EntityType struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Fields      []Field `yaml:"fields"`
	// Source is the file the type was loaded from.
	Source string `yaml:"-"`
}

// ruleFile is either a single entity type or a list under "entities".
type ruleFile struct {
	EntityType `yaml:",inline"`
	Entities   []EntityType `yaml:"entities"`
}

// Outcome classifies a load attempt.
type Outcome string

const (
	OutcomeLoaded Outcome = "loaded"
	OutcomeFailed Outcome = "failed"
)

// LoadAttempt records what happened to one rule file.
type LoadAttempt struct {
	Path     string
	Outcome  Outcome
	Entities []string
	Err      error
}

// Report aggregates every attempt made during a load.
type Report struct {
	Attempts []LoadAttempt
	Warnings []string
}

// Failed returns the attempts that did not load.
func (r *Report) Failed() []LoadAttempt {
	var out []LoadAttempt
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeFailed {
			out = append(out, a)
		}
	}
	return out
}

// Loaded returns the attempts that loaded.
func (r *Report) Loaded() []LoadAttempt {
	var out []LoadAttempt
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeLoaded {
			out = append(out, a)
		}
	}
	return out
}

func (r *Report) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	log.Warn(log.CatRules, msg)
}

// Catalog holds loaded entity types by name. A later definition with the
// same name replaces the earlier one.
type Catalog struct {
	types map[string]EntityType
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]EntityType)}
}

// Register adds or replaces an entity type.
func (c *Catalog) Register(t EntityType) {
	c.types[t.Name] = t
}

// Get returns the named entity type.
func (c *Catalog) Get(name string) (EntityType, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Names returns registered names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered types.
func (c *Catalog) Len() int {
	return len(c.types)
}

// Subset returns a catalog with only the named types that exist.
func (c *Catalog) Subset(names ...string) *Catalog {
	out := NewCatalog()
	for _, n := range names {
		if t, ok := c.types[n]; ok {
			out.Register(t)
		}
	}
	return out
}

// Load loads rule files from mount according to selector into a new catalog.
func Load(mount, selector string) (*Catalog, *Report) {
	catalog := NewCatalog()
	report := &Report{}
	LoadInto(catalog, report, mount, selector)
	return catalog, report
}

// LoadInto loads into an existing catalog and report. An empty selector
// loads every rule file under mount recursively; otherwise each selected
// child of mount is loaded and missing children are reported as warnings.
func LoadInto(catalog *Catalog, report *Report, mount, selector string) {
	names := entities.ParseSelector(selector)
	if len(names) == 0 {
		loadTree(catalog, report, mount)
		return
	}
	for _, name := range names {
		dir := filepath.Join(mount, name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			report.warn("selected entity subdirectory %q not found under %s, skipping", name, mount)
			continue
		}
		loadTree(catalog, report, dir)
	}
}

// loadTree walks dir and loads every rule file beneath it.
func loadTree(catalog *Catalog, report *Report, dir string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		report.warn("entity directory %s does not exist or is not a directory", dir)
		return
	}

	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			report.warn("cannot read %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if isRuleFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		report.warn("walking %s: %v", dir, walkErr)
	}

	log.Info(log.CatRules, "discovered rule files", "dir", dir, "count", len(files))
	for _, path := range files {
		report.Attempts = append(report.Attempts, loadFile(catalog, path))
	}
}

func isRuleFile(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// loadFile parses one rule file. Any failure is captured in the attempt.
func loadFile(catalog *Catalog, path string) (attempt LoadAttempt) {
	attempt = LoadAttempt{Path: path, Outcome: OutcomeFailed}
	defer func() {
		if r := recover(); r != nil {
			attempt.Outcome = OutcomeFailed
			attempt.Entities = nil
			attempt.Err = fmt.Errorf("panic while loading: %v", r)
		}
		if attempt.Err != nil {
			log.ErrorErr(log.CatRules, "failed to load rule file", attempt.Err, "path", path)
		}
	}()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path discovered under the rule mount
	if err != nil {
		attempt.Err = fmt.Errorf("reading: %w", err)
		return attempt
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		attempt.Err = fmt.Errorf("parsing: %w", err)
		return attempt
	}

	defs := file.Entities
	if file.Name != "" {
		defs = append([]EntityType{file.EntityType}, defs...)
	}
	if len(defs) == 0 {
		attempt.Err = errors.New("no entity types defined")
		return attempt
	}
	for i, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			attempt.Err = fmt.Errorf("entity #%d has no name", i)
			return attempt
		}
	}

	for _, def := range defs {
		def.Source = path
		if _, exists := catalog.Get(def.Name); exists {
			log.Warn(log.CatRules, "entity type redefined", "name", def.Name, "path", path)
		}
		catalog.Register(def)
		attempt.Entities = append(attempt.Entities, def.Name)
	}
	attempt.Outcome = OutcomeLoaded
	log.Info(log.CatRules, "loaded rule file", "path", path, "entities", len(defs))
	return attempt
}
