package rules

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/log"
)

// DefaultSharedRoot is the installation's shared default rule directory
// inside a service container.
const DefaultSharedRoot = "/app/entities"

// ServiceOptions is what a running service needs to load its rules.
type ServiceOptions struct {
	// SharedRoot holds the installation's shared default rules.
	SharedRoot string
	// Mount is the project selection mount.
	Mount    string
	Selector string
	// IncludeRoot loads SharedRoot before Mount.
	IncludeRoot bool
	// UseCustom disables all rule loading when false.
	UseCustom bool
}

// OptionsFromEnv reads the selection contract from environment values as
// written into the generated manifest.
func OptionsFromEnv(getenv func(string) string, sharedRoot string) ServiceOptions {
	if sharedRoot == "" {
		sharedRoot = DefaultSharedRoot
	}
	mount := getenv(entities.EnvEntitiesDir)
	if mount == "" {
		mount = entities.DefaultContainerPath
	}
	return ServiceOptions{
		SharedRoot:  sharedRoot,
		Mount:       mount,
		Selector:    getenv(entities.EnvEntities),
		IncludeRoot: parseBool(getenv(entities.EnvIncludeRootEntities), true),
		UseCustom:   parseBool(getenv(entities.EnvUseCustomEntities), false),
	}
}

// LoadService loads the shared rules (when requested) followed by the
// project selection. It never fails; problems are in the report.
func LoadService(opts ServiceOptions) (*Catalog, *Report) {
	catalog := NewCatalog()
	report := &Report{}
	if !opts.UseCustom {
		log.Info(log.CatRules, "custom entities disabled, no rules loaded")
		return catalog, report
	}

	if opts.IncludeRoot && opts.SharedRoot != "" {
		if filepath.Clean(opts.SharedRoot) == filepath.Clean(opts.Mount) {
			log.Info(log.CatRules, "project mount is the shared root, skipping redundant load", "dir", opts.Mount)
		} else {
			LoadInto(catalog, report, opts.SharedRoot, "")
		}
	}
	LoadInto(catalog, report, opts.Mount, opts.Selector)

	log.Info(log.CatRules, "rule loading finished",
		"types", catalog.Len(), "loaded", len(report.Loaded()), "failed", len(report.Failed()), "warnings", len(report.Warnings))
	return catalog, report
}

func parseBool(v string, def bool) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
