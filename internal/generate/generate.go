// Package generate runs the full pipeline: registry, project configs,
// entity selection, port allocation, manifest synthesis and editor sync.
//
// Every configuration error is collected before anything is written. If any
// project or the port allocation fails, the previous manifest and registry
// stay untouched.
package generate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/kgfleet/internal/compose"
	"github.com/zjrosen/kgfleet/internal/editor"
	"github.com/zjrosen/kgfleet/internal/entities"
	"github.com/zjrosen/kgfleet/internal/log"
	"github.com/zjrosen/kgfleet/internal/ports"
	"github.com/zjrosen/kgfleet/internal/project"
	"github.com/zjrosen/kgfleet/internal/registry"
	"github.com/zjrosen/kgfleet/internal/tracing"
)

// Options configures a run. Paths must be absolute.
type Options struct {
	RegistryPath string
	BasePath     string
	OutputPath   string

	SharedKey     string
	ServicePrefix string
	PortFloor     int

	DomainRoot    string
	DefaultDir    string
	ContainerPath string

	Editor     editor.Options
	SkipEditor bool

	// DryRun renders the manifest without writing any file.
	DryRun bool

	Tracer trace.Tracer
}

// plannedService is a resolved service waiting for its port.
type plannedService struct {
	def  project.ServiceDefinition
	spec entities.SelectionSpec
}

type plannedProject struct {
	entry    registry.Entry
	services []plannedService
}

// Run executes one generation. The returned Result is always non-nil and
// carries per-project reports; the error is non-nil when nothing was
// written because of configuration errors, or when a write failed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}

	res := &Result{RunID: uuid.NewString(), OutputPath: opts.OutputPath, DryRun: opts.DryRun}
	ctx, span := tracing.Start(ctx, tracer, tracing.SpanGenerate,
		attribute.String(tracing.AttrRunID, res.RunID),
		attribute.Bool(tracing.AttrDryRun, opts.DryRun),
	)
	var runErr error
	defer func() { tracing.End(span, runErr) }()

	log.Info(log.CatGenerate, "generation started", "run_id", res.RunID, "registry", opts.RegistryPath)

	store := registry.NewStore(opts.RegistryPath)
	reg, err := loadRegistry(ctx, tracer, store)
	if err != nil {
		runErr = err
		res.Errors = append(res.Errors, err)
		return res, err
	}

	base, err := compose.LoadBase(opts.BasePath, opts.SharedKey)
	if err != nil {
		runErr = err
		res.Errors = append(res.Errors, err)
		return res, err
	}

	loader := project.NewLoader(opts.ServicePrefix)
	resolver := entities.NewResolver(opts.DomainRoot)
	if opts.DefaultDir != "" {
		resolver.DefaultDir = opts.DefaultDir
	}

	var planned []plannedProject
	for _, entry := range reg.Enabled() {
		p, ok := planProject(ctx, tracer, loader, resolver, entry, res.project(entry.Name))
		if ok {
			planned = append(planned, p)
		}
	}

	assignments, err := allocate(ctx, tracer, opts.PortFloor, base, planned, disabled(reg))
	if err != nil {
		res.Errors = append(res.Errors, err)
	}

	if err := res.Err(); err != nil {
		runErr = err
		log.ErrorErr(log.CatGenerate, "generation aborted, nothing written", err, "run_id", res.RunID)
		return res, err
	}

	blocks := buildBlocks(opts.ServicePrefix, planned, assignments, res)
	synth := compose.NewSynthesizer(base, compose.Options{
		ContainerPath: opts.ContainerPath,
		PortFloor:     opts.PortFloor,
	})
	doc, err := synth.Synthesize(blocks)
	if err != nil {
		runErr = err
		res.Errors = append(res.Errors, err)
		return res, err
	}
	res.Warnings = append(res.Warnings, doc.Warnings...)
	for _, w := range doc.Warnings {
		tracing.Warn(span, w)
	}

	res.Manifest, err = doc.Render()
	if err != nil {
		runErr = err
		return res, err
	}

	if opts.DryRun {
		prev, err := os.ReadFile(opts.OutputPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			runErr = err
			return res, fmt.Errorf("read current manifest: %w", err)
		}
		res.Previous = prev
		log.Info(log.CatGenerate, "dry run complete", "run_id", res.RunID, "services", len(blocks))
		return res, nil
	}

	if err := writeManifest(ctx, tracer, opts.OutputPath, doc); err != nil {
		runErr = err
		return res, err
	}
	res.Written = true

	if err := savePorts(store, reg, planned, assignments); err != nil {
		runErr = err
		return res, err
	}

	if !opts.SkipEditor {
		syncEditors(ctx, tracer, opts.Editor, planned, assignments, res)
	}

	log.Info(log.CatGenerate, "generation finished", "run_id", res.RunID, "services", len(blocks), "warnings", len(res.Warnings))
	return res, nil
}

func loadRegistry(ctx context.Context, tracer trace.Tracer, store *registry.Store) (*registry.Registry, error) {
	_, span := tracing.Start(ctx, tracer, tracing.SpanRegistry, attribute.String(tracing.AttrPath, store.Path()))
	reg, err := store.Load()
	tracing.End(span, err)
	return reg, err
}

// planProject loads and resolves one project. Any error marks the whole
// project failed; every service is still checked so all problems surface
// in one run.
func planProject(ctx context.Context, tracer trace.Tracer, loader *project.Loader, resolver *entities.Resolver,
	entry registry.Entry, report *ProjectReport) (plannedProject, bool) {
	ctx, span := tracing.Start(ctx, tracer, tracing.SpanProject, attribute.String(tracing.AttrProject, entry.Name))
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	defs, err := loader.Load(entry.ConfigPath, entry.Name)
	if err != nil {
		spanErr = err
		report.Errors = append(report.Errors, err)
		log.ErrorErr(log.CatConfig, "project config rejected", err, "project", entry.Name)
		return plannedProject{}, false
	}

	p := plannedProject{entry: entry}
	for _, def := range defs {
		_, rspan := tracing.Start(ctx, tracer, tracing.SpanEntities,
			attribute.String(tracing.AttrProject, entry.Name),
			attribute.String(tracing.AttrService, def.ID),
		)
		resolution, err := resolver.Resolve(entry.RootDir, def)
		if err == nil {
			rspan.SetAttributes(attribute.String(tracing.AttrSelector, resolution.Spec.Selector))
		}
		for _, w := range resolution.Warnings {
			tracing.Warn(rspan, w)
		}
		tracing.End(rspan, err)

		report.Warnings = append(report.Warnings, resolution.Warnings...)
		if err != nil {
			report.Errors = append(report.Errors, err)
			log.ErrorErr(log.CatEntities, "entity selection rejected", err, "project", entry.Name, "service", def.ID)
			continue
		}
		p.services = append(p.services, plannedService{def: def, spec: resolution.Spec})
	}

	if len(report.Errors) > 0 {
		spanErr = errors.Join(report.Errors...)
		return plannedProject{}, false
	}
	return p, true
}

// disabled returns the registry entries that are not generated this run.
func disabled(reg *registry.Registry) []registry.Entry {
	var out []registry.Entry
	for _, e := range reg.Entries() {
		if !e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// allocate assigns ports to the planned services. Ports recorded for
// disabled projects stay held so re-enabling a project restores them.
func allocate(ctx context.Context, tracer trace.Tracer, floor int, base *compose.BaseTemplate,
	planned []plannedProject, held []registry.Entry) (ports.Assignments, error) {
	_, span := tracing.Start(ctx, tracer, tracing.SpanPorts)

	alloc := ports.NewAllocator(floor)
	for port, owner := range base.HostPorts() {
		alloc.Reserve(port, "base template service "+owner)
	}
	for _, e := range held {
		for id, port := range e.Ports {
			alloc.Hold(port, ports.Key{Project: e.Name, Service: id}.String())
		}
	}

	existing := make(ports.Assignments)
	var requests []ports.Request
	for _, p := range planned {
		for id, port := range p.entry.Ports {
			existing[ports.Key{Project: p.entry.Name, Service: id}] = port
		}
		for _, s := range p.services {
			requests = append(requests, ports.Request{
				Key:      ports.Key{Project: p.entry.Name, Service: s.def.ID},
				Explicit: s.def.PortDefault,
			})
		}
	}

	assignments, err := alloc.Allocate(existing, requests)
	span.SetAttributes(attribute.Int(tracing.AttrServices, len(requests)))
	tracing.End(span, err)
	return assignments, err
}

func buildBlocks(prefix string, planned []plannedProject, assignments ports.Assignments, res *Result) []compose.ServiceBlock {
	if prefix == "" {
		prefix = project.DefaultServicePrefix
	}
	var blocks []compose.ServiceBlock
	for _, p := range planned {
		report := res.project(p.entry.Name)
		for _, s := range p.services {
			port := assignments[ports.Key{Project: p.entry.Name, Service: s.def.ID}]
			name := s.def.ServiceName(prefix)
			blocks = append(blocks, compose.ServiceBlock{
				Project:       p.entry.Name,
				ServiceID:     s.def.ID,
				Name:          name,
				ContainerName: s.def.ContainerName,
				Port:          port,
				GroupID:       s.def.GroupID,
				MountHostPath: s.spec.MountHostPath,
				Selector:      s.spec.Selector,
				IncludeRoot:   s.def.IncludeRootEntities,
				Environment:   s.def.Environment,
			})
			report.Services = append(report.Services, ServiceReport{
				ID:       s.def.ID,
				Name:     name,
				Port:     port,
				Mount:    s.spec.MountHostPath,
				Selector: s.spec.Selector,
			})
		}
	}
	return blocks
}

func writeManifest(ctx context.Context, tracer trace.Tracer, path string, doc *compose.Document) error {
	_, span := tracing.Start(ctx, tracer, tracing.SpanCompose,
		attribute.String(tracing.AttrPath, path),
		attribute.Int(tracing.AttrServices, len(doc.Services)),
	)
	err := compose.WriteManifest(path, doc)
	tracing.End(span, err)
	return err
}

// savePorts records the new assignments in the registry, writing the file
// only when something changed.
func savePorts(store *registry.Store, reg *registry.Registry, planned []plannedProject, assignments ports.Assignments) error {
	changed := false
	for _, p := range planned {
		next := assignments.ForProject(p.entry.Name)
		if maps.Equal(next, p.entry.Ports) {
			continue
		}
		if err := reg.SetPorts(p.entry.Name, next); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}
	if err := store.Save(reg); err != nil {
		return fmt.Errorf("record port assignments: %w", err)
	}
	log.Debug(log.CatGenerate, "recorded port assignments", "registry", store.Path())
	return nil
}

// syncEditors writes editor descriptors. Failures become warnings.
func syncEditors(ctx context.Context, tracer trace.Tracer, opts editor.Options, planned []plannedProject,
	assignments ports.Assignments, res *Result) {
	for _, p := range planned {
		var endpoints []editor.Endpoint
		for _, s := range p.services {
			if !s.def.SyncEditorConfig {
				continue
			}
			endpoints = append(endpoints, editor.Endpoint{
				ServiceID: s.def.ID,
				Port:      assignments[ports.Key{Project: p.entry.Name, Service: s.def.ID}],
			})
		}
		if len(endpoints) == 0 {
			continue
		}

		_, span := tracing.Start(ctx, tracer, tracing.SpanEditor, attribute.String(tracing.AttrProject, p.entry.Name))
		warnings, err := editor.Sync(p.entry.RootDir, endpoints, opts)
		report := res.project(p.entry.Name)
		report.Warnings = append(report.Warnings, warnings...)
		if err != nil {
			msg := fmt.Sprintf("editor descriptor not updated: %v", err)
			report.Warnings = append(report.Warnings, msg)
			tracing.Warn(span, msg)
			log.Warn(log.CatEditor, msg, "project", p.entry.Name)
		}
		tracing.End(span, nil)
	}
}
