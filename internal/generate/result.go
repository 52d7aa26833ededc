package generate

import (
	"errors"
)

// ServiceReport describes one generated service.
type ServiceReport struct {
	ID       string
	Name     string
	Port     int
	Mount    string
	Selector string
}

// ProjectReport collects what happened to one enabled project.
type ProjectReport struct {
	Name     string
	Services []ServiceReport
	Errors   []error
	Warnings []string
}

// OK reports whether the project produced no errors.
func (p ProjectReport) OK() bool { return len(p.Errors) == 0 }

// Result is the outcome of one generation run.
type Result struct {
	RunID      string
	OutputPath string
	Projects   []ProjectReport
	// Errors holds failures not tied to a single project, such as port
	// collisions between projects.
	Errors   []error
	Warnings []string

	// Manifest is the rendered manifest, set whenever synthesis succeeded.
	Manifest []byte
	// Previous is the manifest on disk before the run (dry runs only).
	Previous []byte
	Written  bool
	DryRun   bool
}

// Err joins every project and run-level error, or returns nil.
func (r *Result) Err() error {
	var errs []error
	for _, p := range r.Projects {
		errs = append(errs, p.Errors...)
	}
	errs = append(errs, r.Errors...)
	return errors.Join(errs...)
}

// Project returns the report for name.
func (r *Result) Project(name string) (ProjectReport, bool) {
	for _, p := range r.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return ProjectReport{}, false
}

func (r *Result) project(name string) *ProjectReport {
	for i := range r.Projects {
		if r.Projects[i].Name == name {
			return &r.Projects[i]
		}
	}
	r.Projects = append(r.Projects, ProjectReport{Name: name})
	return &r.Projects[len(r.Projects)-1]
}
