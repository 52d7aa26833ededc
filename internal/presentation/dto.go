package presentation

import (
	"github.com/zjrosen/kgfleet/internal/generate"
	"github.com/zjrosen/kgfleet/internal/registry"
)

// ResultDTO is the JSON form of a generation run.
type ResultDTO struct {
	RunID    string       `json:"run_id"`
	Output   string       `json:"output"`
	Written  bool         `json:"written"`
	DryRun   bool         `json:"dry_run,omitempty"`
	Projects []ProjectDTO `json:"projects"`
	Errors   []string     `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// ProjectDTO is the JSON form of one project report.
type ProjectDTO struct {
	Name     string       `json:"name"`
	OK       bool         `json:"ok"`
	Services []ServiceDTO `json:"services"`
	Errors   []string     `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// ServiceDTO is the JSON form of one generated service.
type ServiceDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Port     int    `json:"port"`
	Mount    string `json:"mount"`
	Selector string `json:"selector"`
}

// RegistryEntryDTO is the JSON form of a registry entry.
type RegistryEntryDTO struct {
	Name       string         `json:"name"`
	RootDir    string         `json:"root_dir"`
	ConfigFile string         `json:"config_file"`
	Enabled    bool           `json:"enabled"`
	Ports      map[string]int `json:"ports,omitempty"`
}

// FromResult converts a generation result.
func FromResult(r *generate.Result) ResultDTO {
	dto := ResultDTO{
		RunID:    r.RunID,
		Output:   r.OutputPath,
		Written:  r.Written,
		DryRun:   r.DryRun,
		Projects: make([]ProjectDTO, 0, len(r.Projects)),
		Errors:   errorStrings(r.Errors),
		Warnings: r.Warnings,
	}
	for _, p := range r.Projects {
		pd := ProjectDTO{
			Name:     p.Name,
			OK:       p.OK(),
			Services: make([]ServiceDTO, 0, len(p.Services)),
			Errors:   errorStrings(p.Errors),
			Warnings: p.Warnings,
		}
		for _, s := range p.Services {
			pd.Services = append(pd.Services, ServiceDTO(s))
		}
		dto.Projects = append(dto.Projects, pd)
	}
	return dto
}

// FromEntries converts registry entries.
func FromEntries(entries []registry.Entry) []RegistryEntryDTO {
	out := make([]RegistryEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, RegistryEntryDTO{
			Name:       e.Name,
			RootDir:    e.RootDir,
			ConfigFile: e.ConfigPath,
			Enabled:    e.Enabled,
			Ports:      e.Ports,
		})
	}
	return out
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
