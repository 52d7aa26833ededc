// Package presentation renders command output as styled text or JSON.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/kgfleet/internal/generate"
	"github.com/zjrosen/kgfleet/internal/registry"
	"github.com/zjrosen/kgfleet/internal/rules"
)

// Formatter handles output formatting.
type Formatter struct {
	writer io.Writer

	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
	bold  lipgloss.Style
}

// NewFormatter creates a formatter. Colors are only emitted when writer is
// a terminal that supports them.
func NewFormatter(writer io.Writer) *Formatter {
	r := lipgloss.NewRenderer(writer)
	return &Formatter{
		writer: writer,
		ok:     r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		muted:  r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		bold:   r.NewStyle().Bold(true),
	}
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Result prints one line per project and service, then every warning and
// error with its context.
func (f *Formatter) Result(r *generate.Result) error {
	var sb strings.Builder

	for _, p := range r.Projects {
		status := f.ok.Render("ok")
		if !p.OK() {
			status = f.fail.Render("error")
		}
		fmt.Fprintf(&sb, "%s %s\n", f.bold.Render(p.Name), status)
		for _, s := range p.Services {
			selector := s.Selector
			if selector == "" {
				selector = "*"
			}
			fmt.Fprintf(&sb, "  %-24s port %-5d %s %s\n", s.Name, s.Port, f.muted.Render(s.Mount), f.muted.Render("["+selector+"]"))
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(&sb, "  %s %s\n", f.warn.Render("warning:"), w)
		}
		for _, err := range p.Errors {
			fmt.Fprintf(&sb, "  %s %v\n", f.fail.Render("error:"), err)
		}
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "%s %s\n", f.warn.Render("warning:"), w)
	}
	for _, err := range r.Errors {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(&sb, "%s %s\n", f.fail.Render("error:"), line)
		}
	}

	switch {
	case r.Written:
		fmt.Fprintf(&sb, "%s %s\n", f.ok.Render("wrote"), r.OutputPath)
	case r.DryRun && r.Err() == nil:
		fmt.Fprintf(&sb, "%s %s not modified\n", f.muted.Render("dry run:"), r.OutputPath)
	default:
		fmt.Fprintf(&sb, "%s %s left unchanged\n", f.fail.Render("aborted:"), r.OutputPath)
	}

	_, err := io.WriteString(f.writer, sb.String())
	return err
}

// Diff prints a line diff, coloring added and removed lines.
func (f *Formatter) Diff(diff string) error {
	if diff == "" {
		_, err := fmt.Fprintln(f.writer, f.muted.Render("no changes"))
		return err
	}
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			sb.WriteString(f.ok.Render(line))
		case strings.HasPrefix(line, "-"):
			sb.WriteString(f.fail.Render(line))
		default:
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(f.writer, sb.String())
	return err
}

// Registry prints registry entries, one per line.
func (f *Formatter) Registry(entries []registry.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(f.writer, f.muted.Render("no projects registered"))
		return err
	}
	var sb strings.Builder
	for _, e := range entries {
		state := f.ok.Render("enabled")
		if !e.Enabled {
			state = f.muted.Render("disabled")
		}
		fmt.Fprintf(&sb, "%s %s\n", f.bold.Render(e.Name), state)
		fmt.Fprintf(&sb, "  root:   %s\n", e.RootDir)
		fmt.Fprintf(&sb, "  config: %s\n", e.ConfigPath)
	}
	_, err := io.WriteString(f.writer, sb.String())
	return err
}

// Rules prints a rule loading report.
func (f *Formatter) Rules(catalog *rules.Catalog, report *rules.Report) error {
	var sb strings.Builder
	for _, a := range report.Attempts {
		switch a.Outcome {
		case rules.OutcomeLoaded:
			fmt.Fprintf(&sb, "%s %s %s\n", f.ok.Render("loaded"), a.Path, f.muted.Render(strings.Join(a.Entities, ", ")))
		default:
			fmt.Fprintf(&sb, "%s %s: %v\n", f.fail.Render("failed"), a.Path, a.Err)
		}
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(&sb, "%s %s\n", f.warn.Render("warning:"), w)
	}
	fmt.Fprintf(&sb, "%d entity types: %s\n", catalog.Len(), strings.Join(catalog.Names(), ", "))
	_, err := io.WriteString(f.writer, sb.String())
	return err
}
