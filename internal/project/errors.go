package project

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing matches any *MissingError.
	ErrConfigMissing = errors.New("project config missing")
	// ErrConfigSchema matches any *SchemaError.
	ErrConfigSchema = errors.New("project config schema error")
)

// MissingError reports a project whose config file does not exist.
type MissingError struct {
	Project string
	Path    string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("project %q: config file %s does not exist", e.Project, e.Path)
}

// Is reports whether target is ErrConfigMissing.
func (e *MissingError) Is(target error) bool { return target == ErrConfigMissing }

// SchemaError reports a shape violation in a project config file.
type SchemaError struct {
	Project string
	Path    string
	// Service is the service id, or "#<index>" when the id is unknown.
	Service string
	Field   string
	Msg     string
}

func (e *SchemaError) Error() string {
	where := fmt.Sprintf("project %q", e.Project)
	if e.Service != "" {
		where += fmt.Sprintf(", service %q", e.Service)
	}
	if e.Field != "" {
		where += fmt.Sprintf(", field %q", e.Field)
	}
	return fmt.Sprintf("%s (%s): %s", where, e.Path, e.Msg)
}

// Is reports whether target is ErrConfigSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrConfigSchema }
