package compose

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBaseTemplate matches any *BaseTemplateError.
	ErrBaseTemplate = errors.New("invalid base template")
	// ErrServiceConflict matches any *ServiceConflictError.
	ErrServiceConflict = errors.New("service name conflict")
)

// BaseTemplateError reports a base template that cannot be used.
type BaseTemplateError struct {
	Path  string
	Field string
	Msg   string
	Err   error
}

func (e *BaseTemplateError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("base template %s: %s", e.Path, msg)
	}
	return fmt.Sprintf("base template %s: %s: %s", e.Path, e.Field, msg)
}

func (e *BaseTemplateError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBaseTemplate.
func (e *BaseTemplateError) Is(target error) bool { return target == ErrBaseTemplate }

// ServiceConflictError reports two sources producing the same compose
// service name.
type ServiceConflictError struct {
	Name    string
	Sources []string
}

func (e *ServiceConflictError) Error() string {
	return fmt.Sprintf("service %q is defined by %s", e.Name, strings.Join(e.Sources, " and "))
}

// Is reports whether target is ErrServiceConflict.
func (e *ServiceConflictError) Is(target error) bool { return target == ErrServiceConflict }
