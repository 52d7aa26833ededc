package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMixedParent matches any *MixedParentError.
	ErrMixedParent = errors.New("entities_dir entries do not share one parent")
	// ErrMissingSubdir matches any *MissingSubdirError.
	ErrMissingSubdir = errors.New("selected entity subdirectory missing")
)

// MixedParentError reports a list-form entities_dir whose entries live under
// different immediate parents.
type MixedParentError struct {
	Project string
	Service string
	Entries []string
	Parents []string
}

func (e *MixedParentError) Error() string {
	pairs := make([]string, len(e.Entries))
	for i := range e.Entries {
		pairs[i] = fmt.Sprintf("%s (parent %s)", e.Entries[i], e.Parents[i])
	}
	return fmt.Sprintf("project %q, service %q, field \"entities_dir\": entries must share one immediate parent: %s",
		e.Project, e.Service, strings.Join(pairs, ", "))
}

// Is reports whether target is ErrMixedParent.
func (e *MixedParentError) Is(target error) bool { return target == ErrMixedParent }

// MissingSubdirError reports a selected name that is not a directory under
// the resolved mount path.
type MissingSubdirError struct {
	Project string
	Service string
	Mount   string
	Name    string
}

func (e *MissingSubdirError) Error() string {
	return fmt.Sprintf("project %q, service %q, field \"entities_dir\": %s is not a directory under %s",
		e.Project, e.Service, e.Name, e.Mount)
}

// Is reports whether target is ErrMissingSubdir.
func (e *MissingSubdirError) Is(target error) bool { return target == ErrMissingSubdir }
