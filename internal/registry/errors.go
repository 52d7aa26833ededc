package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryCorrupt matches any *CorruptError.
	ErrRegistryCorrupt = errors.New("registry corrupt")
	// ErrInvalidPath matches any *InvalidPathError.
	ErrInvalidPath = errors.New("invalid path")
)

// CorruptError reports a registry file that exists but does not match the
// expected schema.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("registry %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRegistryCorrupt.
func (e *CorruptError) Is(target error) bool { return target == ErrRegistryCorrupt }

// InvalidPathError reports a registry entry whose path field is not absolute.
type InvalidPathError struct {
	Project string
	Field   string
	Path    string
}

func (e *InvalidPathError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("project %q: %s is required and must be an absolute path", e.Project, e.Field)
	}
	return fmt.Sprintf("project %q: %s %q is not an absolute path", e.Project, e.Field, e.Path)
}

// Is reports whether target is ErrInvalidPath.
func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }
