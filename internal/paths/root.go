// Package paths provides path resolution utilities.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// RootEnv overrides repository root discovery.
const RootEnv = "MCP_GRAPHITI_REPO_PATH"

// ErrRootNotFound is returned when no repository root can be located.
var ErrRootNotFound = errors.New("repository root not found")

// ResolveRoot finds the repository root holding the registry and base
// template. Resolution order:
//   - $MCP_GRAPHITI_REPO_PATH, if set
//   - configured, if non-empty
//   - the nearest directory at or above start containing marker
//
// The result is absolute and must be an existing directory.
func ResolveRoot(getenv func(string) string, configured, start, marker string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if env := getenv(RootEnv); env != "" {
		return existingDir(env, RootEnv)
	}
	if configured != "" {
		return existingDir(configured, "repo_root")
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s at or above %s (set %s or repo_root)", ErrRootNotFound, marker, start, RootEnv)
		}
		dir = parent
	}
}

func existingDir(p, source string) (string, error) {
	abs, err := filepath.Abs(ExpandHome(p))
	if err != nil {
		return "", fmt.Errorf("%s: %w", source, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s=%s: %v", ErrRootNotFound, source, p, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s=%s is not a directory", ErrRootNotFound, source, p)
	}
	return abs, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" || (len(p) > 1 && p[0] == '~' && os.IsPathSeparator(p[1])) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

// Absolute returns p as a clean absolute path, expanding "~".
func Absolute(p string) (string, error) {
	return filepath.Abs(ExpandHome(p))
}
