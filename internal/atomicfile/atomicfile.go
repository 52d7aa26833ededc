// Package atomicfile writes files by staging them in a temporary file in the
// destination directory and renaming into place, so readers only ever see
// the previous contents or the complete new contents.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	hookMu       sync.Mutex
	beforeRename func(tempPath string) error
)

// SetBeforeRename installs a hook that runs after the temp file has been
// written and closed but before it is renamed over the destination. A hook
// error aborts the write as if the process died at that point. It returns a
// function restoring the previous hook.
func SetBeforeRename(fn func(tempPath string) error) (restore func()) {
	hookMu.Lock()
	prev := beforeRename
	beforeRename = fn
	hookMu.Unlock()
	return func() {
		hookMu.Lock()
		beforeRename = prev
		hookMu.Unlock()
	}
}

// WriteFile writes data to path atomically (write to temp, then rename).
// The temp file is always removed on failure. Parent directories are created.
func WriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	temp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err = temp.Write(data); err != nil {
		_ = temp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = temp.Sync(); err != nil {
		_ = temp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = temp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tempPath, perm); err != nil {
		return fmt.Errorf("setting permissions on temp file: %w", err)
	}

	hookMu.Lock()
	hook := beforeRename
	hookMu.Unlock()
	if hook != nil {
		if err = hook(tempPath); err != nil {
			return fmt.Errorf("before rename: %w", err)
		}
	}

	if err = os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
