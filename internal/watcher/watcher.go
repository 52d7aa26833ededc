// Package watcher watches the registry, base template and project config
// files, coalescing bursts of changes into single notifications.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/kgfleet/internal/log"
)

// Watcher reports changes to a set of files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// Config holds watcher configuration options.
type Config struct {
	Files       []string
	DebounceDur time.Duration
}

// DefaultConfig returns a config for files with a 300ms debounce.
func DefaultConfig(files ...string) Config {
	return Config{
		Files:       files,
		DebounceDur: 300 * time.Millisecond,
	}
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
	}
	for _, f := range cfg.Files {
		w.files[filepath.Clean(f)] = true
	}
	return w, nil
}

// Start watches the directories holding the configured files and returns
// the notification channel.
func (w *Watcher) Start() (<-chan struct{}, error) {
	w.mu.Lock()
	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	w.mu.Unlock()

	if err := w.addDirs(files); err != nil {
		return nil, err
	}

	go w.loop()
	return w.onChange, nil
}

// SetFiles replaces the watched file set, adding directories as needed.
// Directories are never removed, events outside the set are ignored.
func (w *Watcher) SetFiles(files []string) error {
	next := make(map[string]bool, len(files))
	for _, f := range files {
		next[filepath.Clean(f)] = true
	}
	w.mu.Lock()
	w.files = next
	w.mu.Unlock()
	return w.addDirs(files)
}

func (w *Watcher) addDirs(files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range files {
		dir := filepath.Dir(filepath.Clean(f))
		if w.dirs[dir] {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %s: %w", dir, err)
		}
		w.dirs[dir] = true
		log.Debug(log.CatWatcher, "watching directory", "dir", dir)
	}
	return nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var timer *time.Timer
	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			log.Debug(log.CatWatcher, "change detected", "file", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timerC():
			timer = nil
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether event touches a watched file. Atomic
// replacements show up as Create or Rename on the target name.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(event.Name)]
}
