package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kgfleet/internal/atomicfile"
	"github.com/zjrosen/kgfleet/internal/log"
)

// FormatVersion is the registry schema version written by Save.
const FormatVersion = 1

var headerLines = []string{
	"# !! WARNING: This file is managed by 'kgfleet registry'. !!",
	"# !! Avoid manual edits unless absolutely necessary.       !!",
	"#",
	"# Maps project names to their configuration details.",
	"# root_dir and config_file must be absolute paths.",
}

// registryFile is the on-disk shape of the registry.
type registryFile struct {
	Version  int                  `yaml:"version"`
	Projects map[string]entryFile `yaml:"projects"`
}

type entryFile struct {
	RootDir    string         `yaml:"root_dir"`
	ConfigFile string         `yaml:"config_file"`
	Enabled    bool           `yaml:"enabled"`
	Ports      map[string]int `yaml:"ports,omitempty"`
}

// Store loads and saves the registry file at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. A missing file yields an empty registry; a file
// that does not parse as the registry schema yields a *CorruptError.
func (s *Store) Load() (*Registry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug(log.CatRegistry, "registry file absent, using empty registry", "path", s.path)
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", s.path, err)
	}

	var file registryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	if file.Version > FormatVersion {
		return nil, &CorruptError{Path: s.path, Err: fmt.Errorf("unsupported version %d", file.Version)}
	}

	reg := New()
	for name, ef := range file.Projects {
		if strings.TrimSpace(name) == "" {
			return nil, &CorruptError{Path: s.path, Err: errors.New("empty project name")}
		}
		entry := Entry{
			Name:       name,
			RootDir:    ef.RootDir,
			ConfigPath: ef.ConfigFile,
			Enabled:    ef.Enabled,
			Ports:      ef.Ports,
		}
		if err := reg.Put(entry); err != nil {
			return nil, err
		}
	}

	log.Debug(log.CatRegistry, "loaded registry", "path", s.path, "projects", reg.Len())
	return reg, nil
}

// Save writes the full registry atomically. Entries are validated first so
// an invalid registry never reaches disk.
func (s *Store) Save(reg *Registry) error {
	file := registryFile{
		Version:  FormatVersion,
		Projects: make(map[string]entryFile, reg.Len()),
	}
	for _, e := range reg.Entries() {
		if err := e.Validate(); err != nil {
			return err
		}
		file.Projects[e.Name] = entryFile{
			RootDir:    e.RootDir,
			ConfigFile: e.ConfigPath,
			Enabled:    e.Enabled,
			Ports:      e.Ports,
		}
	}

	var buf bytes.Buffer
	for _, line := range headerLines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&file); err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}

	if err := atomicfile.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		log.ErrorErr(log.CatRegistry, "failed to save registry", err, "path", s.path)
		return fmt.Errorf("saving registry %s: %w", s.path, err)
	}
	log.Info(log.CatRegistry, "saved registry", "path", s.path, "projects", reg.Len())
	return nil
}
