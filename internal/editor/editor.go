// Package editor keeps a project's editor MCP descriptor in step with the
// ports assigned to its services.
package editor

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/zjrosen/kgfleet/internal/atomicfile"
	"github.com/zjrosen/kgfleet/internal/log"
)

// Defaults for the descriptor location and entry shape.
const (
	DefaultDir       = ".cursor"
	DefaultFile      = "mcp.json"
	DefaultTransport = "sse"
	DefaultKeyPrefix = "graphiti-"
	DefaultHost      = "localhost"

	serversKey = "mcpServers"
)

// Endpoint is one service to publish in the descriptor.
type Endpoint struct {
	ServiceID string
	Port      int
}

// Options configures Sync.
type Options struct {
	Dir       string
	File      string
	Transport string
	KeyPrefix string
	Host      string
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = DefaultDir
	}
	if o.File == "" {
		o.File = DefaultFile
	}
	if o.Transport == "" {
		o.Transport = DefaultTransport
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	return o
}

// Path returns the descriptor path for a project root.
func Path(rootDir string, opts Options) string {
	opts = opts.withDefaults()
	return filepath.Join(rootDir, opts.Dir, opts.File)
}

// Key returns the descriptor key for a service id.
func Key(serviceID string, opts Options) string {
	return opts.withDefaults().KeyPrefix + serviceID
}

// URL returns the endpoint URL for a port and transport.
func URL(host string, port int, transport string) string {
	return fmt.Sprintf("http://%s:%d/%s", host, port, transport)
}

// Sync writes endpoints into the descriptor under rootDir, replacing
// entries with the same key and keeping every other key in the file. It
// returns non-fatal findings such as an unreadable existing descriptor.
// A missing project root is an error; Sync never creates it.
func Sync(rootDir string, endpoints []Endpoint, opts Options) ([]string, error) {
	if len(endpoints) == 0 {
		return nil, nil
	}
	opts = opts.withDefaults()

	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("project root %s: %w", rootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", rootDir)
	}

	var warnings []string
	transport := opts.Transport
	if transport != DefaultTransport {
		warnings = append(warnings, fmt.Sprintf("unsupported transport %q, using %q", transport, DefaultTransport))
		transport = DefaultTransport
	}

	path := Path(rootDir, opts)
	doc, warning := readDescriptor(path)
	if warning != "" {
		warnings = append(warnings, warning)
	}

	servers, ok := doc[serversKey].(map[string]any)
	if !ok {
		if doc[serversKey] != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %s is not an object, replacing it", path, serversKey))
		}
		servers = make(map[string]any)
		doc[serversKey] = servers
	}

	sorted := slices.Clone(endpoints)
	slices.SortFunc(sorted, func(a, b Endpoint) int { return cmp.Compare(a.ServiceID, b.ServiceID) })
	for _, ep := range sorted {
		servers[opts.KeyPrefix+ep.ServiceID] = map[string]any{
			"transport": transport,
			"url":       URL(opts.Host, ep.Port, transport),
		}
	}

	data := oj.JSON(doc, &ojg.Options{Indent: 2, Sort: true})
	if err := atomicfile.WriteFile(path, []byte(data+"\n"), 0o644); err != nil {
		return warnings, fmt.Errorf("write %s: %w", path, err)
	}

	for _, w := range warnings {
		log.Warn(log.CatEditor, w, "path", path)
	}
	log.Info(log.CatEditor, "synced editor descriptor", "path", path, "endpoints", len(sorted))
	return warnings, nil
}

// readDescriptor returns the existing descriptor object, or an empty one
// plus a warning when the file is unreadable or not a JSON object.
func readDescriptor(path string) (map[string]any, string) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is under a registered project root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, ""
		}
		return map[string]any{}, fmt.Sprintf("%s: unreadable, creating a new descriptor: %v", path, err)
	}

	parsed, err := oj.Parse(raw)
	if err != nil {
		return map[string]any{}, fmt.Sprintf("%s: invalid JSON, creating a new descriptor: %v", path, err)
	}
	doc, ok := parsed.(map[string]any)
	if !ok {
		return map[string]any{}, fmt.Sprintf("%s: not a JSON object, creating a new descriptor", path)
	}
	return doc, ""
}
