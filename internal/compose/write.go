package compose

import (
	"fmt"

	"github.com/zjrosen/kgfleet/internal/atomicfile"
	"github.com/zjrosen/kgfleet/internal/log"
)

// WriteManifest renders doc and atomically replaces the file at path. On any
// failure the previous manifest is left untouched.
func WriteManifest(path string, doc *Document) error {
	data, err := doc.Render()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	log.Info(log.CatCompose, "wrote manifest", "path", path, "generated", len(doc.Services))
	return nil
}
