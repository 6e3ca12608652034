// Package workspace holds the files a user edits. Editor buffers sit over a
// persisted vault Store; files marked exported are mirrored into the
// interpreter sandbox before every run.
package workspace

import (
	"context"

	"github.com/tailored-agentic-units/pyide/protocol"
)

// Store persists saved files. Implementations perform I/O on each call
// without caching.
type Store interface {
	// List returns saved file names. Order is backend-specific but stable.
	List(ctx context.Context) ([]string, error)
	// Load retrieves the named files.
	Load(ctx context.Context, names ...string) ([]protocol.File, error)
	// Save persists files, creating or overwriting as needed.
	Save(ctx context.Context, files ...protocol.File) error
	// Delete removes files. Missing names are ignored.
	Delete(ctx context.Context, names ...string) error
}
