package python

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tailored-agentic-units/pyide/engine"
)

// dirFS exposes the flat sandbox directory. Names are single path elements.
type dirFS struct {
	root string
}

var _ engine.SandboxFS = dirFS{}

func (d dirFS) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", engine.ErrInvalidName
	}
	return filepath.Join(d.root, name), nil
}

func (d dirFS) WriteFile(name string, data []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (d dirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == "." || name == "" {
		return os.ReadDir(d.root)
	}
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(p)
}

func (d dirFS) Unlink(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}
