package enginetest

import (
	"io/fs"
	"maps"
	"slices"
	"sync"
	"testing/fstest"

	"github.com/tailored-agentic-units/pyide/engine"
)

// MapFS is an in-memory engine.SandboxFS.
type MapFS struct {
	mu    sync.Mutex
	files fstest.MapFS
}

func NewMapFS() *MapFS {
	return &MapFS{files: fstest.MapFS{}}
}

var _ engine.SandboxFS = (*MapFS)(nil)

func (m *MapFS) WriteFile(name string, data []byte) error {
	if !fs.ValidPath(name) || name == "." {
		return engine.ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = &fstest.MapFile{Data: slices.Clone(data), Mode: 0o644}
	return nil
}

func (m *MapFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fs.ReadDir(maps.Clone(m.files), name)
}

func (m *MapFS) Unlink(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return fs.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

// Names lists files, sorted.
func (m *MapFS) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.files))
}

// Content returns a file's text and whether it exists.
func (m *MapFS) Content(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok {
		return "", false
	}
	return string(f.Data), true
}
