package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailored-agentic-units/pyide/protocol"
)

type fileStore struct {
	root string
}

// NewFileStore creates a Store keeping one file per saved file directly
// under root. Writes are atomic and List is in name order.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !ValidName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *fileStore) Load(_ context.Context, names ...string) ([]protocol.File, error) {
	files := make([]protocol.File, 0, len(names))

	for _, name := range names {
		if !ValidName(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		data, err := os.ReadFile(filepath.Join(s.root, name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, name, err)
		}
		files = append(files, protocol.File{Name: name, Content: string(data)})
	}

	return files, nil
}

func (s *fileStore) Save(_ context.Context, files ...protocol.File) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	for _, f := range files {
		if !ValidName(f.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, f.Name)
		}
		path := filepath.Join(s.root, f.Name)

		tmp, err := os.CreateTemp(s.root, ".tmp-*")
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, f.Name, err)
		}
		tmpName := tmp.Name()

		if _, err := tmp.WriteString(f.Content); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, f.Name, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, f.Name, err)
		}

		if err := os.Rename(tmpName, path); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, f.Name, err)
		}
	}

	return nil
}

func (s *fileStore) Delete(_ context.Context, names ...string) error {
	for _, name := range names {
		if !ValidName(name) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("workspace: delete %s: %w", name, err)
		}
	}
	return nil
}
