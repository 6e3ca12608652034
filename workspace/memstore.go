package workspace

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/pyide/protocol"
)

// MemoryStore is a Store that forgets everything when the process exits.
// List is in first-save order.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string]string
	order []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]string)}
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order), nil
}

func (s *MemoryStore) Load(_ context.Context, names ...string) ([]protocol.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]protocol.File, 0, len(names))
	for _, name := range names {
		content, ok := s.files[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		files = append(files, protocol.File{Name: name, Content: content})
	}
	return files, nil
}

func (s *MemoryStore) Save(_ context.Context, files ...protocol.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range files {
		if !ValidName(f.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, f.Name)
		}
		if _, ok := s.files[f.Name]; !ok {
			s.order = append(s.order, f.Name)
		}
		s.files[f.Name] = f.Content
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		if _, ok := s.files[name]; !ok {
			continue
		}
		delete(s.files, name)
		s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	}
	return nil
}
