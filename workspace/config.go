package workspace

import (
	"fmt"
	"io"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config selects the vault backend.
type Config struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Path is the FileStore directory or the SQLite database file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultConfig keeps the vault in memory.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore creates the configured Store. The returned closer releases it and
// is never nil.
func NewStore(cfg *Config) (Store, io.Closer, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case BackendFile:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("workspace: file backend needs a path")
		}
		return NewFileStore(cfg.Path), nopCloser{}, nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("workspace: sqlite backend needs a path")
		}
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("workspace: unknown backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
