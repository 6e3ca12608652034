package python

import (
	"time"

	"github.com/tailored-agentic-units/pyide/config"
)

const (
	defaultPython       = "python3"
	defaultStartTimeout = 15 * time.Second
)

// Config locates the interpreter and its sandbox.
type Config struct {
	// Python is the interpreter executable, resolved through PATH.
	Python string `json:"python,omitempty" yaml:"python,omitempty"`
	// Dir is the sandbox directory. Empty means a private temp directory
	// removed when the runtime closes.
	Dir          string          `json:"dir,omitempty" yaml:"dir,omitempty"`
	StartTimeout config.Duration `json:"start_timeout,omitempty" yaml:"start_timeout,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Python:       defaultPython,
		StartTimeout: config.Duration(defaultStartTimeout),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Python != "" {
		c.Python = source.Python
	}
	if source.Dir != "" {
		c.Dir = source.Dir
	}
	if source.StartTimeout > 0 {
		c.StartTimeout = source.StartTimeout
	}
}
