package session

import "github.com/tailored-agentic-units/pyide/engine"

// Config holds session initialization parameters.
type Config struct {
	Engine engine.Config `json:"engine" yaml:"engine"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Engine: engine.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Engine.Merge(&source.Engine)
}
