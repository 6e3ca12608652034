package engine

import (
	"time"

	"github.com/tailored-agentic-units/pyide/config"
)

const defaultPollInterval = 10 * time.Millisecond

// Config holds adapter tuning.
type Config struct {
	PollInterval  config.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	ReprLimit     int             `json:"repr_limit,omitempty" yaml:"repr_limit,omitempty"`
	ReprSeparator string          `json:"repr_separator,omitempty" yaml:"repr_separator,omitempty"`
	AutoInstall   bool            `json:"auto_install,omitempty" yaml:"auto_install,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  config.Duration(defaultPollInterval),
		ReprLimit:     DefaultReprLimit,
		ReprSeparator: DefaultReprSeparator,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.PollInterval > 0 {
		c.PollInterval = source.PollInterval
	}
	if source.ReprLimit != 0 {
		c.ReprLimit = source.ReprLimit
	}
	if source.ReprSeparator != "" {
		c.ReprSeparator = source.ReprSeparator
	}
	if source.AutoInstall {
		c.AutoInstall = true
	}
}
