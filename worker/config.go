package worker

import (
	"fmt"

	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/session"
	"github.com/tailored-agentic-units/pyide/transport"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"

	defaultListen = "127.0.0.1:7071"
)

// Config selects where sessions run.
type Config struct {
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// URL is the base URL of a remote worker server.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Listen is the address a worker server binds.
	Listen     string `json:"listen,omitempty" yaml:"listen,omitempty"`
	BufferSize int    `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Mode:       ModeLocal,
		Listen:     defaultListen,
		BufferSize: transport.DefaultBufferSize,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Mode != "" {
		c.Mode = source.Mode
	}
	if source.URL != "" {
		c.URL = source.URL
	}
	if source.Listen != "" {
		c.Listen = source.Listen
	}
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
}

// NewFactory builds the factory cfg describes. engineFactory and opts are
// used only for local workers. A nil obs discards worker events.
func NewFactory(cfg *Config, engineFactory engine.Factory, obs observability.Observer, opts ...session.Option) (Factory, error) {
	switch cfg.Mode {
	case "", ModeLocal:
		return LocalFactory(engineFactory,
			WithBufferSize(cfg.BufferSize),
			WithSessionOptions(opts...),
			WithLocalObserver(obs),
		), nil
	case ModeRemote:
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: remote mode needs a url", ErrInvalidConfig)
		}
		return RemoteFactory(cfg.URL,
			WithRemoteBufferSize(cfg.BufferSize),
			WithRemoteObserver(obs),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
}
