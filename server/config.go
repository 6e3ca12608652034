package server

const defaultAddr = "127.0.0.1:8080"

// Config holds HTTP server settings.
type Config struct {
	Addr           string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	// Backlog is how many recent terminal messages a new websocket client
	// is replayed.
	Backlog int  `json:"backlog,omitempty" yaml:"backlog,omitempty"`
	Debug   bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           defaultAddr,
		AllowedOrigins: []string{"http://localhost:3000"},
		Backlog:        500,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = source.AllowedOrigins
	}
	if source.Backlog > 0 {
		c.Backlog = source.Backlog
	}
	if source.Debug {
		c.Debug = true
	}
}
