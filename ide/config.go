package ide

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/pyide/engine/python"
	"github.com/tailored-agentic-units/pyide/server"
	"github.com/tailored-agentic-units/pyide/session"
	"github.com/tailored-agentic-units/pyide/worker"
	"github.com/tailored-agentic-units/pyide/workspace"
)

// Environment variables that override the loaded configuration.
const (
	EnvPython           = "PYIDE_PYTHON"
	EnvWorkerMode       = "PYIDE_WORKER_MODE"
	EnvWorkerURL        = "PYIDE_WORKER_URL"
	EnvWorkspaceBackend = "PYIDE_WORKSPACE_BACKEND"
	EnvWorkspacePath    = "PYIDE_WORKSPACE_PATH"
	EnvAddr             = "PYIDE_ADDR"
)

// Config holds initialization parameters for all IDE subsystems. Each
// section delegates to that subsystem's config-driven constructor.
type Config struct {
	Session   session.Config   `json:"session" yaml:"session"`
	Python    python.Config    `json:"python" yaml:"python"`
	Worker    worker.Config    `json:"worker" yaml:"worker"`
	Workspace workspace.Config `json:"workspace" yaml:"workspace"`
	Server    server.Config    `json:"server" yaml:"server"`
	// Observers names the observability observers events go to. The
	// "prometheus" observer feeds the metrics endpoint.
	Observers []string `json:"observers,omitempty" yaml:"observers,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Session:   session.DefaultConfig(),
		Python:    python.DefaultConfig(),
		Worker:    worker.DefaultConfig(),
		Workspace: workspace.DefaultConfig(),
		Server:    server.DefaultConfig(),
		Observers: []string{ObserverSlog, ObserverPrometheus},
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Python.Merge(&source.Python)
	c.Worker.Merge(&source.Worker)
	c.Workspace.Merge(&source.Workspace)
	c.Server.Merge(&source.Server)

	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
}

// LoadConfig reads a JSON or YAML config file, chosen by extension, merges
// it with defaults, and applies environment overrides.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	cfg.ApplyEnv()
	return &cfg, nil
}

// ApplyEnv overrides fields from PYIDE_* environment variables.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvPython, &c.Python.Python},
		{EnvWorkerMode, &c.Worker.Mode},
		{EnvWorkerURL, &c.Worker.URL},
		{EnvWorkspaceBackend, &c.Workspace.Backend},
		{EnvWorkspacePath, &c.Workspace.Path},
		{EnvAddr, &c.Server.Addr},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}
