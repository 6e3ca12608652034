// Package ide composes the interpreter subsystems into one runnable IDE:
// the workspace vault, a worker factory, the session controller driving it,
// and optionally the browser server.
//
// The IDE initializes from configuration via New, creating all subsystems
// internally. Functional options override any of them for testing.
//
//	app, err := ide.New(ctx, &cfg, ide.WithCallbacks(cb))
//	err = app.Controller().Run(ctx, "print('hi')")
package ide

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tailored-agentic-units/pyide/commands"
	"github.com/tailored-agentic-units/pyide/controller"
	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/engine/python"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/server"
	"github.com/tailored-agentic-units/pyide/session"
	"github.com/tailored-agentic-units/pyide/worker"
	"github.com/tailored-agentic-units/pyide/workspace"
)

// Option configures an IDE before its subsystems start.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	observer  observability.Observer
	callbacks controller.Callbacks
	hub       bool
	engine    engine.Factory
	spawn     worker.Factory
	store     workspace.Store
}

// WithLogger sets the logger behind the "slog" observer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver adds an observer alongside the configured ones.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithCallbacks sets where terminal output goes.
func WithCallbacks(cb controller.Callbacks) Option {
	return func(o *options) { o.callbacks = cb }
}

// WithHub routes terminal output to a websocket hub instead of callbacks,
// enabling Server.
func WithHub() Option {
	return func(o *options) { o.hub = true }
}

// WithEngineFactory overrides the config-created Python engine.
func WithEngineFactory(f engine.Factory) Option {
	return func(o *options) { o.engine = f }
}

// WithWorkerFactory overrides the config-created worker factory.
func WithWorkerFactory(f worker.Factory) Option {
	return func(o *options) { o.spawn = f }
}

// WithStore overrides the config-created vault.
func WithStore(s workspace.Store) Option {
	return func(o *options) { o.store = s }
}

// IDE owns one controller and the workspace it runs files from.
type IDE struct {
	cfg        Config
	observer   observability.Observer
	metrics    *prometheus.Registry
	closer     io.Closer
	workspace  *workspace.Workspace
	controller *controller.Controller
	hub        *server.Hub
}

// New creates the IDE from configuration and boots the first worker.
func New(ctx context.Context, cfg *Config, opts ...Option) (*IDE, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &IDE{
		cfg:     *cfg,
		metrics: prometheus.NewRegistry(),
	}
	app.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	observer, err := app.observers(o)
	if err != nil {
		return nil, err
	}
	app.observer = observer

	store := o.store
	app.closer = nopCloser{}
	if store == nil {
		s, closer, err := workspace.NewStore(&cfg.Workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace store: %w", err)
		}
		store, app.closer = s, closer
	}

	ws, err := workspace.Open(ctx, store, workspace.WithObserver(observer))
	if err != nil {
		app.closer.Close()
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	app.workspace = ws

	spawn := o.spawn
	if spawn == nil {
		engineFactory := o.engine
		if engineFactory == nil {
			engineFactory = python.New(cfg.Python)
		}
		spawn, err = worker.NewFactory(&cfg.Worker, engineFactory, observer,
			session.WithConfig(cfg.Session),
			session.WithObserver(observer),
		)
		if err != nil {
			app.closer.Close()
			return nil, fmt.Errorf("failed to create worker factory: %w", err)
		}
	}

	callbacks := o.callbacks
	if o.hub {
		app.hub = server.NewHub(cfg.Server.Backlog, observer)
		callbacks = app.hub.Callbacks()
	}

	ctrl, err := controller.New(ctx, spawn, callbacks,
		controller.WithObserver(observer),
		controller.WithFileSource(ws),
	)
	if err != nil {
		app.closer.Close()
		return nil, fmt.Errorf("failed to start controller: %w", err)
	}
	app.controller = ctrl

	observability.Emit(ctx, observer, EventStart, observability.LevelInfo, "ide.New", map[string]any{
		"worker_mode": cfg.Worker.Mode,
		"workspace":   cfg.Workspace.Backend,
	})
	return app, nil
}

// observers resolves Config.Observers. "slog" and "prometheus" are bound to
// this IDE's logger and metrics registry; other names come from the global
// observability registry.
func (i *IDE) observers(o options) (observability.Observer, error) {
	var resolved []observability.Observer
	for _, name := range i.cfg.Observers {
		switch name {
		case ObserverSlog:
			resolved = append(resolved, observability.NewSlogObserver(o.logger))
		case ObserverPrometheus:
			prom, err := observability.NewPrometheusObserver(i.metrics)
			if err != nil {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
			resolved = append(resolved, prom)
		default:
			obs, err := observability.GetObserver(name)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, obs)
		}
	}
	if o.observer != nil {
		resolved = append(resolved, o.observer)
	}

	switch len(resolved) {
	case 0:
		return observability.NoOpObserver{}, nil
	case 1:
		return resolved[0], nil
	default:
		return observability.NewMultiObserver(resolved...), nil
	}
}

func (i *IDE) Controller() *controller.Controller {
	return i.controller
}

func (i *IDE) Workspace() *workspace.Workspace {
	return i.workspace
}

func (i *IDE) Observer() observability.Observer {
	return i.observer
}

// Metrics is the registry the prometheus observer reports to.
func (i *IDE) Metrics() prometheus.Gatherer {
	return i.metrics
}

// Env returns the environment meta-commands act on, printing to out.
func (i *IDE) Env(out io.Writer) commands.Env {
	return commands.Env{
		Interpreter: i.controller,
		Workspace:   i.workspace,
		Out:         out,
	}
}

// Server builds the browser server over this IDE. It requires WithHub.
func (i *IDE) Server() (*server.Server, error) {
	if i.hub == nil {
		return nil, ErrNoHub
	}
	return server.New(i.cfg.Server, i.controller, i.workspace, i.hub,
		server.WithObserver(i.observer),
		server.WithGatherer(i.metrics),
	), nil
}

// Close terminates the worker and releases the vault.
func (i *IDE) Close() error {
	i.controller.Close()
	observability.Emit(context.Background(), i.observer, EventClose, observability.LevelInfo, "ide.Close", nil)
	return i.closer.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
