package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tailored-agentic-units/pyide/commands"
	"github.com/tailored-agentic-units/pyide/ide"
	"github.com/tailored-agentic-units/pyide/workspace"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config file, JSON or YAML")
		runFile    = flag.String("run", "", "Run a Python file as a script and exit")
		serve      = flag.Bool("serve", false, "Serve the browser IDE instead of a terminal")
		addr       = flag.String("addr", "", "Server listen address (overrides config)")
		vault      = flag.String("workspace", "", "Path to the workspace vault (overrides config)")
		python     = flag.String("python", "", "Python executable (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := ide.DefaultConfig()
	if *configFile != "" {
		loaded, err := ide.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	} else {
		cfg.ApplyEnv()
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *vault != "" {
		cfg.Workspace.Path = *vault
		if cfg.Workspace.Backend == "" || cfg.Workspace.Backend == workspace.BackendMemory {
			cfg.Workspace.Backend = workspace.BackendFile
		}
	}
	if *python != "" {
		cfg.Python.Python = *python
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	must(commands.RegisterBuiltins())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	opts := []ide.Option{ide.WithLogger(logger)}
	if *serve {
		opts = append(opts, ide.WithHub())
	} else {
		opts = append(opts, ide.WithCallbacks(stdio(os.Stdout, os.Stderr)))
	}

	app, err := ide.New(ctx, &cfg, opts...)
	if err != nil {
		log.Fatalf("Failed to start IDE: %v", err)
	}
	defer app.Close()

	switch {
	case *serve:
		err = runServer(ctx, app)
	case *runFile != "":
		err = runScript(ctx, app, *runFile)
	default:
		err = interact(ctx, app, os.Stdin)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		app.Close()
		os.Exit(1)
	}
}

func runServer(ctx context.Context, app *ide.IDE) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	srv, err := app.Server()
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runScript(ctx context.Context, app *ide.IDE, path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctrl := app.Controller()
	if err := ctrl.Wait(ctx); err != nil {
		return err
	}
	if err := ctrl.Run(ctx, string(code)); err != nil {
		return err
	}
	if err := ctrl.Wait(ctx); err != nil {
		return err
	}
	fmt.Println()
	return nil
}
