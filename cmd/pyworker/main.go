// Command pyworker hosts interpreter sessions for remote IDE controllers.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailored-agentic-units/pyide/engine/python"
	"github.com/tailored-agentic-units/pyide/ide"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/session"
	"github.com/tailored-agentic-units/pyide/worker"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to config file, JSON or YAML")
		listen     = flag.String("listen", "", "Listen address (overrides config)")
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
	if *listen != "" {
		cfg.Worker.Listen = *listen
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reg := prometheus.NewRegistry()
	prom, err := observability.NewPrometheusObserver(reg)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}
	observer := observability.NewMultiObserver(observability.NewSlogObserver(logger), prom)

	spawn := worker.LocalFactory(python.New(cfg.Python),
		worker.WithBufferSize(cfg.Worker.BufferSize),
		worker.WithLocalObserver(observer),
		worker.WithSessionOptions(
			session.WithConfig(cfg.Session),
			session.WithObserver(observer),
		),
	)
	srv := worker.NewServer(spawn, worker.WithServerObserver(observer))
	defer srv.Close()

	mux := http.NewServeMux()
	mux.Handle(srv.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              cfg.Worker.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdown)
	}()

	logger.Info("pyworker listening", "addr", cfg.Worker.Listen)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Worker server failed: %v", err)
	}
}
