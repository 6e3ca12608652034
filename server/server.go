// Package server exposes the IDE to a browser: a websocket terminal bridged
// to the session controller, a REST API over the workspace, and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailored-agentic-units/pyide/commands"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/workspace"
)

const shutdownTimeout = 5 * time.Second

// Option configures a Server.
type Option func(*Server)

func WithObserver(obs observability.Observer) Option {
	return func(s *Server) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithGatherer sets where /metrics reads from.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// busyReporter is implemented by controllers that track lock state.
type busyReporter interface {
	Busy() bool
}

// Server serves the browser surface.
type Server struct {
	cfg       Config
	interp    commands.Interpreter
	workspace *workspace.Workspace
	hub       *Hub
	observer  observability.Observer
	gatherer  prometheus.Gatherer
	router    *gin.Engine
}

// New builds the router. Terminal output reaches clients through hub, which
// the caller wires to the controller's callbacks.
func New(cfg Config, interp commands.Interpreter, ws *workspace.Workspace, hub *Hub, opts ...Option) *Server {
	s := &Server{
		cfg:       DefaultConfig(),
		interp:    interp,
		workspace: ws,
		hub:       hub,
		observer:  observability.NoOpObserver{},
		gatherer:  prometheus.DefaultGatherer,
	}
	s.cfg.Merge(&cfg)
	for _, opt := range opts {
		opt(s)
	}

	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:  s.cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
	}))
	s.router.Use(s.logging())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/files", s.listFiles)
		api.GET("/files/:name", s.getFile)
		api.PUT("/files/:name", s.putFile)
		api.DELETE("/files/:name", s.deleteFile)
		api.POST("/files/:name/save", s.saveFile)
		api.POST("/files/:name/export", s.exportFile)
		api.POST("/files/:name/rename", s.renameFile)
		api.POST("/files/:name/select", s.selectFile)
		api.POST("/drafts", s.draftFile)
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx ends, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.observe(ctx, EventStart, observability.LevelInfo, map[string]any{"addr": s.cfg.Addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.observe(shutdownCtx, EventStop, observability.LevelInfo, nil)
	return srv.Shutdown(shutdownCtx)
}

// dispatch applies one client message to the interpreter.
func (s *Server) dispatch(ctx context.Context, msg Message) error {
	switch msg.Type {
	case "run":
		code := msg.Code
		if msg.File != "" {
			content, ok := s.workspace.File(msg.File)
			if !ok {
				return fmt.Errorf("%w: %s", workspace.ErrNotFound, msg.File)
			}
			s.workspace.Select(msg.File)
			code = content
		}
		return s.interp.Run(ctx, code)
	case "execute":
		return s.interp.Execute(ctx, msg.Code)
	case "stop":
		return s.interp.Stop(ctx)
	case "restart":
		return s.interp.Restart(ctx)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{"status": "ok", "clients": s.hub.Clients()}
	if b, ok := s.interp.(busyReporter); ok {
		body["busy"] = b.Busy()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.observe(c.Request.Context(), EventRequest, observability.LevelVerbose, map[string]any{
			"method":   c.Request.Method,
			"route":    c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		})
	}
}

func (s *Server) observe(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, s.observer, typ, level, "server.Server", data)
}
