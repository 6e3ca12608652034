package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/transport"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithServerObserver(obs observability.Observer) ServerOption {
	return func(s *Server) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// Server hosts one worker at a time for Remote clients. Spawn replaces the
// current worker; calls naming any other worker fail with NotFound.
type Server struct {
	spawn    Factory
	observer observability.Observer

	mu      sync.Mutex
	current Worker
}

func NewServer(spawn Factory, opts ...ServerOption) *Server {
	s := &Server{
		spawn:    spawn,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the path prefix and handler serving the worker service.
func (s *Server) Handler() (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(SpawnProcedure, connect.NewUnaryHandler(SpawnProcedure, s.handleSpawn, withCodec()))
	mux.Handle(PostProcedure, connect.NewUnaryHandler(PostProcedure, s.handlePost, withCodec()))
	mux.Handle(EventsProcedure, connect.NewServerStreamHandler(EventsProcedure, s.handleEvents, withCodec()))
	mux.Handle(TerminateProcedure, connect.NewUnaryHandler(TerminateProcedure, s.handleTerminate, withCodec()))
	return "/" + ServiceName + "/", mux
}

// Close terminates the hosted worker.
func (s *Server) Close() {
	s.mu.Lock()
	w := s.current
	s.current = nil
	s.mu.Unlock()

	if w != nil {
		w.Terminate()
	}
}

func (s *Server) handleSpawn(
	ctx context.Context,
	_ *connect.Request[protocol.Envelope],
) (*connect.Response[protocol.Envelope], error) {
	w, err := s.spawn(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	s.mu.Lock()
	old := s.current
	s.current = w
	s.mu.Unlock()

	if old != nil {
		old.Terminate()
	}
	s.observe(ctx, "spawn", w.ID(), nil)
	return connect.NewResponse(&protocol.Envelope{ID: w.ID(), Type: "spawned"}), nil
}

func (s *Server) handlePost(
	ctx context.Context,
	req *connect.Request[protocol.Envelope],
) (*connect.Response[protocol.Envelope], error) {
	w, err := s.lookup(req.Header().Get(HeaderWorker))
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}

	cmd, err := protocol.DecodeCommand(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := w.Post(ctx, cmd); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		return nil, err
	}
	return connect.NewResponse(&protocol.Envelope{ID: req.Msg.ID, Type: "ack"}), nil
}

func (s *Server) handleEvents(
	ctx context.Context,
	req *connect.Request[protocol.Envelope],
	stream *connect.ServerStream[protocol.Envelope],
) error {
	id := req.Header().Get(HeaderWorker)
	w, err := s.lookup(id)
	if err != nil {
		return connect.NewError(connect.CodeNotFound, err)
	}

	for {
		ev, err := w.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				s.observe(ctx, "events.end", id, nil)
				return nil
			}
			return err
		}
		if err := stream.Send(protocol.EncodeEvent(ev)); err != nil {
			return err
		}
	}
}

func (s *Server) handleTerminate(
	ctx context.Context,
	req *connect.Request[protocol.Envelope],
) (*connect.Response[protocol.Envelope], error) {
	id := req.Header().Get(HeaderWorker)

	s.mu.Lock()
	w := s.current
	if w == nil || w.ID() != id {
		s.mu.Unlock()
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", ErrNoWorker, id))
	}
	s.current = nil
	s.mu.Unlock()

	w.Terminate()
	s.observe(ctx, "terminate", id, nil)
	return connect.NewResponse(&protocol.Envelope{ID: id, Type: "terminated"}), nil
}

func (s *Server) lookup(id string) (Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || id == "" || s.current.ID() != id {
		return nil, fmt.Errorf("%w: %s", ErrNoWorker, id)
	}
	return s.current, nil
}

func (s *Server) observe(ctx context.Context, call, id string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["call"] = call
	data["worker_id"] = id
	observability.Emit(ctx, s.observer, EventRPC, observability.LevelVerbose, "worker.Server", data)
}
