// Package session is the worker side of the interpreter protocol. A Session
// owns one engine adapter and processes commands strictly one at a time,
// reporting everything as events.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/transport"
)

// Option configures a Session.
type Option func(*Session)

func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg.Merge(&cfg)
	}
}

func WithObserver(obs observability.Observer) Option {
	return func(s *Session) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithEngineOptions passes extra options to the engine adapter.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Session) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// Session is one interpreter lifecycle on the worker side.
type Session struct {
	id         string
	sink       transport.EventSink
	adapter    *engine.Adapter
	cfg        Config
	observer   observability.Observer
	engineOpts []engine.Option

	mu         sync.Mutex
	state      State
	continuing bool
}

// New creates a session that emits events on sink and builds its engine
// from factory. The engine starts on the first initialize command.
func New(sink transport.EventSink, factory engine.Factory, opts ...Option) *Session {
	s := &Session{
		id:       uuid.Must(uuid.NewV7()).String(),
		sink:     sink,
		cfg:      DefaultConfig(),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	engineOpts := append([]engine.Option{
		engine.WithConfig(s.cfg.Engine),
		engine.WithObserver(s.observer),
	}, s.engineOpts...)
	s.adapter = engine.NewAdapter(factory, sink, engineOpts...)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Continuing reports whether the REPL holds an unfinished statement.
func (s *Session) Continuing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuing
}

// Destroy releases the engine. An in-flight command fails silently.
func (s *Session) Destroy() {
	s.adapter.Destroy()
}

// Serve handles commands from src until it is closed or ctx ends. A panic
// while handling a command ends Serve with ErrPanic.
func (s *Session) Serve(ctx context.Context, src transport.CommandSource) (err error) {
	s.observe(ctx, EventServeStart, observability.LevelInfo, nil)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			s.observe(ctx, EventPanic, observability.LevelError, map[string]any{"panic": fmt.Sprint(r)})
		}
		s.observe(ctx, EventServeStop, observability.LevelInfo, map[string]any{"error": err})
	}()

	for {
		cmd, err := src.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.Handle(ctx, cmd); err != nil {
			s.observe(ctx, EventCommandFailed, observability.LevelWarning, map[string]any{
				"command": fmt.Sprintf("%T", cmd),
				"error":   err,
			})
		}
	}
}

// Handle processes one command to completion. Failures of user code are
// reported as events and do not surface here.
func (s *Session) Handle(ctx context.Context, cmd protocol.Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil", ErrUnknownCommand)
	}
	s.observe(ctx, EventCommand, observability.LevelVerbose, map[string]any{"command": string(cmd.CommandType())})

	var err error
	switch c := cmd.(type) {
	case protocol.CmdInitialize:
		err = s.initialize(ctx, c)
	case protocol.CmdRun:
		err = s.run(ctx, c)
	case protocol.CmdReplInput:
		err = s.replInput(ctx, c)
	case protocol.CmdReplClear:
		err = s.replClear(ctx)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	var exec *engine.ExecError
	if errors.As(err, &exec) {
		return nil
	}
	return err
}

func (s *Session) initialize(ctx context.Context, c protocol.CmdInitialize) error {
	if c.Interrupt != nil {
		s.adapter.SetInterrupt(c.Interrupt)
	}
	if s.adapter.Ready() {
		return nil
	}
	err := s.boot(ctx)
	s.emit(ctx, protocol.EvUnlock{})
	return err
}

// boot starts the engine and presents the first prompt. The caller emits
// the closing unlock.
func (s *Session) boot(ctx context.Context) error {
	s.transition(ctx, Initializing)
	banner, err := s.adapter.Initialize(ctx)
	if err != nil {
		s.transition(ctx, Uninitialized)
		s.emit(ctx, protocol.EvError{Text: err.Error()})
		return err
	}

	s.emit(ctx, protocol.EvWriteln{Text: banner})
	s.emit(ctx, protocol.EvWrite{Text: engine.PS1})
	s.transition(ctx, Idle)
	return nil
}

func (s *Session) run(ctx context.Context, c protocol.CmdRun) error {
	s.emit(ctx, protocol.EvLock{})
	if !s.adapter.Ready() {
		if err := s.boot(ctx); err != nil {
			s.emit(ctx, protocol.EvUnlock{})
			return err
		}
	}

	s.transition(ctx, Running)
	s.setContinuing(false)
	defer func() {
		s.prompt(ctx)
		s.emit(ctx, protocol.EvUnlock{})
	}()

	if err := s.adapter.SyncExports(ctx, c.Exports); err != nil {
		s.settle(ctx, err)
		return err
	}
	err := s.adapter.RunScript(ctx, c.Code)
	s.settle(ctx, err)
	return err
}

func (s *Session) replInput(ctx context.Context, c protocol.CmdReplInput) error {
	if !s.adapter.Ready() {
		s.emit(ctx, protocol.EvLock{})
		err := s.boot(ctx)
		s.emit(ctx, protocol.EvUnlock{})
		if err != nil {
			return err
		}
	}

	var errs []error
	for _, line := range splitLines(c.Code) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.pushLine(ctx, line, c.Exports); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) pushLine(ctx context.Context, line string, exports []protocol.File) error {
	s.emit(ctx, protocol.EvWriteln{Text: line})

	status, err := s.adapter.PushReplLine(ctx, line)
	if err != nil {
		s.setContinuing(false)
		s.settle(ctx, err)
		s.prompt(ctx)
		return err
	}

	switch status {
	case engine.StatusIncomplete:
		s.setContinuing(true)
		s.emit(ctx, protocol.EvWrite{Text: engine.PS2})
		return nil
	case engine.StatusComplete:
		s.setContinuing(false)
		return s.evaluate(ctx, exports)
	default:
		s.setContinuing(false)
		s.prompt(ctx)
		return nil
	}
}

// evaluate runs the statement the console just completed, bracketed by
// lock and unlock.
func (s *Session) evaluate(ctx context.Context, exports []protocol.File) error {
	s.emit(ctx, protocol.EvLock{})
	s.transition(ctx, AwaitingRepl)
	defer func() {
		s.prompt(ctx)
		s.emit(ctx, protocol.EvUnlock{})
	}()

	if err := s.adapter.SyncExports(ctx, exports); err != nil {
		s.settle(ctx, err)
		return err
	}
	err := s.adapter.AwaitResult(ctx)
	s.settle(ctx, err)
	return err
}

func (s *Session) replClear(ctx context.Context) error {
	err := s.adapter.Interrupt(ctx)
	s.setContinuing(false)
	s.settle(ctx, err)
	s.prompt(ctx)
	return err
}

// settle returns the machine to Idle after an engine call. A rebuilt engine
// passes through Initializing first.
func (s *Session) settle(ctx context.Context, err error) {
	if errors.Is(err, engine.ErrCrashed) {
		s.transition(ctx, Initializing)
	}
	s.transition(ctx, Idle)
}

func (s *Session) prompt(ctx context.Context) {
	s.emit(ctx, protocol.EvWrite{Text: "\n" + engine.PS1})
}

func (s *Session) setContinuing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuing = v
}

func (s *Session) transition(ctx context.Context, to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	data := map[string]any{"from": from.String(), "to": to.String()}
	if !CanTransition(from, to) {
		s.observe(ctx, EventInvalidTransition, observability.LevelWarning, data)
		return
	}
	s.observe(ctx, EventTransition, observability.LevelVerbose, data)
}

func (s *Session) emit(ctx context.Context, ev protocol.Event) {
	s.sink.Send(ctx, ev)
}

func (s *Session) observe(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["session_id"] = s.id
	observability.Emit(ctx, s.observer, typ, level, "session.Session", data)
}

// splitLines breaks pasted input into console lines. A single trailing
// newline does not produce an extra empty line.
func splitLines(code string) []string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.TrimSuffix(code, "\n")
	return strings.Split(code, "\n")
}
