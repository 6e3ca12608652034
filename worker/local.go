package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/session"
	"github.com/tailored-agentic-units/pyide/transport"
)

// LocalOption configures a Local worker.
type LocalOption func(*localOptions)

type localOptions struct {
	bufferSize int
	sessionOps []session.Option
	observer   observability.Observer
}

func WithBufferSize(n int) LocalOption {
	return func(o *localOptions) {
		o.bufferSize = n
	}
}

func WithSessionOptions(opts ...session.Option) LocalOption {
	return func(o *localOptions) {
		o.sessionOps = append(o.sessionOps, opts...)
	}
}

func WithLocalObserver(obs observability.Observer) LocalOption {
	return func(o *localOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// Local runs a session on its own goroutine, connected by a transport.Pipe.
type Local struct {
	id       string
	pipe     *transport.Pipe
	session  *session.Session
	cancel   context.CancelFunc
	observer observability.Observer

	done      chan struct{}
	err       error
	terminate sync.Once
}

var _ Worker = (*Local)(nil)

// NewLocal starts a session serving on a new goroutine.
func NewLocal(factory engine.Factory, opts ...LocalOption) *Local {
	o := localOptions{observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pipe := transport.NewPipe(o.bufferSize)
	l := &Local{
		id:       uuid.Must(uuid.NewV7()).String(),
		pipe:     pipe,
		session:  session.New(pipe.Worker(), factory, o.sessionOps...),
		cancel:   cancel,
		observer: o.observer,
		done:     make(chan struct{}),
	}

	l.observe(EventSpawn, observability.LevelInfo, nil)
	go l.serve(ctx)
	return l
}

// LocalFactory returns a Factory producing Local workers.
func LocalFactory(factory engine.Factory, opts ...LocalOption) Factory {
	return func(ctx context.Context) (Worker, error) {
		return NewLocal(factory, opts...), nil
	}
}

func (l *Local) serve(ctx context.Context) {
	defer close(l.done)
	l.err = l.session.Serve(ctx, l.pipe.Worker())
	l.session.Destroy()
	l.pipe.Close()
	l.observe(EventExit, observability.LevelInfo, map[string]any{"error": l.err})
}

func (l *Local) ID() string {
	return l.id
}

// Session exposes the hosted session.
func (l *Local) Session() *session.Session {
	return l.session
}

func (l *Local) Post(ctx context.Context, cmd protocol.Command) error {
	return l.pipe.Post(ctx, cmd)
}

func (l *Local) Receive(ctx context.Context) (protocol.Event, error) {
	return l.pipe.Next(ctx)
}

func (l *Local) SharedMemory() bool {
	return true
}

// Terminate cancels the session and kills its engine. Events already queued
// remain readable.
func (l *Local) Terminate() {
	l.terminate.Do(func() {
		l.observe(EventTerminate, observability.LevelInfo, nil)
		l.cancel()
		l.session.Destroy()
		l.pipe.Commands.Close()
	})
}

func (l *Local) Done() <-chan struct{} {
	return l.done
}

// Err is the reason Serve ended. Valid after Done is closed.
func (l *Local) Err() error {
	<-l.done
	return l.err
}

func (l *Local) observe(typ observability.EventType, level observability.Level, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["worker_id"] = l.id
	observability.Emit(context.Background(), l.observer, typ, level, "worker.Local", data)
}
