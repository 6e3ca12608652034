package transport

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/pyide/protocol"
)

// DefaultBufferSize sizes both directions of a pipe. Large enough that a
// chatty print loop rarely blocks the worker on a slow controller.
const DefaultBufferSize = 1024

// CommandSource yields commands to a worker.
type CommandSource interface {
	Receive(ctx context.Context) (protocol.Command, error)
}

// EventSink accepts events from a worker.
type EventSink interface {
	Send(ctx context.Context, ev protocol.Event) error
}

// WorkerEnd is the worker side of a connection.
type WorkerEnd interface {
	CommandSource
	EventSink
}

// Pipe is an in-process duplex connection: commands in one direction, events
// in the other.
type Pipe struct {
	Commands *Channel[protocol.Command]
	Events   *Channel[protocol.Event]
}

func NewPipe(bufferSize int) *Pipe {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Pipe{
		Commands: NewChannel[protocol.Command](bufferSize),
		Events:   NewChannel[protocol.Event](bufferSize),
	}
}

// Worker returns the end a session serves on.
func (p *Pipe) Worker() WorkerEnd {
	return workerEnd{p}
}

// Post queues a command for the worker.
func (p *Pipe) Post(ctx context.Context, cmd protocol.Command) error {
	return p.Commands.Send(ctx, cmd)
}

// Next returns the next event from the worker.
func (p *Pipe) Next(ctx context.Context) (protocol.Event, error) {
	return p.Events.Receive(ctx)
}

// Close shuts both directions. Queued events remain readable.
func (p *Pipe) Close() {
	p.Commands.Close()
	p.Events.Close()
}

type workerEnd struct{ p *Pipe }

func (w workerEnd) Receive(ctx context.Context) (protocol.Command, error) {
	return w.p.Commands.Receive(ctx)
}

func (w workerEnd) Send(ctx context.Context, ev protocol.Event) error {
	return w.p.Events.Send(ctx, ev)
}

// Recorder is an EventSink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, ev protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.events...)
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
