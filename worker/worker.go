// Package worker hosts sessions behind a message boundary. A Local worker
// runs the session on a goroutine in this process; a Remote worker reaches a
// session served by another process over Connect RPC.
package worker

import (
	"context"

	"github.com/tailored-agentic-units/pyide/protocol"
)

// Worker is the controller's handle on one live session.
type Worker interface {
	ID() string

	// Post delivers a command. Commands are processed in the order posted.
	Post(ctx context.Context, cmd protocol.Command) error

	// Receive returns the next event. After the worker ends and its queued
	// events are drained it returns transport.ErrClosed.
	Receive(ctx context.Context) (protocol.Event, error)

	// SharedMemory reports whether an interrupt buffer can reach the
	// session. Without it, stopping running code means replacing the worker.
	SharedMemory() bool

	// Terminate ends the worker immediately, even mid-command.
	Terminate()

	// Done is closed once the worker has ended.
	Done() <-chan struct{}
}

// Factory spawns a fresh worker.
type Factory func(ctx context.Context) (Worker, error)
