// Package transport carries commands and events between a controller and an
// in-process worker.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send on a closed channel, and by Receive once a
// closed channel has been drained.
var ErrClosed = errors.New("transport: channel closed")

// Channel is a FIFO queue with context-aware Send and Receive. Closing it
// never panics a concurrent sender.
type Channel[T any] struct {
	channel    chan T
	done       chan struct{}
	bufferSize int
	closed     atomic.Bool
	closeOnce  sync.Once
}

func NewChannel[T any](bufferSize int) *Channel[T] {
	return &Channel[T]{
		channel:    make(chan T, bufferSize),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
	}
}

func (c *Channel[T]) Send(ctx context.Context, message T) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.channel <- message:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks for the next message. Messages queued before Close are still
// delivered.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	select {
	case message := <-c.channel:
		return message, nil
	case <-c.done:
		return c.drain()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Channel[T]) TryReceive() (T, bool) {
	select {
	case message := <-c.channel:
		return message, true
	default:
		var zero T
		return zero, false
	}
}

func (c *Channel[T]) drain() (T, error) {
	select {
	case message := <-c.channel:
		return message, nil
	default:
		var zero T
		return zero, ErrClosed
	}
}

func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Channel[T]) IsClosed() bool {
	return c.closed.Load()
}

// Done is closed when the channel is closed.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

func (c *Channel[T]) BufferSize() int {
	return c.bufferSize
}

func (c *Channel[T]) QueueLength() int {
	return len(c.channel)
}
