// Package controller is the client side of the interpreter protocol. A
// Controller owns the live worker, turns Run, Execute, Stop and Restart into
// commands, and routes the worker's events to callbacks.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/worker"
)

// Option configures a Controller.
type Option func(*Controller)

func WithObserver(obs observability.Observer) Option {
	return func(c *Controller) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// WithFileSource sets where exported files come from. Without one, commands
// carry no exports and the sandbox is emptied before each run.
func WithFileSource(files FileSource) Option {
	return func(c *Controller) {
		if files != nil {
			c.files = files
		}
	}
}

// Controller drives exactly one live worker at a time.
type Controller struct {
	spawn    worker.Factory
	cb       Callbacks
	files    FileSource
	observer observability.Observer

	// cbMu serializes callback invocations.
	cbMu sync.Mutex

	mu        sync.Mutex
	worker    worker.Worker
	interrupt *protocol.InterruptBuffer
	busy      bool
	idle      chan struct{}
	lost      bool
	closed    bool
	wg        sync.WaitGroup
}

// New spawns the first worker and asks it to initialize. The controller is
// busy until the worker's first unlock.
func New(ctx context.Context, spawn worker.Factory, cb Callbacks, opts ...Option) (*Controller, error) {
	c := &Controller{
		spawn:    spawn,
		cb:       cb,
		files:    noFiles{},
		observer: observability.NoOpObserver{},
		idle:     make(chan struct{}),
	}
	close(c.idle)
	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.spawnLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Run executes code as a standalone script with a fresh snapshot of the
// exported files.
func (c *Controller) Run(ctx context.Context, code string) error {
	w, buf, err := c.live()
	if err != nil {
		return err
	}
	buf.Reset()

	cmd := protocol.CmdRun{Code: code, Exports: c.files.ExportedFiles()}
	c.observe(ctx, EventRun, observability.LevelInfo, map[string]any{"exports": len(cmd.Exports)})

	// A run always ends with an unlock, so it counts as busy from now on.
	c.setBusy(true)
	if err := c.post(ctx, w, cmd); err != nil {
		c.setBusy(false)
		return err
	}
	return nil
}

// Execute feeds code to the REPL.
func (c *Controller) Execute(ctx context.Context, code string) error {
	w, buf, err := c.live()
	if err != nil {
		return err
	}
	buf.Reset()

	cmd := protocol.CmdReplInput{Code: code, Exports: c.files.ExportedFiles()}
	c.observe(ctx, EventExecute, observability.LevelInfo, map[string]any{"exports": len(cmd.Exports)})
	return c.post(ctx, w, cmd)
}

// Stop interrupts running code. When the worker cannot share an interrupt
// buffer the worker is replaced instead.
func (c *Controller) Stop(ctx context.Context) error {
	w, buf, err := c.live()
	if err != nil {
		return err
	}

	if buf != nil {
		c.observe(ctx, EventStop, observability.LevelInfo, map[string]any{"graceful": true})
		buf.Request()
		return c.post(ctx, w, protocol.CmdReplClear{})
	}

	c.observe(ctx, EventStop, observability.LevelInfo, map[string]any{"graceful": false})
	c.callText(c.cb.System, engine.NoSharedMemoryNotice)
	return c.respawn(ctx)
}

// Restart terminates the worker and starts a fresh one. It is safe at any
// time and recovers from a lost worker.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.observe(ctx, EventRestart, observability.LevelInfo, nil)
	c.callText(c.cb.System, engine.RestartNotice)
	return c.respawn(ctx)
}

// Busy reports whether the worker is between a lock and its unlock.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Wait blocks until the worker is idle. It returns ErrWorkerLost if the
// worker ends while busy.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost {
		return ErrWorkerLost
	}
	return nil
}

// Close terminates the worker and waits for event routing to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	w := c.worker
	c.worker = nil
	c.setBusyLocked(false)
	c.mu.Unlock()

	if w != nil {
		w.Terminate()
	}
	c.wg.Wait()
	c.observe(context.Background(), EventClose, observability.LevelInfo, nil)
}

func (c *Controller) live() (worker.Worker, *protocol.InterruptBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return nil, nil, ErrClosed
	case c.lost || c.worker == nil:
		return nil, nil, ErrWorkerLost
	}
	return c.worker, c.interrupt, nil
}

func (c *Controller) post(ctx context.Context, w worker.Worker, cmd protocol.Command) error {
	if err := w.Post(ctx, cmd); err != nil {
		return fmt.Errorf("controller: post %s: %w", cmd.CommandType(), err)
	}
	return nil
}

func (c *Controller) respawn(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.worker
	c.worker = nil
	c.mu.Unlock()

	if old != nil {
		old.Terminate()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.spawnLocked(ctx)
}

func (c *Controller) spawnLocked(ctx context.Context) error {
	start := time.Now()
	w, err := c.spawn(ctx)
	if err != nil {
		c.lost = true
		c.setBusyLocked(false)
		return fmt.Errorf("controller: spawn worker: %w", err)
	}

	var buf *protocol.InterruptBuffer
	if w.SharedMemory() {
		buf = protocol.NewInterruptBuffer()
	}
	c.worker = w
	c.interrupt = buf
	c.lost = false
	c.setBusyLocked(true)

	c.wg.Add(1)
	go c.dispatch(w)

	c.observe(ctx, EventSpawn, observability.LevelInfo, map[string]any{
		"worker_id":     w.ID(),
		"shared_memory": buf != nil,
		"duration":      time.Since(start),
	})

	if err := w.Post(ctx, protocol.CmdInitialize{Interrupt: buf}); err != nil {
		c.lost = true
		c.setBusyLocked(false)
		w.Terminate()
		return fmt.Errorf("controller: initialize: %w", err)
	}
	return nil
}

func (c *Controller) dispatch(w worker.Worker) {
	defer c.wg.Done()
	ctx := context.Background()

	for {
		ev, err := w.Receive(ctx)
		if err != nil {
			c.workerEnded(w, err)
			return
		}
		if !c.current(w) {
			continue
		}

		switch e := ev.(type) {
		case protocol.EvWrite:
			c.callText(c.cb.Write, e.Text)
		case protocol.EvWriteln:
			c.callText(c.cb.Writeln, e.Text)
		case protocol.EvError:
			c.callText(c.cb.Error, e.Text)
		case protocol.EvSystem:
			c.callText(c.cb.System, e.Text)
		case protocol.EvLock:
			c.setBusy(true)
			c.call(c.cb.Lock)
		case protocol.EvUnlock:
			c.setBusy(false)
			c.call(c.cb.Unlock)
		default:
			c.observe(ctx, EventIgnored, observability.LevelVerbose, map[string]any{"type": string(ev.EventType())})
		}
	}
}

// workerEnded marks w lost if it ended while still the live worker. Lost
// workers stay down until Restart.
func (c *Controller) workerEnded(w worker.Worker, err error) {
	c.mu.Lock()
	if c.closed || c.worker != w {
		c.mu.Unlock()
		return
	}
	c.lost = true
	c.setBusyLocked(false)
	c.mu.Unlock()

	c.observe(context.Background(), EventWorkerLost, observability.LevelError, map[string]any{
		"worker_id": w.ID(),
		"error":     err,
	})
}

func (c *Controller) current(w worker.Worker) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker == w
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setBusyLocked(busy)
}

func (c *Controller) setBusyLocked(busy bool) {
	if busy == c.busy {
		return
	}
	c.busy = busy
	if busy {
		c.idle = make(chan struct{})
	} else {
		close(c.idle)
	}
}

func (c *Controller) callText(fn func(string), text string) {
	if fn == nil {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	fn(text)
}

func (c *Controller) call(fn func()) {
	if fn == nil {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	fn()
}

func (c *Controller) observe(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, c.observer, typ, level, "controller.Controller", data)
}
