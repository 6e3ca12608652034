// Package enginetest provides an in-memory engine.Runtime for tests that do
// not need a real interpreter.
package enginetest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/pyide/engine"
)

// EvalFunc evaluates source. Output written to stdout reaches the adapter
// as stream text.
type EvalFunc func(ctx context.Context, source string, stdout io.Writer) (engine.Result, error)

// Runtime is a scripted engine.Runtime. Push classifies lines the way an
// interactive console does: a trailing colon opens a block, and a blank line
// closes it.
type Runtime struct {
	Banner   string
	StartErr error
	Eval     EvalFunc
	Missing  []string

	mu      sync.Mutex
	fs      *MapFS
	streams engine.Streams
	buffer  []string
	pending string
	calls   []string
	closed  bool

	interrupt chan struct{}
	done      chan struct{}
}

func NewRuntime() *Runtime {
	return &Runtime{
		Banner:    "Python 3.12.0 (enginetest)",
		fs:        NewMapFS(),
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

var _ engine.Runtime = (*Runtime)(nil)

func (r *Runtime) Start(ctx context.Context, streams engine.Streams) (string, error) {
	r.record("start")
	if r.StartErr != nil {
		return "", r.StartErr
	}
	r.mu.Lock()
	r.streams = streams
	r.mu.Unlock()
	return r.Banner, nil
}

func (r *Runtime) Run(ctx context.Context, code string) (engine.Result, error) {
	r.record("run")
	if err := r.alive(); err != nil {
		return engine.Result{}, err
	}
	r.mu.Lock()
	r.buffer = nil
	r.mu.Unlock()
	return r.eval(ctx, code)
}

func (r *Runtime) Push(ctx context.Context, line string) (engine.PushResult, error) {
	r.record("push")
	if err := r.alive(); err != nil {
		return engine.PushResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, line)
	switch status, formatted := classify(r.buffer); status {
	case engine.StatusSyntaxError:
		r.buffer = nil
		return engine.PushResult{Status: status, Formatted: formatted}, nil
	case engine.StatusIncomplete:
		return engine.PushResult{Status: status}, nil
	default:
		r.pending = strings.TrimRight(strings.Join(r.buffer, "\n"), "\n")
		r.buffer = nil
		return engine.PushResult{Status: status}, nil
	}
}

func (r *Runtime) Await(ctx context.Context) (engine.Result, error) {
	r.record("await")
	if err := r.alive(); err != nil {
		return engine.Result{}, err
	}
	r.mu.Lock()
	source := r.pending
	r.pending = ""
	r.mu.Unlock()
	return r.eval(ctx, source)
}

func (r *Runtime) ClearBuffer(ctx context.Context) error {
	r.record("clear")
	if err := r.alive(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
	r.pending = ""
	return nil
}

func (r *Runtime) MissingImports(ctx context.Context, code string) ([]string, error) {
	r.record("imports")
	return r.Missing, nil
}

// Interrupt wakes an Eval blocked in BlockUntilInterrupt.
func (r *Runtime) Interrupt() error {
	r.record("interrupt")
	select {
	case r.interrupt <- struct{}{}:
	default:
	}
	return nil
}

func (r *Runtime) FS() engine.SandboxFS {
	return r.fs
}

// Files exposes the sandbox for assertions.
func (r *Runtime) Files() *MapFS {
	return r.fs
}

func (r *Runtime) Close() error {
	r.record("close")
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Calls returns the method names invoked so far.
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Buffered reports the lines accumulated by Push.
func (r *Runtime) Buffered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.buffer...)
}

// Interrupted is signalled by Interrupt.
func (r *Runtime) Interrupted() <-chan struct{} {
	return r.interrupt
}

// Gone is closed by Close.
func (r *Runtime) Gone() <-chan struct{} {
	return r.done
}

func (r *Runtime) eval(ctx context.Context, source string) (engine.Result, error) {
	r.mu.Lock()
	stdout := r.streams.Stdout
	r.mu.Unlock()
	if stdout == nil {
		stdout = io.Discard
	}
	if r.Eval != nil {
		return r.Eval(ctx, source, stdout)
	}
	return Evaluate(ctx, source, stdout)
}

func (r *Runtime) alive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: closed", engine.ErrRuntimeExited)
	}
	return nil
}

func (r *Runtime) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func classify(lines []string) (engine.Status, string) {
	first := lines[0]
	last := lines[len(lines)-1]

	if strings.HasPrefix(strings.TrimSpace(first), ")") {
		return engine.StatusSyntaxError, "  File \"<console>\", line 1\n    " + first + "\n    ^\nSyntaxError: unmatched ')'\n"
	}
	if strings.HasSuffix(strings.TrimSpace(first), ":") {
		if len(lines) > 1 && strings.TrimSpace(last) == "" {
			return engine.StatusComplete, ""
		}
		return engine.StatusIncomplete, ""
	}
	return engine.StatusComplete, ""
}
