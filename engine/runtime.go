// Package engine adapts an opaque Python interpreter to the operations a
// session needs: initialize, run a script, push REPL lines, await their
// results, interrupt, and mirror exported files into the sandbox.
//
// The interpreter itself sits behind Runtime. The Adapter owns one Runtime at
// a time, turns its results and failures into protocol events, and rebuilds
// it after a fatal crash.
package engine

import (
	"context"
	"io"
	"io/fs"
)

// Status is the outcome of pushing one REPL line.
type Status string

const (
	StatusSyntaxError Status = "syntax-error"
	// StatusIncomplete means more input is expected. A compound statement
	// such as def, for or if stays incomplete until a blank line is pushed.
	StatusIncomplete  Status = "incomplete"
	StatusComplete    Status = "complete"
)

// PushResult is returned by Runtime.Push. Formatted holds the rendered error
// when Status is StatusSyntaxError.
type PushResult struct {
	Status    Status
	Formatted string
}

// Result is the value of a script or an evaluated REPL statement.
// HasValue is false for statements without a representation, such as a
// definition or an expression evaluating to None.
type Result struct {
	Value    string
	HasValue bool
}

// Streams receives output written by user code while a call is in flight.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

// SandboxFS is the interpreter-visible filesystem exports are mirrored into.
type SandboxFS interface {
	WriteFile(name string, data []byte) error
	ReadDir(name string) ([]fs.DirEntry, error)
	Unlink(name string) error
}

// Runtime is one live interpreter. Calls are never concurrent except
// Interrupt and Close, which may arrive from another goroutine while a call
// is running.
type Runtime interface {
	// Start brings the interpreter up and returns its banner.
	Start(ctx context.Context, streams Streams) (string, error)

	// Run executes code as a script in a fresh namespace and rebinds the
	// console to that namespace on success.
	Run(ctx context.Context, code string) (Result, error)

	// Push feeds one line to the console.
	Push(ctx context.Context, line string) (PushResult, error)

	// Await evaluates the statement completed by the last Push.
	Await(ctx context.Context) (Result, error)

	// ClearBuffer discards accumulated console input.
	ClearBuffer(ctx context.Context) error

	// MissingImports lists top-level modules code imports that are not
	// importable.
	MissingImports(ctx context.Context, code string) ([]string, error)

	// Interrupt raises a keyboard interrupt in running user code.
	Interrupt() error

	FS() SandboxFS

	Close() error
}

// Factory creates an unstarted Runtime.
type Factory func(ctx context.Context) (Runtime, error)
