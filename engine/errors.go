package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRuntimeExited  = errors.New("engine: runtime exited")
	ErrDestroyed      = errors.New("engine: adapter destroyed")
	ErrCrashed        = errors.New("engine: runtime crashed and was rebuilt")
	ErrNoRuntime      = errors.New("engine: no runtime factory")
	ErrInvalidName    = errors.New("engine: invalid sandbox file name")
	ErrPackageInstall = errors.New("engine: package install failed")
)

// ExecError is an exception raised by user code.
type ExecError struct {
	Type      string
	Message   string
	Formatted string
}

func (e *ExecError) Error() string {
	if e.Formatted != "" {
		return strings.TrimRight(e.Formatted, "\n")
	}
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// CrashPredicate decides whether a failure means the interpreter must be
// rebuilt rather than reported as an ordinary error.
type CrashPredicate func(error) bool

// DefaultCrashPredicate treats a dead interpreter process as a crash.
// Exceptions raised inside user code, including RecursionError, are ordinary
// errors.
func DefaultCrashPredicate(err error) bool {
	return errors.Is(err, ErrRuntimeExited)
}

// errorText renders err the way it is shown in the terminal.
func errorText(err error) string {
	var exec *ExecError
	if errors.As(err, &exec) {
		if exec.Formatted != "" {
			return strings.TrimRight(exec.Formatted, "\n")
		}
		if exec.Message != "" {
			return exec.Message
		}
	}
	return err.Error()
}
