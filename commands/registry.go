// Package commands implements the terminal's meta-commands. A line starting
// with Prefix names a registered command; any other line is Python for the
// REPL.
package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/pyide/workspace"
)

// Prefix marks a meta-command line.
const Prefix = ":"

// Interpreter is the part of the session controller commands drive.
type Interpreter interface {
	Run(ctx context.Context, code string) error
	Execute(ctx context.Context, code string) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Env is what a command acts on.
type Env struct {
	Interpreter Interpreter
	Workspace   *workspace.Workspace
	// Out receives command output meant for the user.
	Out io.Writer
}

// Handler runs a command with its whitespace-separated arguments.
type Handler func(ctx context.Context, env Env, args []string) error

// Command describes a registered meta-command.
type Command struct {
	Name        string
	Usage       string
	Description string
}

type entry struct {
	command Command
	handler Handler
}

type registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

var register = &registry{
	entries: make(map[string]entry),
}

// Register adds a command to the global registry. Returns ErrAlreadyExists
// if the name is taken; use Replace to swap a handler.
func Register(cmd Command, handler Handler) error {
	if cmd.Name == "" {
		return ErrEmptyName
	}

	register.mu.Lock()
	defer register.mu.Unlock()

	if _, exists := register.entries[cmd.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, cmd.Name)
	}

	register.entries[cmd.Name] = entry{command: cmd, handler: handler}
	return nil
}

// Replace updates an existing command. Returns ErrNotFound if no command
// with the name is registered.
func Replace(cmd Command, handler Handler) error {
	if cmd.Name == "" {
		return ErrEmptyName
	}

	register.mu.Lock()
	defer register.mu.Unlock()

	if _, exists := register.entries[cmd.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, cmd.Name)
	}

	register.entries[cmd.Name] = entry{command: cmd, handler: handler}
	return nil
}

func Get(name string) (Handler, bool) {
	register.mu.RLock()
	defer register.mu.RUnlock()

	e, exists := register.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// List returns every registered command sorted by name.
func List() []Command {
	register.mu.RLock()
	defer register.mu.RUnlock()

	cmds := make([]Command, 0, len(register.entries))
	for _, e := range register.entries {
		cmds = append(cmds, e.command)
	}
	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].Name < cmds[j].Name
	})
	return cmds
}

// Execute runs the named command.
func Execute(ctx context.Context, env Env, name string, args []string) error {
	register.mu.RLock()
	e, exists := register.entries[name]
	register.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := e.handler(ctx, env, args); err != nil {
		return fmt.Errorf("command %s failed: %w", name, err)
	}
	return nil
}

// Dispatch routes one line of terminal input. Meta-command lines run their
// command; everything else goes to the REPL unchanged.
func Dispatch(ctx context.Context, env Env, line string) error {
	name, args, ok := Parse(line)
	if !ok {
		return env.Interpreter.Execute(ctx, line)
	}
	return Execute(ctx, env, name, args)
}

// Parse splits a meta-command line into its name and arguments.
func Parse(line string) (name string, args []string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, Prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, Prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}
