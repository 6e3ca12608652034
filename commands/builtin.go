package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

var builtins = []struct {
	cmd     Command
	handler Handler
}{
	{Command{Name: "run", Usage: ":run [file]", Description: "Run a file, or the selected file, as a script."}, handleRun},
	{Command{Name: "stop", Usage: ":stop", Description: "Interrupt running code."}, handleStop},
	{Command{Name: "restart", Usage: ":restart", Description: "Restart the interpreter."}, handleRestart},
	{Command{Name: "files", Usage: ":files", Description: "List files. * marks unsaved, + marks exported."}, handleFiles},
	{Command{Name: "open", Usage: ":open <file>", Description: "Select a file."}, handleOpen},
	{Command{Name: "new", Usage: ":new", Description: "Create an untitled file and select it."}, handleNew},
	{Command{Name: "load", Usage: ":load <path>", Description: "Copy a file from disk into the workspace."}, handleLoad},
	{Command{Name: "export", Usage: ":export <file> [on|off]", Description: "Make a file importable by running code."}, handleExport},
	{Command{Name: "save", Usage: ":save <file>", Description: "Save a file to the vault."}, handleSave},
	{Command{Name: "help", Usage: ":help", Description: "List commands."}, handleHelp},
}

// RegisterBuiltins adds the standard terminal commands.
func RegisterBuiltins() error {
	for _, b := range builtins {
		if err := Register(b.cmd, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func handleRun(ctx context.Context, env Env, args []string) error {
	var name, code string
	switch len(args) {
	case 0:
		sel, ok := env.Workspace.Selected()
		if !ok {
			return fmt.Errorf("%w: :run <file> (no file selected)", ErrUsage)
		}
		name, code = sel.Name, sel.Content
	case 1:
		content, ok := env.Workspace.File(args[0])
		if !ok {
			return fmt.Errorf("no such file: %s", args[0])
		}
		name, code = args[0], content
	default:
		return fmt.Errorf("%w: :run [file]", ErrUsage)
	}

	env.Workspace.Select(name)
	return env.Interpreter.Run(ctx, code)
}

func handleStop(ctx context.Context, env Env, _ []string) error {
	return env.Interpreter.Stop(ctx)
}

func handleRestart(ctx context.Context, env Env, _ []string) error {
	return env.Interpreter.Restart(ctx)
}

func handleFiles(_ context.Context, env Env, _ []string) error {
	sel, _ := env.Workspace.Selected()
	for _, e := range env.Workspace.Names() {
		marks := ""
		if e.Unsaved {
			marks += "*"
		}
		if e.Exported {
			marks += "+"
		}
		cursor := " "
		if e.Name == sel.Name {
			cursor = ">"
		}
		fmt.Fprintf(env.Out, "%s %-2s %s\n", cursor, marks, e.Name)
	}
	return nil
}

func handleOpen(_ context.Context, env Env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: :open <file>", ErrUsage)
	}
	if !env.Workspace.Select(args[0]) {
		return fmt.Errorf("no such file: %s", args[0])
	}
	return nil
}

func handleNew(_ context.Context, env Env, _ []string) error {
	fmt.Fprintln(env.Out, env.Workspace.Draft(true))
	return nil
}

func handleLoad(ctx context.Context, env Env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: :load <path>", ErrUsage)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	name, err := env.Workspace.Create(ctx, filepath.Base(args[0]), string(data))
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, name)
	return nil
}

func handleExport(_ context.Context, env Env, args []string) error {
	switch {
	case len(args) == 1:
		on, err := env.Workspace.ToggleExported(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "%s exported: %t\n", args[0], on)
		return nil
	case len(args) == 2 && (args[1] == "on" || args[1] == "off"):
		return env.Workspace.SetExported(args[0], args[1] == "on")
	default:
		return fmt.Errorf("%w: :export <file> [on|off]", ErrUsage)
	}
}

func handleSave(ctx context.Context, env Env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: :save <file>", ErrUsage)
	}
	return env.Workspace.Save(ctx, args[0])
}

func handleHelp(_ context.Context, env Env, _ []string) error {
	for _, c := range List() {
		fmt.Fprintf(env.Out, "  %-26s %s\n", c.Usage, c.Description)
	}
	return nil
}
