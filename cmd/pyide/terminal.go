package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/tailored-agentic-units/pyide/commands"
	"github.com/tailored-agentic-units/pyide/controller"
	"github.com/tailored-agentic-units/pyide/ide"
)

var errQuit = errors.New("quit")

// stdio prints controller output to the process streams.
func stdio(stdout, stderr io.Writer) controller.Callbacks {
	return controller.Callbacks{
		Write:   func(s string) { fmt.Fprint(stdout, s) },
		Writeln: func(s string) { fmt.Fprintln(stdout, s) },
		Error:   func(s string) { fmt.Fprintln(stderr, s) },
		System:  func(s string) { fmt.Fprintln(stderr, s) },
	}
}

// registerTerminalCommands adds commands that only make sense on a local
// terminal.
func registerTerminalCommands(history *commands.History) {
	must(commands.Register(commands.Command{
		Name:        "history",
		Usage:       ":history",
		Description: "List previously entered lines.",
	}, func(_ context.Context, env commands.Env, _ []string) error {
		for i, line := range history.Entries() {
			fmt.Fprintf(env.Out, "%4d  %s\n", i+1, line)
		}
		return nil
	}))

	must(commands.Register(commands.Command{
		Name:        "quit",
		Usage:       ":quit",
		Description: "Exit the terminal.",
	}, func(context.Context, commands.Env, []string) error {
		return errQuit
	}))
}

// interact reads lines from in until EOF or :quit. Ctrl-C interrupts the
// running code instead of exiting.
func interact(ctx context.Context, app *ide.IDE, in io.Reader) error {
	history := commands.NewHistory(commands.DefaultHistoryLimit)
	registerTerminalCommands(history)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-sigs:
				if err := app.Controller().Stop(ctx); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	env := app.Env(os.Stdout)
	ctrl := app.Controller()
	if err := ctrl.Wait(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			history.Push(line)
		}

		err := commands.Dispatch(ctx, env, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if err := ctrl.Wait(ctx); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
