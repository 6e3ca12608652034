package session_test

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/engine/enginetest"
	"github.com/tailored-agentic-units/pyide/engine/python"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/session"
	"github.com/tailored-agentic-units/pyide/transport"
)

type harness struct {
	session *session.Session
	events  *transport.Recorder
	factory *enginetest.Factory
	obs     *observability.Recorder
}

func newHarness(t *testing.T, configure func(*enginetest.Runtime)) *harness {
	t.Helper()
	h := &harness{
		events:  transport.NewRecorder(),
		factory: &enginetest.Factory{Configure: configure},
		obs:     observability.NewRecorder(),
	}
	h.session = session.New(h.events, h.factory.New, session.WithObserver(h.obs))
	t.Cleanup(h.session.Destroy)
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Handle(context.Background(), protocol.CmdInitialize{Interrupt: protocol.NewInterruptBuffer()}))
	h.events.Reset()
}

func (h *harness) handle(t *testing.T, cmd protocol.Command) []protocol.Event {
	t.Helper()
	h.events.Reset()
	h.session.Handle(context.Background(), cmd)
	return h.events.Events()
}

func texts[T protocol.Event](events []protocol.Event) []string {
	var out []string
	for _, ev := range events {
		if _, ok := ev.(T); !ok {
			continue
		}
		switch e := ev.(type) {
		case protocol.EvWrite:
			out = append(out, e.Text)
		case protocol.EvWriteln:
			out = append(out, e.Text)
		case protocol.EvError:
			out = append(out, e.Text)
		case protocol.EvSystem:
			out = append(out, e.Text)
		}
	}
	return out
}

func count[T protocol.Event](events []protocol.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

func requireBracketed(t *testing.T, events []protocol.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	require.Equal(t, protocol.EvLock{}, events[0], "first event")
	require.Equal(t, protocol.EvUnlock{}, events[len(events)-1], "last event")
	require.Equal(t, 1, count[protocol.EvLock](events))
	require.Equal(t, 1, count[protocol.EvUnlock](events))
}

func TestSession_Initialize(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, session.Uninitialized, h.session.State())
	require.NotEmpty(t, h.session.ID())

	events := h.handle(t, protocol.CmdInitialize{})
	require.Equal(t, []protocol.Event{
		protocol.EvWriteln{Text: "Python 3.12.0 (enginetest)"},
		protocol.EvWrite{Text: engine.PS1},
		protocol.EvUnlock{},
	}, events)
	require.Equal(t, session.Idle, h.session.State())

	events = h.handle(t, protocol.CmdInitialize{Interrupt: protocol.NewInterruptBuffer()})
	require.Empty(t, events, "re-attaching a buffer is silent")
	require.Len(t, h.factory.Created(), 1)
	require.False(t, h.obs.Has(session.EventInvalidTransition))
}

func TestSession_InitializeFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.Err = fmt.Errorf("exec: \"python3\": executable file not found in $PATH")

	err := h.session.Handle(context.Background(), protocol.CmdInitialize{})
	require.Error(t, err)
	require.Equal(t, session.Uninitialized, h.session.State())

	events := h.events.Events()
	require.Len(t, texts[protocol.EvError](events), 1)
	require.Equal(t, protocol.EvUnlock{}, events[len(events)-1])

	h.factory.Err = nil
	require.NoError(t, h.session.Handle(context.Background(), protocol.CmdInitialize{}))
	require.Equal(t, session.Idle, h.session.State())
}

func TestSession_RunPrints(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	events := h.handle(t, protocol.CmdRun{Code: "print(1+1)"})
	require.Equal(t, []protocol.Event{
		protocol.EvLock{},
		protocol.EvWriteln{Text: engine.RunBanner},
		protocol.EvWriteln{Text: "2"},
		protocol.EvWrite{Text: "\n" + engine.PS1},
		protocol.EvUnlock{},
	}, events)
	require.Equal(t, session.Idle, h.session.State())
}

func TestSession_RunLockBracketing(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*enginetest.Runtime)
		code      string
	}{
		{name: "success", code: "print(1)"},
		{name: "user error", code: "1/0"},
		{
			name: "engine crash",
			configure: func(rt *enginetest.Runtime) {
				rt.Eval = func(context.Context, string, io.Writer) (engine.Result, error) {
					return engine.Result{}, fmt.Errorf("%w: signal: killed", engine.ErrRuntimeExited)
				}
			},
			code: "def f(): return f()\nf()",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.configure)
			h.init(t)

			events := h.handle(t, protocol.CmdRun{Code: tt.code})
			requireBracketed(t, events)
			require.Equal(t, session.Idle, h.session.State())
			require.False(t, h.obs.Has(session.EventInvalidTransition))
		})
	}
}

func TestSession_RunBootsAfterFailedInitialize(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.Err = fmt.Errorf("engine unavailable")
	require.Error(t, h.session.Handle(context.Background(), protocol.CmdInitialize{}))
	require.Equal(t, session.Uninitialized, h.session.State())

	events := h.handle(t, protocol.CmdRun{Code: "print(1)"})
	requireBracketed(t, events)
	require.Len(t, texts[protocol.EvError](events), 1, "boot still failing")
	require.Equal(t, session.Uninitialized, h.session.State())

	h.factory.Err = nil
	events = h.handle(t, protocol.CmdRun{Code: "print(1)"})
	requireBracketed(t, events)
	require.Contains(t, texts[protocol.EvWriteln](events), "1")
	require.Equal(t, session.Idle, h.session.State())
	require.False(t, h.obs.Has(session.EventInvalidTransition))
}

func TestSession_ReplBootsAfterFailedInitialize(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.Err = fmt.Errorf("engine unavailable")
	require.Error(t, h.session.Handle(context.Background(), protocol.CmdInitialize{}))
	h.factory.Err = nil

	events := h.handle(t, protocol.CmdReplInput{Code: "1+2"})
	require.Equal(t, protocol.EvLock{}, events[0])
	require.Equal(t, protocol.EvUnlock{}, events[len(events)-1])
	require.Equal(t, count[protocol.EvLock](events), count[protocol.EvUnlock](events))
	require.Contains(t, texts[protocol.EvWriteln](events), "3")
	require.Equal(t, session.Idle, h.session.State())
}

func TestSession_RunCrashRebuildsEngine(t *testing.T) {
	crashed := false
	h := newHarness(t, func(rt *enginetest.Runtime) {
		rt.Eval = func(ctx context.Context, src string, out io.Writer) (engine.Result, error) {
			if !crashed {
				crashed = true
				return engine.Result{}, fmt.Errorf("%w: signal: segmentation fault", engine.ErrRuntimeExited)
			}
			return enginetest.Evaluate(ctx, src, out)
		}
	})
	h.init(t)

	events := h.handle(t, protocol.CmdRun{Code: "boom()"})
	requireBracketed(t, events)
	require.Equal(t, []string{engine.CrashNotice}, texts[protocol.EvSystem](events))
	require.Len(t, h.factory.Created(), 2)

	var moves []string
	for _, ev := range h.obs.Events() {
		if ev.Type == session.EventTransition {
			moves = append(moves, ev.Data["to"].(string))
		}
	}
	require.Equal(t, []string{"initializing", "idle", "running", "initializing", "idle"}, moves)

	events = h.handle(t, protocol.CmdRun{Code: "print(5)"})
	require.Contains(t, texts[protocol.EvWriteln](events), "5")
}

func TestSession_RunSyncsExports(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	h.handle(t, protocol.CmdRun{Code: "import a", Exports: []protocol.File{{Name: "a.py", Content: "x=1"}}})
	require.Equal(t, []string{"a.py"}, h.factory.Last().Files().Names())

	h.handle(t, protocol.CmdRun{Code: "pass", Exports: []protocol.File{{Name: "b.py"}}})
	require.Equal(t, []string{"b.py"}, h.factory.Last().Files().Names())
}

func TestSession_ReplExpression(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	events := h.handle(t, protocol.CmdReplInput{Code: "1/0"})
	errs := texts[protocol.EvError](events)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "division by zero")
	require.Equal(t, session.Idle, h.session.State())

	events = h.handle(t, protocol.CmdReplInput{Code: "1+1"})
	require.Equal(t, []protocol.Event{
		protocol.EvWriteln{Text: "1+1"},
		protocol.EvLock{},
		protocol.EvWriteln{Text: "2"},
		protocol.EvWrite{Text: "\n" + engine.PS1},
		protocol.EvUnlock{},
	}, events)
}

func TestSession_ReplContinuation(t *testing.T) {
	defined := false
	h := newHarness(t, func(rt *enginetest.Runtime) {
		rt.Eval = func(ctx context.Context, src string, out io.Writer) (engine.Result, error) {
			if strings.HasPrefix(src, "def f():") {
				defined = true
				return engine.Result{}, nil
			}
			if src == "f()" && defined {
				return engine.Result{Value: "1", HasValue: true}, nil
			}
			return enginetest.Evaluate(ctx, src, out)
		}
	})
	h.init(t)

	events := h.handle(t, protocol.CmdReplInput{Code: "def f():"})
	require.Equal(t, []protocol.Event{
		protocol.EvWriteln{Text: "def f():"},
		protocol.EvWrite{Text: engine.PS2},
	}, events)
	require.True(t, h.session.Continuing())

	events = h.handle(t, protocol.CmdReplInput{Code: "    return 1"})
	require.Equal(t, protocol.EvWrite{Text: engine.PS2}, events[len(events)-1])

	events = h.handle(t, protocol.CmdReplInput{Code: ""})
	requireBracketed(t, events[1:])
	require.Empty(t, texts[protocol.EvWriteln](events[1:]), "a definition prints nothing")
	require.False(t, h.session.Continuing())

	events = h.handle(t, protocol.CmdReplInput{Code: "f()"})
	require.Contains(t, texts[protocol.EvWriteln](events), "1")
}

func TestSession_ReplSyntaxError(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	events := h.handle(t, protocol.CmdReplInput{Code: ")"})
	require.Zero(t, count[protocol.EvLock](events))
	require.Len(t, texts[protocol.EvError](events), 1)
	require.Equal(t, protocol.EvWrite{Text: "\n" + engine.PS1}, events[len(events)-1])
	require.False(t, h.session.Continuing())
}

func TestSession_ReplClearResetsContinuation(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	h.handle(t, protocol.CmdReplInput{Code: "for i in range(3):"})
	require.True(t, h.session.Continuing())

	events := h.handle(t, protocol.CmdReplClear{})
	require.Equal(t, []protocol.Event{
		protocol.EvError{Text: engine.KeyboardInterrupt},
		protocol.EvWrite{Text: "\n" + engine.PS1},
	}, events)
	require.False(t, h.session.Continuing())

	events = h.handle(t, protocol.CmdReplInput{Code: "1+1"})
	require.Contains(t, texts[protocol.EvWriteln](events), "2", "next line is a fresh statement")
}

func TestSession_ReplMultiLinePaste(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	events := h.handle(t, protocol.CmdReplInput{Code: "x = 1\r\nprint(7)\n"})
	require.Equal(t, []string{"x = 1", "print(7)", "7"}, texts[protocol.EvWriteln](events))
	require.Equal(t, 2, count[protocol.EvLock](events))
	require.Equal(t, 2, count[protocol.EvUnlock](events))
}

func TestSession_RunClearsContinuation(t *testing.T) {
	h := newHarness(t, nil)
	h.init(t)

	h.handle(t, protocol.CmdReplInput{Code: "if True:"})
	require.True(t, h.session.Continuing())

	h.handle(t, protocol.CmdRun{Code: "print(1)"})
	require.False(t, h.session.Continuing())
	require.Empty(t, h.factory.Last().Buffered())
}

func TestSession_ServeProcessesInOrder(t *testing.T) {
	h := newHarness(t, nil)
	pipe := transport.NewPipe(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := session.New(pipe.Worker(), h.factory.New)
	defer s.Destroy()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, pipe.Worker()) }()

	require.NoError(t, pipe.Post(ctx, protocol.CmdInitialize{}))
	for i := range 5 {
		require.NoError(t, pipe.Post(ctx, protocol.CmdRun{Code: fmt.Sprintf("print(%d)", i)}))
	}

	var printed []string
	locked := false
	for unlocks := 0; unlocks < 6; {
		ev, err := pipe.Next(ctx)
		require.NoError(t, err)
		switch e := ev.(type) {
		case protocol.EvLock:
			require.False(t, locked, "lock while already locked")
			locked = true
		case protocol.EvUnlock:
			locked = false
			unlocks++
		case protocol.EvWriteln:
			if e.Text != engine.RunBanner && locked {
				printed = append(printed, e.Text)
			}
		}
	}
	require.Equal(t, []string{"0", "1", "2", "3", "4"}, printed)

	pipe.Close()
	require.NoError(t, <-done)
}

func TestSession_ServeRecoversPanic(t *testing.T) {
	h := newHarness(t, func(rt *enginetest.Runtime) {
		rt.Eval = func(context.Context, string, io.Writer) (engine.Result, error) {
			panic("interpreter bug")
		}
	})
	pipe := transport.NewPipe(0)
	ctx := context.Background()

	s := session.New(pipe.Worker(), h.factory.New, session.WithObserver(h.obs))
	defer s.Destroy()

	require.NoError(t, pipe.Post(ctx, protocol.CmdRun{Code: "print(1)"}))
	err := s.Serve(ctx, pipe.Worker())
	require.ErrorIs(t, err, session.ErrPanic)
	require.True(t, h.obs.Has(session.EventPanic))
}

func TestSession_UnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	err := h.session.Handle(context.Background(), nil)
	require.ErrorIs(t, err, session.ErrUnknownCommand)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to session.State
		want     bool
	}{
		{session.Uninitialized, session.Initializing, true},
		{session.Uninitialized, session.Running, false},
		{session.Idle, session.Running, true},
		{session.Idle, session.AwaitingRepl, true},
		{session.Running, session.AwaitingRepl, false},
		{session.Running, session.Initializing, true},
		{session.AwaitingRepl, session.Idle, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			require.Equal(t, tt.want, session.CanTransition(tt.from, tt.to))
		})
	}
	require.True(t, session.Running.Busy())
	require.False(t, session.Idle.Busy())
}

func TestSession_PythonExportedModule(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}
	events := transport.NewRecorder()
	s := session.New(events, python.New(python.Config{}))
	defer s.Destroy()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Handle(ctx, protocol.CmdInitialize{}))
	events.Reset()

	require.NoError(t, s.Handle(ctx, protocol.CmdRun{
		Code:    "import a; print(a.x)",
		Exports: []protocol.File{{Name: "a.py", Content: "x=1"}},
	}))
	got := events.Events()
	requireBracketed(t, got)
	require.Contains(t, texts[protocol.EvWriteln](got), "1")

	events.Reset()
	for _, line := range []string{"def f():", "    return 1", ""} {
		require.NoError(t, s.Handle(ctx, protocol.CmdReplInput{Code: line}))
	}
	require.Empty(t, texts[protocol.EvError](events.Events()))

	events.Reset()
	require.NoError(t, s.Handle(ctx, protocol.CmdReplInput{Code: "f()"}))
	require.Contains(t, texts[protocol.EvWriteln](events.Events()), "1")
}
