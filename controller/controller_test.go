package controller_test

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/pyide/controller"
	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/engine/enginetest"
	"github.com/tailored-agentic-units/pyide/engine/python"
	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/transport"
	"github.com/tailored-agentic-units/pyide/worker"
)

const timeout = 5 * time.Second

type entry struct {
	kind string
	text string
}

type transcript struct {
	mu      sync.Mutex
	entries []entry
}

func (tr *transcript) add(kind, text string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.entries = append(tr.entries, entry{kind, text})
}

func (tr *transcript) callbacks() controller.Callbacks {
	return controller.Callbacks{
		Write:   func(s string) { tr.add("write", s) },
		Writeln: func(s string) { tr.add("writeln", s) },
		Error:   func(s string) { tr.add("error", s) },
		System:  func(s string) { tr.add("system", s) },
		Lock:    func() { tr.add("lock", "") },
		Unlock:  func() { tr.add("unlock", "") },
	}
}

func (tr *transcript) snapshot() []entry {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]entry(nil), tr.entries...)
}

func (tr *transcript) reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.entries = nil
}

func (tr *transcript) has(kind, substr string) bool {
	for _, e := range tr.snapshot() {
		if e.kind == kind && strings.Contains(e.text, substr) {
			return true
		}
	}
	return false
}

func (tr *transcript) count(kind string) int {
	n := 0
	for _, e := range tr.snapshot() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (tr *transcript) waitFor(t *testing.T, kind, substr string) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.has(kind, substr) }, timeout, 5*time.Millisecond,
		"no %s event containing %q in %v", kind, substr, tr.snapshot())
}

type harness struct {
	ctrl    *controller.Controller
	tr      *transcript
	factory *enginetest.Factory
	obs     *observability.Recorder
}

func newHarness(t *testing.T, configure func(*enginetest.Runtime), opts ...controller.Option) *harness {
	t.Helper()
	h := &harness{
		tr:      &transcript{},
		factory: &enginetest.Factory{Configure: configure},
		obs:     observability.NewRecorder(),
	}
	return h.start(t, worker.LocalFactory(h.factory.New), opts...)
}

func (h *harness) start(t *testing.T, spawn worker.Factory, opts ...controller.Option) *harness {
	t.Helper()
	opts = append([]controller.Option{controller.WithObserver(h.obs)}, opts...)
	ctrl, err := controller.New(context.Background(), spawn, h.tr.callbacks(), opts...)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	h.ctrl = ctrl
	h.wait(t)
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, h.ctrl.Wait(ctx))
}

func TestNew_BootsWorker(t *testing.T) {
	h := newHarness(t, nil)

	require.False(t, h.ctrl.Busy())
	require.Equal(t, []entry{
		{"writeln", "Python 3.12.0 (enginetest)"},
		{"write", engine.PS1},
		{"unlock", ""},
	}, h.tr.snapshot())
	require.True(t, h.obs.Has(controller.EventSpawn))
}

func TestRun_PrintsAndBrackets(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.reset()

	require.NoError(t, h.ctrl.Run(context.Background(), "print(1+1)"))
	h.wait(t)

	got := h.tr.snapshot()
	require.Equal(t, entry{"lock", ""}, got[0])
	require.Equal(t, entry{"unlock", ""}, got[len(got)-1])
	require.Equal(t, 1, h.tr.count("lock"))
	require.Equal(t, 1, h.tr.count("unlock"))
	require.True(t, h.tr.has("writeln", "2"))
}

func TestExecute_DivisionByZero(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.reset()
	ctx := context.Background()

	require.NoError(t, h.ctrl.Execute(ctx, "1/0"))
	h.tr.waitFor(t, "error", "ZeroDivisionError: division by zero")
	h.wait(t)

	require.NoError(t, h.ctrl.Execute(ctx, "40+2"))
	h.tr.waitFor(t, "writeln", "42")
}

func TestCommands_ProcessedInOrderOneAtATime(t *testing.T) {
	var active, peak atomic.Int32
	var mu sync.Mutex
	var order []string

	h := newHarness(t, func(rt *enginetest.Runtime) {
		rt.Eval = func(ctx context.Context, source string, stdout io.Writer) (engine.Result, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			mu.Lock()
			order = append(order, source)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			return enginetest.Evaluate(ctx, source, stdout)
		}
	})
	h.tr.reset()
	ctx := context.Background()

	want := []string{"print(1)", "print(2)", "print(3)", "print(4)", "print(5)"}
	for _, code := range want {
		require.NoError(t, h.ctrl.Run(ctx, code))
	}
	require.Eventually(t, func() bool { return h.tr.count("unlock") == len(want) }, timeout, 5*time.Millisecond)

	require.EqualValues(t, 1, peak.Load())
	mu.Lock()
	require.Equal(t, want, order)
	mu.Unlock()
}

func TestStop_ClearsContinuation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Execute(ctx, "def f():"))
	h.tr.waitFor(t, "write", engine.PS2)

	h.tr.reset()
	require.NoError(t, h.ctrl.Stop(ctx))
	h.tr.waitFor(t, "error", "KeyboardInterrupt")

	require.NoError(t, h.ctrl.Execute(ctx, "1+2"))
	h.tr.waitFor(t, "writeln", "3")
	require.False(t, h.tr.has("write", engine.PS2))
}

func TestStop_InterruptsRunningCode(t *testing.T) {
	var rt *enginetest.Runtime
	h := newHarness(t, func(r *enginetest.Runtime) {
		rt = r
		r.Eval = enginetest.BlockUntilInterrupt(r)
	})
	h.tr.reset()
	ctx := context.Background()

	require.NoError(t, h.ctrl.Run(ctx, "while True: pass"))
	h.tr.waitFor(t, "lock", "")
	require.True(t, h.ctrl.Busy())

	require.NoError(t, h.ctrl.Stop(ctx))
	h.wait(t)
	h.tr.waitFor(t, "error", "KeyboardInterrupt")
	require.False(t, rt.Closed())
	require.Len(t, h.factory.Created(), 1)
}

// isolated hides a worker's shared memory, as a remote worker would.
type isolated struct {
	worker.Worker
}

func (isolated) SharedMemory() bool { return false }

func TestStop_WithoutSharedMemoryRespawns(t *testing.T) {
	h := &harness{
		tr:      &transcript{},
		factory: &enginetest.Factory{},
		obs:     observability.NewRecorder(),
	}
	local := worker.LocalFactory(h.factory.New)
	var posted []protocol.Command
	var mu sync.Mutex
	h.start(t, func(ctx context.Context) (worker.Worker, error) {
		w, err := local(ctx)
		return &recording{isolated: isolated{w}, mu: &mu, posted: &posted}, err
	})
	h.tr.reset()

	require.NoError(t, h.ctrl.Stop(context.Background()))
	h.wait(t)

	require.Equal(t, entry{"system", engine.NoSharedMemoryNotice}, h.tr.snapshot()[0])
	h.tr.waitFor(t, "writeln", "enginetest")
	require.Len(t, h.factory.Created(), 2)
	require.True(t, h.factory.Created()[0].Closed())

	mu.Lock()
	defer mu.Unlock()
	for _, cmd := range posted {
		if init, ok := cmd.(protocol.CmdInitialize); ok {
			require.Nil(t, init.Interrupt)
		}
		require.NotEqual(t, protocol.CommandReplClear, cmd.CommandType())
	}
}

type recording struct {
	isolated
	mu     *sync.Mutex
	posted *[]protocol.Command
}

func (r *recording) Post(ctx context.Context, cmd protocol.Command) error {
	r.mu.Lock()
	*r.posted = append(*r.posted, cmd)
	r.mu.Unlock()
	return r.Worker.Post(ctx, cmd)
}

func TestRestart_ReplacesWorker(t *testing.T) {
	h := newHarness(t, nil)
	h.tr.reset()

	require.NoError(t, h.ctrl.Restart(context.Background()))
	h.wait(t)

	got := h.tr.snapshot()
	require.Equal(t, entry{"system", engine.RestartNotice}, got[0])
	require.Equal(t, entry{"writeln", "Python 3.12.0 (enginetest)"}, got[1])
	require.Len(t, h.factory.Created(), 2)
	require.True(t, h.factory.Created()[0].Closed())
	require.True(t, h.obs.Has(controller.EventRestart))
}

func TestRestart_WhileBusy(t *testing.T) {
	h := newHarness(t, func(r *enginetest.Runtime) {
		r.Eval = enginetest.BlockUntilInterrupt(r)
	})
	ctx := context.Background()

	require.NoError(t, h.ctrl.Run(ctx, "while True: pass"))
	h.tr.waitFor(t, "lock", "")

	h.tr.reset()
	require.NoError(t, h.ctrl.Restart(ctx))
	h.wait(t)

	require.Len(t, h.factory.Created(), 2)
	require.True(t, h.factory.Created()[0].Closed())
	require.False(t, h.tr.has("error", "runtime exited"))
}

// scripted is a worker fed by the test.
type scripted struct {
	pipe *transport.Pipe
	done chan struct{}
	once sync.Once
}

func newScripted() *scripted {
	return &scripted{pipe: transport.NewPipe(16), done: make(chan struct{})}
}

func (s *scripted) ID() string            { return "scripted" }
func (s *scripted) SharedMemory() bool    { return true }
func (s *scripted) Done() <-chan struct{} { return s.done }

func (s *scripted) Post(ctx context.Context, cmd protocol.Command) error {
	return s.pipe.Post(ctx, cmd)
}

func (s *scripted) Receive(ctx context.Context) (protocol.Event, error) {
	return s.pipe.Next(ctx)
}

func (s *scripted) Terminate() {
	s.once.Do(func() {
		s.pipe.Close()
		close(s.done)
	})
}

func (s *scripted) emit(t *testing.T, events ...protocol.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, s.pipe.Worker().Send(context.Background(), ev))
	}
}

func TestDispatch_IgnoresUnknownEvents(t *testing.T) {
	w := newScripted()
	h := &harness{tr: &transcript{}, obs: observability.NewRecorder()}
	ctrl, err := controller.New(context.Background(), func(context.Context) (worker.Worker, error) {
		return w, nil
	}, h.tr.callbacks(), controller.WithObserver(h.obs))
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	require.True(t, ctrl.Busy())

	w.emit(t,
		protocol.EvUnknown{Type: "flush", Text: "x"},
		protocol.EvWrite{Text: "a"},
		protocol.EvUnlock{},
	)
	h.ctrl = ctrl
	h.wait(t)

	require.Equal(t, []entry{{"write", "a"}, {"unlock", ""}}, h.tr.snapshot())
	require.True(t, h.obs.Has(controller.EventIgnored))
}

func TestWorkerLost_NotResurrected(t *testing.T) {
	var spawned atomic.Int32
	var first *scripted
	h := &harness{tr: &transcript{}, obs: observability.NewRecorder()}
	ctrl, err := controller.New(context.Background(), func(context.Context) (worker.Worker, error) {
		w := newScripted()
		if spawned.Add(1) == 1 {
			first = w
		}
		return w, nil
	}, h.tr.callbacks(), controller.WithObserver(h.obs))
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	h.ctrl = ctrl

	first.emit(t, protocol.EvLock{})
	first.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.ErrorIs(t, ctrl.Wait(ctx), controller.ErrWorkerLost)
	require.True(t, h.obs.Has(controller.EventWorkerLost))
	require.EqualValues(t, 1, spawned.Load())

	ctx2 := context.Background()
	require.ErrorIs(t, ctrl.Run(ctx2, "1"), controller.ErrWorkerLost)
	require.ErrorIs(t, ctrl.Execute(ctx2, "1"), controller.ErrWorkerLost)
	require.ErrorIs(t, ctrl.Stop(ctx2), controller.ErrWorkerLost)

	require.NoError(t, ctrl.Restart(ctx2))
	require.EqualValues(t, 2, spawned.Load())
	require.NoError(t, ctrl.Run(ctx2, "1"))
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Close()
	h.ctrl.Close()

	require.True(t, h.factory.Last().Closed())
	require.ErrorIs(t, h.ctrl.Run(context.Background(), "1"), controller.ErrClosed)
	require.ErrorIs(t, h.ctrl.Restart(context.Background()), controller.ErrClosed)
	require.False(t, h.obs.Has(controller.EventWorkerLost))
}

func TestNew_SpawnFailure(t *testing.T) {
	boom := errors.New("no worker")
	_, err := controller.New(context.Background(), func(context.Context) (worker.Worker, error) {
		return nil, boom
	}, controller.Callbacks{})
	require.ErrorIs(t, err, boom)
}

func TestRun_SendsExportSnapshot(t *testing.T) {
	files := []protocol.File{{Name: "a.py", Content: "x=1"}}
	calls := 0
	src := controller.FileSourceFunc(func() []protocol.File {
		calls++
		return files
	})
	h := newHarness(t, nil, controller.WithFileSource(src))

	require.NoError(t, h.ctrl.Run(context.Background(), "print(1)"))
	h.wait(t)

	content, ok := h.factory.Last().Files().Content("a.py")
	require.True(t, ok)
	require.Equal(t, "x=1", content)
	require.Equal(t, 1, calls)
}

func TestRun_ImportsExportedModule(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}

	h := &harness{tr: &transcript{}, obs: observability.NewRecorder()}
	src := controller.FileSourceFunc(func() []protocol.File {
		return []protocol.File{{Name: "a.py", Content: "x=1"}}
	})
	h.start(t, worker.LocalFactory(python.New(python.DefaultConfig())), controller.WithFileSource(src))
	h.tr.reset()

	require.NoError(t, h.ctrl.Run(context.Background(), "import a; print(a.x)"))
	h.wait(t)
	require.True(t, h.tr.has("writeln", "1"), "%v", h.tr.snapshot())
}

func TestStop_ClearsContinuationOnPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}

	h := &harness{tr: &transcript{}, obs: observability.NewRecorder()}
	h.start(t, worker.LocalFactory(python.New(python.DefaultConfig())))
	ctx := context.Background()

	require.NoError(t, h.ctrl.Execute(ctx, "def f():"))
	h.tr.waitFor(t, "write", engine.PS2)

	h.tr.reset()
	require.NoError(t, h.ctrl.Stop(ctx))
	h.tr.waitFor(t, "error", "KeyboardInterrupt")

	require.NoError(t, h.ctrl.Execute(ctx, "40+2"))
	h.tr.waitFor(t, "writeln", "42")
	require.False(t, h.tr.has("write", engine.PS2), "%v", h.tr.snapshot())
	require.False(t, h.tr.has("error", "IndentationError"), "%v", h.tr.snapshot())
}

func TestExecute_CompoundStatementOnPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not on PATH")
	}

	h := &harness{tr: &transcript{}, obs: observability.NewRecorder()}
	h.start(t, worker.LocalFactory(python.New(python.DefaultConfig())))
	ctx := context.Background()

	require.NoError(t, h.ctrl.Execute(ctx, "for i in range(2):\n    print(i)"))
	h.tr.waitFor(t, "write", engine.PS2)

	require.NoError(t, h.ctrl.Execute(ctx, ""))
	h.tr.waitFor(t, "writeln", "1")
	require.True(t, h.tr.has("writeln", "0"), "%v", h.tr.snapshot())
}
