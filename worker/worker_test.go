package worker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/pyide/engine"
	"github.com/tailored-agentic-units/pyide/engine/enginetest"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/transport"
	"github.com/tailored-agentic-units/pyide/worker"
)

// untilUnlock reads events up to and including the next unlock.
func untilUnlock(t *testing.T, w worker.Worker) []protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []protocol.Event
	for {
		ev, err := w.Receive(ctx)
		require.NoError(t, err)
		out = append(out, ev)
		if _, ok := ev.(protocol.EvUnlock); ok {
			return out
		}
	}
}

func waitDone(t *testing.T, w worker.Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not end")
	}
}

func drainClosed(t *testing.T, w worker.Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, err := w.Receive(ctx)
		if err != nil {
			require.ErrorIs(t, err, transport.ErrClosed)
			return
		}
	}
}

func TestLocal_InitializeAndRun(t *testing.T) {
	factory := &enginetest.Factory{}
	w := worker.NewLocal(factory.New)
	t.Cleanup(w.Terminate)

	require.True(t, w.SharedMemory())
	require.NotEmpty(t, w.ID())

	ctx := context.Background()
	require.NoError(t, w.Post(ctx, protocol.CmdInitialize{Interrupt: protocol.NewInterruptBuffer()}))
	boot := untilUnlock(t, w)
	require.Equal(t, protocol.EvWriteln{Text: "Python 3.12.0 (enginetest)"}, boot[0])
	require.Equal(t, protocol.EvWrite{Text: engine.PS1}, boot[1])

	require.NoError(t, w.Post(ctx, protocol.CmdRun{Code: "print(7)"}))
	run := untilUnlock(t, w)
	require.Equal(t, protocol.EvLock{}, run[0])
	require.Contains(t, run, protocol.Event(protocol.EvWriteln{Text: engine.RunBanner}))
	require.Contains(t, run, protocol.Event(protocol.EvWriteln{Text: "7"}))
}

func TestLocal_TerminateMidRun(t *testing.T) {
	factory := &enginetest.Factory{}
	factory.Configure = func(rt *enginetest.Runtime) {
		rt.Eval = enginetest.BlockUntilInterrupt(rt)
	}
	w := worker.NewLocal(factory.New)

	ctx := context.Background()
	require.NoError(t, w.Post(ctx, protocol.CmdInitialize{}))
	untilUnlock(t, w)
	require.NoError(t, w.Post(ctx, protocol.CmdRun{Code: "while True: pass"}))

	require.Eventually(t, func() bool {
		rt := factory.Last()
		return rt != nil && len(rt.Calls()) > 1
	}, 5*time.Second, 10*time.Millisecond)

	w.Terminate()
	w.Terminate()
	waitDone(t, w)
	drainClosed(t, w)
	require.True(t, factory.Last().Closed())
	require.Error(t, w.Post(ctx, protocol.CmdReplClear{}))
}

func newServer(t *testing.T, factory *enginetest.Factory) (*worker.Server, *httptest.Server) {
	t.Helper()
	srv := worker.NewServer(worker.LocalFactory(factory.New))
	path, handler := srv.Handler()
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func TestRemote_RoundTrip(t *testing.T) {
	factory := &enginetest.Factory{}
	_, ts := newServer(t, factory)

	ctx := context.Background()
	w, err := worker.Dial(ctx, ts.URL, worker.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	t.Cleanup(w.Terminate)

	require.False(t, w.SharedMemory())

	require.NoError(t, w.Post(ctx, protocol.CmdInitialize{}))
	boot := untilUnlock(t, w)
	require.Equal(t, protocol.EvWrite{Text: engine.PS1}, boot[len(boot)-2])

	require.NoError(t, w.Post(ctx, protocol.CmdReplInput{Code: "1+2"}))
	repl := untilUnlock(t, w)
	require.Equal(t, protocol.EvWriteln{Text: "1+2"}, repl[0])
	require.Contains(t, repl, protocol.Event(protocol.EvWriteln{Text: "3"}))
}

func TestRemote_SpawnReplacesPrevious(t *testing.T) {
	factory := &enginetest.Factory{}
	_, ts := newServer(t, factory)

	ctx := context.Background()
	first, err := worker.Dial(ctx, ts.URL, worker.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	t.Cleanup(first.Terminate)

	second, err := worker.Dial(ctx, ts.URL, worker.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	t.Cleanup(second.Terminate)
	require.NotEqual(t, first.ID(), second.ID())

	waitDone(t, first)
	drainClosed(t, first)
	require.Error(t, first.Post(ctx, protocol.CmdInitialize{}))

	require.NoError(t, second.Post(ctx, protocol.CmdInitialize{}))
	untilUnlock(t, second)
}

func TestRemote_Terminate(t *testing.T) {
	factory := &enginetest.Factory{}
	_, ts := newServer(t, factory)

	ctx := context.Background()
	w, err := worker.Dial(ctx, ts.URL, worker.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	require.NoError(t, w.Post(ctx, protocol.CmdInitialize{}))
	untilUnlock(t, w)

	w.Terminate()
	waitDone(t, w)
	require.NoError(t, w.Err())
	require.True(t, factory.Last().Closed())
	require.ErrorIs(t, w.Post(ctx, protocol.CmdReplClear{}), worker.ErrTerminated)
}

func TestDial_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := worker.Dial(context.Background(), ts.URL)
	require.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	factory := &enginetest.Factory{}

	tests := []struct {
		name    string
		cfg     worker.Config
		wantErr error
	}{
		{name: "default is local", cfg: worker.Config{}},
		{name: "local", cfg: worker.Config{Mode: worker.ModeLocal}},
		{name: "remote", cfg: worker.Config{Mode: worker.ModeRemote, URL: "http://127.0.0.1:1"}},
		{name: "remote without url", cfg: worker.Config{Mode: worker.ModeRemote}, wantErr: worker.ErrInvalidConfig},
		{name: "unknown mode", cfg: worker.Config{Mode: "thread"}, wantErr: worker.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := worker.NewFactory(&tt.cfg, factory.New, nil)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, f)
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := worker.DefaultConfig()
	cfg.Merge(&worker.Config{Mode: worker.ModeRemote, URL: "http://w"})

	require.Equal(t, worker.ModeRemote, cfg.Mode)
	require.Equal(t, "http://w", cfg.URL)
	require.Equal(t, transport.DefaultBufferSize, cfg.BufferSize)
}
