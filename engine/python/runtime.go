// Package python runs user code in a CPython subprocess.
//
// The subprocess executes an embedded host script. Requests travel as JSON
// lines on fd 3 and host messages come back as JSON lines on fd 4, so user
// output written through sys.stdout stays in order with call results. Raw
// writes to fd 1 and fd 2 are drained separately.
package python

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tailored-agentic-units/pyide/engine"
)

//go:embed host.py
var hostScript string

const exitWait = time.Second

type request struct {
	Op   string `json:"op"`
	Code string `json:"code"`
	Line string `json:"line"`
}

type hostError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Formatted string `json:"formatted"`
}

type hostMessage struct {
	Kind      string     `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Banner    string     `json:"banner,omitempty"`
	OK        bool       `json:"ok"`
	Status    string     `json:"status,omitempty"`
	Formatted string     `json:"formatted,omitempty"`
	Value     *string    `json:"value,omitempty"`
	Modules   []string   `json:"modules,omitempty"`
	Error     *hostError `json:"error,omitempty"`
}

func (m hostMessage) err() error {
	if m.OK {
		return nil
	}
	if m.Error == nil {
		return &engine.ExecError{Type: "ProtocolError", Message: "host reported failure without detail"}
	}
	return &engine.ExecError{
		Type:      m.Error.Type,
		Message:   m.Error.Message,
		Formatted: m.Error.Formatted,
	}
}

func (m hostMessage) result() engine.Result {
	if m.Value == nil {
		return engine.Result{}
	}
	return engine.Result{Value: *m.Value, HasValue: true}
}

// Runtime is one CPython subprocess.
type Runtime struct {
	cfg Config

	mu       sync.Mutex
	cmd      *exec.Cmd
	dir      string
	ownsDir  bool
	requests *os.File
	enc      *json.Encoder
	results  chan hostMessage
	exited   chan struct{}
	waitErr  error

	closeOnce sync.Once
}

var _ engine.Runtime = (*Runtime)(nil)

// New returns a factory producing runtimes configured by cfg merged onto
// DefaultConfig.
func New(cfg Config) engine.Factory {
	merged := DefaultConfig()
	merged.Merge(&cfg)
	return func(ctx context.Context) (engine.Runtime, error) {
		return &Runtime{cfg: merged}, nil
	}
}

// Start spawns the interpreter and waits for its banner.
func (r *Runtime) Start(ctx context.Context, streams engine.Streams) (string, error) {
	if err := r.spawn(streams); err != nil {
		r.Close()
		return "", err
	}

	timeout := r.cfg.StartTimeout.Std()
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-r.results:
		if !ok {
			err := r.exitError()
			r.Close()
			return "", err
		}
		if msg.Kind != "ready" {
			r.Close()
			return "", fmt.Errorf("python: unexpected %q before ready", msg.Kind)
		}
		return msg.Banner, nil
	case <-timer.C:
		r.Close()
		return "", fmt.Errorf("python: interpreter not ready after %s", timeout)
	case <-ctx.Done():
		r.Close()
		return "", ctx.Err()
	}
}

func (r *Runtime) spawn(streams engine.Streams) error {
	stdout, stderr := streams.Stdout, streams.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	if r.cfg.Dir != "" {
		if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
			return fmt.Errorf("python: sandbox dir: %w", err)
		}
		r.dir = r.cfg.Dir
	} else {
		dir, err := os.MkdirTemp("", "pyide-sandbox-*")
		if err != nil {
			return fmt.Errorf("python: sandbox dir: %w", err)
		}
		r.dir = dir
		r.ownsDir = true
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return err
	}
	evR, evW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(reqR, reqW, evR, evW)
		return err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(reqR, reqW, evR, evW, outR, outW)
		return err
	}

	cmd := exec.Command(r.cfg.Python, "-u", "-c", hostScript)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(),
		"PYTHONUNBUFFERED=1",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONIOENCODING=utf-8",
	)
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.ExtraFiles = []*os.File{reqR, evW}
	configureProcess(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(reqR, reqW, evR, evW, outR, outW, errR, errW)
		return fmt.Errorf("python: start %s: %w", r.cfg.Python, err)
	}
	closeAll(reqR, evW, outW, errW)

	r.mu.Lock()
	r.cmd = cmd
	r.requests = reqW
	r.enc = json.NewEncoder(reqW)
	r.results = make(chan hostMessage, 1)
	r.exited = make(chan struct{})
	r.mu.Unlock()

	go drain(outR, stdout)
	go drain(errR, stderr)
	go r.read(evR, stdout, stderr)
	go func() {
		r.waitErr = cmd.Wait()
		close(r.exited)
	}()
	return nil
}

func (r *Runtime) read(f *os.File, stdout, stderr io.Writer) {
	defer close(r.results)
	defer f.Close()

	dec := json.NewDecoder(f)
	for {
		var msg hostMessage
		if err := dec.Decode(&msg); err != nil {
			return
		}
		switch msg.Kind {
		case "stdout":
			io.WriteString(stdout, msg.Text)
		case "stderr":
			io.WriteString(stderr, msg.Text)
		default:
			r.results <- msg
		}
	}
}

func drain(f *os.File, w io.Writer) {
	defer f.Close()
	io.Copy(w, f)
}

// call sends one request and waits for its result. Cancelling ctx kills the
// interpreter.
func (r *Runtime) call(ctx context.Context, req request) (hostMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return hostMessage{}, fmt.Errorf("%w: not started", engine.ErrRuntimeExited)
	}
	select {
	case <-r.exited:
		return hostMessage{}, r.exitError()
	default:
	}

	if err := r.enc.Encode(req); err != nil {
		return hostMessage{}, r.exitError()
	}

	select {
	case msg, ok := <-r.results:
		if !ok {
			return hostMessage{}, r.exitError()
		}
		return msg, nil
	case <-ctx.Done():
		go r.Close()
		return hostMessage{}, ctx.Err()
	}
}

func (r *Runtime) exitError() error {
	if r.exited == nil {
		return engine.ErrRuntimeExited
	}
	select {
	case <-r.exited:
		if r.waitErr != nil {
			return fmt.Errorf("%w: %v", engine.ErrRuntimeExited, r.waitErr)
		}
		return engine.ErrRuntimeExited
	case <-time.After(exitWait):
		return engine.ErrRuntimeExited
	}
}

func (r *Runtime) Run(ctx context.Context, code string) (engine.Result, error) {
	msg, err := r.call(ctx, request{Op: "run", Code: code})
	if err != nil {
		return engine.Result{}, err
	}
	if err := msg.err(); err != nil {
		return engine.Result{}, err
	}
	return msg.result(), nil
}

func (r *Runtime) Push(ctx context.Context, line string) (engine.PushResult, error) {
	msg, err := r.call(ctx, request{Op: "push", Line: line})
	if err != nil {
		return engine.PushResult{}, err
	}
	if err := msg.err(); err != nil {
		return engine.PushResult{}, err
	}
	return engine.PushResult{Status: engine.Status(msg.Status), Formatted: msg.Formatted}, nil
}

func (r *Runtime) Await(ctx context.Context) (engine.Result, error) {
	msg, err := r.call(ctx, request{Op: "await"})
	if err != nil {
		return engine.Result{}, err
	}
	if err := msg.err(); err != nil {
		return engine.Result{}, err
	}
	return msg.result(), nil
}

func (r *Runtime) ClearBuffer(ctx context.Context) error {
	msg, err := r.call(ctx, request{Op: "clear"})
	if err != nil {
		return err
	}
	return msg.err()
}

func (r *Runtime) MissingImports(ctx context.Context, code string) ([]string, error) {
	msg, err := r.call(ctx, request{Op: "imports", Code: code})
	if err != nil {
		return nil, err
	}
	if err := msg.err(); err != nil {
		return nil, err
	}
	return msg.Modules, nil
}

// Interrupt sends SIGINT. The host raises KeyboardInterrupt only while user
// code is running.
func (r *Runtime) Interrupt() error {
	cmd := r.process()
	if cmd == nil {
		return errors.New("python: not started")
	}
	return cmd.Process.Signal(os.Interrupt)
}

func (r *Runtime) FS() engine.SandboxFS {
	return dirFS{root: r.dir}
}

// Dir is the sandbox directory.
func (r *Runtime) Dir() string {
	return r.dir
}

// Close kills the interpreter and removes a private sandbox directory.
// Safe to call concurrently with an in-flight call.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		cmd := r.process()
		if cmd != nil {
			killProcess(cmd)
			<-r.exited
		}
		if r.requests != nil {
			r.requests.Close()
		}
		if r.ownsDir && r.dir != "" {
			os.RemoveAll(r.dir)
		}
	})
	return nil
}

func (r *Runtime) process() *exec.Cmd {
	if r.exited == nil {
		return nil
	}
	return r.cmd
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}
