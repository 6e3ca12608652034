package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/transport"
)

// Option configures an Adapter.
type Option func(*Adapter)

func WithConfig(cfg Config) Option {
	return func(a *Adapter) {
		a.cfg.Merge(&cfg)
	}
}

func WithObserver(obs observability.Observer) Option {
	return func(a *Adapter) {
		if obs != nil {
			a.observer = obs
		}
	}
}

// WithLoader enables best-effort package loading before scripts run.
func WithLoader(loader PackageLoader) Option {
	return func(a *Adapter) {
		a.loader = loader
	}
}

// WithCrashPredicate replaces DefaultCrashPredicate.
func WithCrashPredicate(p CrashPredicate) Option {
	return func(a *Adapter) {
		if p != nil {
			a.crashed = p
		}
	}
}

// Adapter drives one Runtime at a time on behalf of a session and reports
// everything it does as protocol events on sink.
//
// Calls other than Destroy, Reset, and SetInterrupt must not overlap.
type Adapter struct {
	factory  Factory
	sink     transport.EventSink
	cfg      Config
	loader   PackageLoader
	crashed  CrashPredicate
	observer observability.Observer

	mu        sync.Mutex
	rt        Runtime
	banner    string
	buffer    *protocol.InterruptBuffer
	destroyed bool

	streamMu  sync.Mutex
	streamCtx context.Context
	stdout    *lineWriter
	stderr    *lineWriter
}

func NewAdapter(factory Factory, sink transport.EventSink, opts ...Option) *Adapter {
	a := &Adapter{
		factory:   factory,
		sink:      sink,
		cfg:       DefaultConfig(),
		crashed:   DefaultCrashPredicate,
		observer:  observability.NoOpObserver{},
		streamCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.stdout = newLineWriter(func(s string) {
		a.emit(a.currentStreamCtx(), protocol.EvWriteln{Text: s})
	})
	a.stderr = newLineWriter(func(s string) {
		a.emit(a.currentStreamCtx(), protocol.EvError{Text: s})
	})
	return a
}

// Initialize starts the runtime if none is live and returns its banner.
// A failed attempt leaves the adapter uninitialized so the next call retries.
func (a *Adapter) Initialize(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initLocked(ctx)
}

func (a *Adapter) initLocked(ctx context.Context) (string, error) {
	if a.destroyed {
		return "", ErrDestroyed
	}
	if a.rt != nil {
		return a.banner, nil
	}
	if a.factory == nil {
		return "", ErrNoRuntime
	}

	rt, err := a.factory(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: create runtime: %w", err)
	}
	a.setStreamCtx(ctx)
	banner, err := rt.Start(ctx, Streams{Stdout: a.stdout, Stderr: a.stderr})
	if err != nil {
		rt.Close()
		return "", fmt.Errorf("engine: start runtime: %w", err)
	}

	a.rt = rt
	a.banner = banner
	a.observe(ctx, EventInitialize, observability.LevelInfo, nil)
	return banner, nil
}

// Ready reports whether a runtime is live.
func (a *Adapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rt != nil
}

func (a *Adapter) Banner() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.banner
}

// SetInterrupt installs the buffer polled while runtime calls are in flight.
// A nil buffer disables cooperative interrupts.
func (a *Adapter) SetInterrupt(buf *protocol.InterruptBuffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = buf
}

func (a *Adapter) interruptBuffer() *protocol.InterruptBuffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer
}

// RunScript announces and executes code as a standalone script, writing its
// final expression value if it has one.
func (a *Adapter) RunScript(ctx context.Context, code string) error {
	rt, err := a.runtime(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	start := time.Now()
	a.observe(ctx, EventRunStart, observability.LevelInfo, map[string]any{"code_length": len(code)})
	a.emit(ctx, protocol.EvWriteln{Text: RunBanner})
	a.loadImports(ctx, rt, code)

	res, err := invoke(ctx, a, rt, func(ctx context.Context) (Result, error) {
		return rt.Run(ctx, code)
	})
	a.observe(ctx, EventRunComplete, levelFor(err), map[string]any{
		"duration": time.Since(start),
		"error":    err,
	})
	if err != nil {
		return a.fail(ctx, err)
	}
	if res.HasValue {
		a.emit(ctx, protocol.EvWriteln{Text: a.shorten(res.Value)})
	}
	return nil
}

func (a *Adapter) loadImports(ctx context.Context, rt Runtime, code string) {
	if a.loader == nil {
		return
	}
	missing, err := invoke(ctx, a, rt, func(ctx context.Context) ([]string, error) {
		return rt.MissingImports(ctx, code)
	})
	if err != nil || len(missing) == 0 {
		return
	}

	a.observe(ctx, EventImports, observability.LevelInfo, map[string]any{"modules": missing})
	report := func(s string) {
		a.emit(ctx, protocol.EvSystem{Text: s})
	}
	if err := a.loader.Load(ctx, missing, report); err != nil {
		a.emit(ctx, protocol.EvError{Text: err.Error()})
	}
}

// PushReplLine feeds one line to the console. A syntax error is reported
// here; evaluation of a complete statement is left to AwaitResult.
func (a *Adapter) PushReplLine(ctx context.Context, line string) (Status, error) {
	rt, err := a.runtime(ctx)
	if err != nil {
		return "", a.fail(ctx, err)
	}

	res, err := invoke(ctx, a, rt, func(ctx context.Context) (PushResult, error) {
		return rt.Push(ctx, line)
	})
	if err != nil {
		return "", a.fail(ctx, err)
	}

	a.observe(ctx, EventPush, observability.LevelVerbose, map[string]any{"status": string(res.Status)})
	if res.Status == StatusSyntaxError {
		a.emit(ctx, protocol.EvError{Text: strings.TrimRight(res.Formatted, "\n")})
	}
	return res.Status, nil
}

// AwaitResult evaluates the pending statement and writes its shortened
// representation, or its formatted error.
func (a *Adapter) AwaitResult(ctx context.Context) error {
	rt, err := a.runtime(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	start := time.Now()
	res, err := invoke(ctx, a, rt, func(ctx context.Context) (Result, error) {
		return rt.Await(ctx)
	})
	a.observe(ctx, EventAwaitComplete, levelFor(err), map[string]any{
		"duration": time.Since(start),
		"error":    err,
	})
	if err != nil {
		return a.fail(ctx, err)
	}
	if res.HasValue {
		a.emit(ctx, protocol.EvWriteln{Text: a.shorten(res.Value)})
	}
	return nil
}

// Interrupt completes an interrupt the controller requested by setting the
// flag. Once the request has been delivered the flag is cleared, along with
// any accumulated console input, and a keyboard interrupt is reported.
func (a *Adapter) Interrupt(ctx context.Context) error {
	a.interruptBuffer().Reset()
	a.emit(ctx, protocol.EvError{Text: KeyboardInterrupt})
	a.observe(ctx, EventInterrupt, observability.LevelInfo, nil)

	a.mu.Lock()
	rt := a.rt
	a.mu.Unlock()
	if rt == nil {
		return nil
	}

	_, err := invoke(ctx, a, rt, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rt.ClearBuffer(ctx)
	})
	if err != nil {
		return a.fail(ctx, err)
	}
	return nil
}

// SyncExports mirrors files into the sandbox.
func (a *Adapter) SyncExports(ctx context.Context, files []protocol.File) error {
	rt, err := a.runtime(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}
	if err := SyncFS(rt.FS(), files); err != nil {
		a.emit(ctx, protocol.EvError{Text: err.Error()})
		return err
	}
	a.observe(ctx, EventSync, observability.LevelVerbose, map[string]any{"files": len(files)})
	return nil
}

// SyncFS writes every file into fsys, then removes every entry not among
// them. Applying the same set twice leaves the same listing.
func SyncFS(fsys SandboxFS, files []protocol.File) error {
	keep := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := fsys.WriteFile(f.Name, []byte(f.Content)); err != nil {
			return fmt.Errorf("engine: write %s: %w", f.Name, err)
		}
		keep[f.Name] = struct{}{}
	}

	entries, err := fsys.ReadDir(".")
	if err != nil {
		return fmt.Errorf("engine: list sandbox: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := fsys.Unlink(name); err != nil {
			return fmt.Errorf("engine: unlink %s: %w", name, err)
		}
	}
	return nil
}

// Reset closes the live runtime. The next call starts a new one.
func (a *Adapter) Reset() {
	a.mu.Lock()
	rt := a.rt
	a.rt = nil
	a.banner = ""
	a.mu.Unlock()

	if rt != nil {
		rt.Close()
	}
}

// Destroy closes the runtime and refuses further work. Safe on an adapter
// that never initialized, and on a nil adapter.
func (a *Adapter) Destroy() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	rt := a.rt
	a.rt = nil
	a.mu.Unlock()

	if rt != nil {
		rt.Close()
	}
	a.observe(context.Background(), EventDestroy, observability.LevelInfo, nil)
}

func (a *Adapter) Destroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}

func (a *Adapter) runtime(ctx context.Context) (Runtime, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.initLocked(ctx); err != nil {
		return nil, err
	}
	return a.rt, nil
}

// fail reports err. A crash additionally rebuilds the runtime and is
// returned wrapped in ErrCrashed. Nothing is reported once the caller has
// gone away.
func (a *Adapter) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil || a.Destroyed() {
		return err
	}
	a.emit(ctx, protocol.EvError{Text: errorText(err)})
	if !a.crashed(err) {
		return err
	}
	a.rebuild(ctx, err)
	return fmt.Errorf("%w: %w", ErrCrashed, err)
}

func (a *Adapter) rebuild(ctx context.Context, cause error) {
	a.observe(ctx, EventCrash, observability.LevelError, map[string]any{"error": cause})
	a.emit(ctx, protocol.EvSystem{Text: CrashNotice})
	a.Reset()

	banner, err := a.Initialize(ctx)
	if err != nil {
		a.observe(ctx, EventRecover, observability.LevelError, map[string]any{"error": err})
		a.emit(ctx, protocol.EvError{Text: errorText(err)})
		return
	}
	a.observe(ctx, EventRecover, observability.LevelInfo, nil)
	a.emit(ctx, protocol.EvWriteln{Text: banner})
}

// invoke runs one runtime call with the interrupt watcher armed, then
// flushes partial stream lines so they precede the call's own events.
func invoke[T any](ctx context.Context, a *Adapter, rt Runtime, fn func(context.Context) (T, error)) (T, error) {
	a.setStreamCtx(ctx)
	stop := a.watch(ctx, rt)
	v, err := fn(ctx)
	stop()
	a.stdout.Flush()
	a.stderr.Flush()
	return v, err
}

// watch polls the interrupt buffer and forwards a request to rt.
func (a *Adapter) watch(ctx context.Context, rt Runtime) func() {
	buf := a.interruptBuffer()
	if buf == nil {
		return func() {}
	}

	interval := a.cfg.PollInterval.Std()
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if buf.Consume() {
					err := rt.Interrupt()
					a.observe(ctx, EventDelivered, levelFor(err), map[string]any{"error": err})
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *Adapter) shorten(s string) string {
	return Shorten(s, a.cfg.ReprLimit, a.cfg.ReprSeparator)
}

func (a *Adapter) emit(ctx context.Context, ev protocol.Event) {
	if a.sink == nil {
		return
	}
	a.sink.Send(ctx, ev)
}

func (a *Adapter) setStreamCtx(ctx context.Context) {
	a.streamMu.Lock()
	defer a.streamMu.Unlock()
	a.streamCtx = ctx
}

func (a *Adapter) currentStreamCtx() context.Context {
	a.streamMu.Lock()
	defer a.streamMu.Unlock()
	return a.streamCtx
}

func (a *Adapter) observe(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, a.observer, typ, level, "engine.Adapter", data)
}

func levelFor(err error) observability.Level {
	if err != nil {
		return observability.LevelWarning
	}
	return observability.LevelInfo
}
