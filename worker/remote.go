package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/pyide/observability"
	"github.com/tailored-agentic-units/pyide/protocol"
	"github.com/tailored-agentic-units/pyide/transport"
)

const terminateTimeout = 2 * time.Second

// RemoteOption configures a Remote worker.
type RemoteOption func(*remoteOptions)

type remoteOptions struct {
	client     connect.HTTPClient
	bufferSize int
	observer   observability.Observer
}

func WithHTTPClient(client connect.HTTPClient) RemoteOption {
	return func(o *remoteOptions) {
		if client != nil {
			o.client = client
		}
	}
}

func WithRemoteBufferSize(n int) RemoteOption {
	return func(o *remoteOptions) {
		o.bufferSize = n
	}
}

func WithRemoteObserver(obs observability.Observer) RemoteOption {
	return func(o *remoteOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type envelopeClient = connect.Client[protocol.Envelope, protocol.Envelope]

// Remote is a worker hosted by a Server in another process. Interrupt
// buffers cannot cross the process boundary, so SharedMemory is false.
type Remote struct {
	id        string
	post      *envelopeClient
	terminate *envelopeClient
	events    *transport.Channel[protocol.Event]
	cancel    context.CancelFunc
	observer  observability.Observer

	done   chan struct{}
	err    error
	closed sync.Once
}

var _ Worker = (*Remote)(nil)

// Dial asks the server at baseURL for a fresh session and subscribes to its
// events.
func Dial(ctx context.Context, baseURL string, opts ...RemoteOption) (*Remote, error) {
	o := remoteOptions{
		client:   http.DefaultClient,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bufferSize <= 0 {
		o.bufferSize = transport.DefaultBufferSize
	}
	baseURL = strings.TrimRight(baseURL, "/")

	spawn := connect.NewClient[protocol.Envelope, protocol.Envelope](o.client, baseURL+SpawnProcedure, withCodec())
	res, err := spawn.CallUnary(ctx, connect.NewRequest(&protocol.Envelope{Type: "spawn"}))
	if err != nil {
		return nil, fmt.Errorf("worker: spawn at %s: %w", baseURL, err)
	}

	r := &Remote{
		id:        res.Msg.ID,
		post:      connect.NewClient[protocol.Envelope, protocol.Envelope](o.client, baseURL+PostProcedure, withCodec()),
		terminate: connect.NewClient[protocol.Envelope, protocol.Envelope](o.client, baseURL+TerminateProcedure, withCodec()),
		events:    transport.NewChannel[protocol.Event](o.bufferSize),
		observer:  o.observer,
		done:      make(chan struct{}),
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	events := connect.NewClient[protocol.Envelope, protocol.Envelope](o.client, baseURL+EventsProcedure, withCodec())
	req := connect.NewRequest(&protocol.Envelope{Type: "events"})
	req.Header().Set(HeaderWorker, r.id)
	stream, err := events.CallServerStream(streamCtx, req)
	if err != nil {
		cancel()
		r.kill()
		return nil, fmt.Errorf("worker: subscribe to %s: %w", r.id, err)
	}

	r.observe(EventSpawn, observability.LevelInfo, map[string]any{"url": baseURL})
	go r.pump(streamCtx, stream)
	return r, nil
}

// RemoteFactory returns a Factory that dials baseURL for each worker.
func RemoteFactory(baseURL string, opts ...RemoteOption) Factory {
	return func(ctx context.Context) (Worker, error) {
		return Dial(ctx, baseURL, opts...)
	}
}

func (r *Remote) pump(ctx context.Context, stream *connect.ServerStreamForClient[protocol.Envelope]) {
	defer close(r.done)
	defer r.events.Close()
	defer stream.Close()

	for stream.Receive() {
		ev, err := protocol.DecodeEvent(stream.Msg())
		if err != nil {
			r.observe(EventRPC, observability.LevelWarning, map[string]any{"error": err})
			continue
		}
		if err := r.events.Send(ctx, ev); err != nil {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		r.err = err
	}
	r.observe(EventExit, observability.LevelInfo, map[string]any{"error": r.err})
}

func (r *Remote) ID() string {
	return r.id
}

func (r *Remote) Post(ctx context.Context, cmd protocol.Command) error {
	select {
	case <-r.done:
		return ErrTerminated
	default:
	}

	env, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	req := connect.NewRequest(env)
	req.Header().Set(HeaderWorker, r.id)
	if _, err := r.post.CallUnary(ctx, req); err != nil {
		return fmt.Errorf("worker: post %s: %w", env.Type, err)
	}
	return nil
}

func (r *Remote) Receive(ctx context.Context) (protocol.Event, error) {
	return r.events.Receive(ctx)
}

func (r *Remote) SharedMemory() bool {
	return false
}

// Terminate ends the remote session and closes the event stream.
func (r *Remote) Terminate() {
	r.closed.Do(func() {
		r.observe(EventTerminate, observability.LevelInfo, nil)
		r.kill()
		r.cancel()
	})
}

func (r *Remote) kill() {
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()

	req := connect.NewRequest(&protocol.Envelope{Type: "terminate"})
	req.Header().Set(HeaderWorker, r.id)
	if _, err := r.terminate.CallUnary(ctx, req); err != nil && connect.CodeOf(err) != connect.CodeNotFound {
		r.observe(EventRPC, observability.LevelWarning, map[string]any{"error": err})
	}
}

func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// Err reports why the event stream ended early, if it did. Valid after Done
// is closed.
func (r *Remote) Err() error {
	<-r.done
	if errors.Is(r.err, context.Canceled) {
		return nil
	}
	return r.err
}

func (r *Remote) observe(typ observability.EventType, level observability.Level, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["worker_id"] = r.id
	observability.Emit(context.Background(), r.observer, typ, level, "worker.Remote", data)
}
