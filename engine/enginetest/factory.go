package enginetest

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/pyide/engine"
)

// Factory builds Runtimes and remembers them.
type Factory struct {
	// Configure, if set, adjusts each new Runtime.
	Configure func(*Runtime)
	// Err, if set, fails creation.
	Err error

	mu      sync.Mutex
	created []*Runtime
}

func (f *Factory) New(ctx context.Context) (engine.Runtime, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	rt := NewRuntime()
	if f.Configure != nil {
		f.Configure(rt)
	}
	f.mu.Lock()
	f.created = append(f.created, rt)
	f.mu.Unlock()
	return rt, nil
}

// Created returns every Runtime built so far.
func (f *Factory) Created() []*Runtime {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Runtime(nil), f.created...)
}

// Last returns the newest Runtime, or nil.
func (f *Factory) Last() *Runtime {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}
