package protocol

import "sync/atomic"

// Interrupt buffer values. 2 mirrors the host runtime's SIGINT number; 1 is
// reserved.
const (
	InterruptNone      byte = 0
	InterruptRequested byte = 2
)

// InterruptBuffer is the single byte shared between a controller and an
// in-process worker. The controller writes it, the engine polls it while
// user code runs. It is a best-effort cancellation flag, not a lock.
//
// All methods are safe on a nil receiver, which models a host without shared
// memory.
type InterruptBuffer struct {
	value atomic.Uint32
}

// NewInterruptBuffer returns a buffer holding InterruptNone.
func NewInterruptBuffer() *InterruptBuffer {
	return &InterruptBuffer{}
}

// Set stores v.
func (b *InterruptBuffer) Set(v byte) {
	if b == nil {
		return
	}
	b.value.Store(uint32(v))
}

// Load returns the current value.
func (b *InterruptBuffer) Load() byte {
	if b == nil {
		return InterruptNone
	}
	return byte(b.value.Load())
}

// Reset stores InterruptNone.
func (b *InterruptBuffer) Reset() {
	b.Set(InterruptNone)
}

// Request stores InterruptRequested.
func (b *InterruptBuffer) Request() {
	b.Set(InterruptRequested)
}

// Consume reports whether an interrupt was requested and clears it in the
// same atomic step.
func (b *InterruptBuffer) Consume() bool {
	if b == nil {
		return false
	}
	return b.value.CompareAndSwap(uint32(InterruptRequested), uint32(InterruptNone))
}
