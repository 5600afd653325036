package core

import (
	"context"
	"sync"
)

// Handle tracks one asynchronous operation. Entry points hand it back
// immediately; the operation settles it exactly once when the round-trip
// completes.
type Handle struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

func NewHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Settle records the outcome. Settling twice is a programming error and the
// second call is ignored.
func (h *Handle) Settle(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.err = err
	close(h.done)
}

// Done is closed once the operation has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the settled outcome. It is only meaningful after Done is
// closed; before that it reports nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the operation settles or ctx is canceled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
