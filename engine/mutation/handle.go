package mutation

import (
	"context"
	"sync"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/user"
)

// Handle is returned by every mutation entry point. It settles exactly once,
// when the server round-trip completes and the optimistic state has been
// committed or rolled back.
type Handle struct {
	inner *core.Handle
	kind  Kind

	mu     sync.Mutex
	result *user.User
	intent *Intent
}

func newHandle(kind Kind) *Handle {
	return &Handle{inner: core.NewHandle(), kind: kind}
}

// Kind returns the mutation kind this handle tracks.
func (h *Handle) Kind() Kind {
	return h.kind
}

// Done is closed once the mutation has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.inner.Done()
}

// Err returns the settled outcome; nil before settlement.
func (h *Handle) Err() error {
	return h.inner.Err()
}

// Result returns the server-confirmed user for create/update/ban/unban
// commits, nil otherwise. Only meaningful after Done.
func (h *Handle) Result() *user.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Intent returns a copy of the settled intent for rendering-layer inspection.
func (h *Handle) Intent() *Intent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.intent.clone()
}

// Wait blocks until settlement or ctx cancellation.
func (h *Handle) Wait(ctx context.Context) (*user.User, error) {
	if err := h.inner.Wait(ctx); err != nil {
		return nil, err
	}
	return h.Result(), nil
}

func (h *Handle) settle(res *user.User, intent *Intent, err error) {
	h.mu.Lock()
	h.result = res
	h.intent = intent
	h.mu.Unlock()
	h.inner.Settle(err)
}
