// Package remotetest provides a scripted remote.API for engine tests. Every
// call blocks until the test settles it, so tests control interleaving of
// in-flight requests deterministically.
package remotetest

import (
	"context"
	"testing"
	"time"

	"github.com/userdesk/userdesk/engine/core"
	"github.com/userdesk/userdesk/engine/remote"
	"github.com/userdesk/userdesk/engine/user"
)

const (
	MethodFetchPage  = "FetchPage"
	MethodCreateUser = "CreateUser"
	MethodUpdateUser = "UpdateUser"
	MethodDeleteUser = "DeleteUser"
	MethodSetBan     = "SetBan"
)

// Call is one in-flight API invocation awaiting settlement.
type Call struct {
	Method string
	Page   remote.PageRequest
	Draft  *user.Draft
	ID     core.ID
	Patch  *user.Patch
	Reason *string

	done chan struct{}
	page *remote.PageResult
	usr  *user.User
	err  error
}

// SucceedPage settles a FetchPage call.
func (c *Call) SucceedPage(res *remote.PageResult) {
	c.page = res
	close(c.done)
}

// SucceedUser settles a CreateUser, UpdateUser or SetBan call.
func (c *Call) SucceedUser(u *user.User) {
	c.usr = u
	close(c.done)
}

// Succeed settles a DeleteUser call.
func (c *Call) Succeed() {
	close(c.done)
}

// Fail settles the call with err.
func (c *Call) Fail(err error) {
	c.err = err
	close(c.done)
}

// Fake implements remote.API by parking every call on a channel the test
// drains.
type Fake struct {
	calls chan *Call
}

func NewFake() *Fake {
	return &Fake{calls: make(chan *Call, 64)}
}

// Expect receives the next parked call, failing the test after a timeout.
func (f *Fake) Expect(t *testing.T) *Call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an API call")
		return nil
	}
}

// ExpectNone asserts that no call arrives within a short window.
func (f *Fake) ExpectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected %s call", c.Method)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *Fake) park(ctx context.Context, c *Call) error {
	c.done = make(chan struct{})
	f.calls <- c
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) FetchPage(ctx context.Context, req remote.PageRequest) (*remote.PageResult, error) {
	c := &Call{Method: MethodFetchPage, Page: req}
	if err := f.park(ctx, c); err != nil {
		return nil, err
	}
	return c.page, nil
}

func (f *Fake) CreateUser(ctx context.Context, draft *user.Draft) (*user.User, error) {
	c := &Call{Method: MethodCreateUser, Draft: draft}
	if err := f.park(ctx, c); err != nil {
		return nil, err
	}
	return c.usr, nil
}

func (f *Fake) UpdateUser(ctx context.Context, id core.ID, patch *user.Patch) (*user.User, error) {
	c := &Call{Method: MethodUpdateUser, ID: id, Patch: patch}
	if err := f.park(ctx, c); err != nil {
		return nil, err
	}
	return c.usr, nil
}

func (f *Fake) DeleteUser(ctx context.Context, id core.ID) error {
	c := &Call{Method: MethodDeleteUser, ID: id}
	return f.park(ctx, c)
}

func (f *Fake) SetBan(ctx context.Context, id core.ID, reason *string) (*user.User, error) {
	c := &Call{Method: MethodSetBan, ID: id, Reason: reason}
	if err := f.park(ctx, c); err != nil {
		return nil, err
	}
	return c.usr, nil
}

var _ remote.API = (*Fake)(nil)
