package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/userdesk/userdesk/pkg/logger"
)

// -----------------------------------------------------------------------------
// Sentinel errors
// -----------------------------------------------------------------------------

// ErrAlreadyLoading is returned when a page load is requested while another
// load for the same criteria is still in flight.
var ErrAlreadyLoading = errors.New("page load already in flight")

// ErrNotFound is returned when a record id is not present in the store.
var ErrNotFound = errors.New("record not found")

// -----------------------------------------------------------------------------
// Fetch errors
// -----------------------------------------------------------------------------

// FetchError wraps a failed page load. Previously loaded pages stay intact;
// the caller may retry by re-invoking the load.
type FetchError struct {
	Cursor string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("failed to fetch first page: %v", e.Err)
	}
	return fmt.Sprintf("failed to fetch page at cursor %q: %v", e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// Mutation errors
// -----------------------------------------------------------------------------

// MutationFailReason discriminates why a mutation settled unsuccessfully.
type MutationFailReason string

const (
	// FailRejected means the server declined the operation (e.g. validation).
	// The message is surfaced verbatim and the operation is not retried
	// automatically; a retry is a user-initiated re-submission.
	FailRejected MutationFailReason = "rejected"
	// FailTransport means the round-trip itself failed (network, timeout).
	FailTransport MutationFailReason = "transport"
)

// MutationError is the settled failure of an optimistic mutation. Both
// reasons trigger rollback of the optimistic change; they differ in what the
// notification carries.
type MutationError struct {
	Reason  MutationFailReason
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("mutation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mutation failed (%s)", e.Reason)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewRejected builds a server-rejection error carrying the server's message
// verbatim.
func NewRejected(message string) *MutationError {
	return &MutationError{Reason: FailRejected, Message: message}
}

// NewTransportFailure wraps a network or timeout failure.
func NewTransportFailure(err error) *MutationError {
	return &MutationError{Reason: FailTransport, Err: err}
}

// IsRejected reports whether err is a server rejection.
func IsRejected(err error) bool {
	var merr *MutationError
	return errors.As(err, &merr) && merr.Reason == FailRejected
}

// IsTransportFailure reports whether err is a transport-level failure.
func IsTransportFailure(err error) bool {
	var merr *MutationError
	return errors.As(err, &merr) && merr.Reason == FailTransport
}

// -----------------------------------------------------------------------------
// Invariant violations
// -----------------------------------------------------------------------------

var strictInvariants atomic.Bool

// SetStrictInvariants toggles fatal invariant checking. Development builds
// enable it so programming errors surface immediately; production builds keep
// it off and violations degrade to an error log.
func SetStrictInvariants(strict bool) {
	strictInvariants.Store(strict)
}

// ReportInvariant records a broken internal invariant. Panics under strict
// mode, logs otherwise.
func ReportInvariant(ctx context.Context, msg string, keyvals ...any) {
	if strictInvariants.Load() {
		panic(fmt.Sprintf("invariant violation: %s", msg))
	}
	logger.FromContext(ctx).Error("invariant violation: "+msg, keyvals...)
}
