// Package vsm implements the five supervised subsystem actors of the
// control core — Operations (S1), Coordination (S2), Control (S3),
// Intelligence (S4), and Policy (S5) — plus the algedonic override path
// that lets any of them preempt S5 with a pain/pleasure signal.
//
// Each subsystem serializes its own state behind a mutex, which gives it
// the "single logical mailbox" property without a dedicated goroutine per
// actor: concurrent callers still only ever observe operations applied
// one at a time, in the order they acquire the lock.
package vsm

import (
	"errors"

	"github.com/vsmcore/vsmcore/internal/errs"
)

var (
	ErrMissingCapability = errs.New(errs.KindMissingCapability, errors.New("vsm: missing capability"), nil)
	ErrHandlerPanicked   = errs.New(errs.KindFatal, errors.New("vsm: capability handler panicked"), nil)
)

// OperationRequest names a capability to invoke and the arguments to pass
// it, as submitted to S1 inside a coordination plan.
type OperationRequest struct {
	Capability string
	Args       map[string]any
}

// OperationResult is one operation's outcome, in submission order.
type OperationResult struct {
	Capability string
	Output     any
	Err        error
}
