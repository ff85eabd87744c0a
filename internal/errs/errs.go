// Package errs implements the node-wide error taxonomy: every error that
// crosses a subsystem boundary carries a Kind, so no failure a caller
// sees is ever untyped, and a Log helper records the structured fields
// a handler boundary must emit for it.
package errs

import (
	"errors"
	"log/slog"
)

// Kind classifies an error by its propagation policy: local errors
// surface straight to the caller, transport errors retry within an
// adapter's configured policy, and fatal errors trigger an actor
// restart.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalidOperation   Kind = "invalid_operation"
	KindValidationFailed   Kind = "validation_failed"
	KindMissingCapability  Kind = "missing_capability"
	KindTimeout            Kind = "timeout"
	KindTransientTransport Kind = "transient_transport"
	KindServerUnavailable  Kind = "server_unavailable"
	KindOverloaded         Kind = "overloaded"
	KindMergeConflict      Kind = "merge_conflict"
	KindFatal              Kind = "fatal"
)

// Error is a Kind-tagged error. Fields carries the taxonomy's per-kind
// payload (e.g. {"field", "reason"} for validation_failed, {"name"} for
// missing_capability/server_unavailable, {"kind"} for transient_transport).
type Error struct {
	Kind   Kind
	Cause  error
	Fields map[string]string
}

// New wraps cause with kind and optional structured fields.
func New(kind Kind, cause error, fields map[string]string) *Error {
	return &Error{Kind: kind, Cause: cause, Fields: fields}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf walks err's chain for an *Error and returns its Kind, or
// KindFatal if err was never tagged — an untagged error reaching a
// handler boundary is itself a bug, but logging it as fatal beats
// silently dropping the kind field.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

func fieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Log records a handler-boundary failure with the fields the error
// taxonomy requires: kind, cause, and the correlation id tying the
// failure back to its triggering request, execution, or chain run.
func Log(logger *slog.Logger, err error, correlationID string) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 6+2*len(fieldsOf(err)))
	attrs = append(attrs, "kind", string(KindOf(err)), "cause", err.Error(), "correlation_id", correlationID)
	for k, v := range fieldsOf(err) {
		attrs = append(attrs, k, v)
	}
	logger.Error("operation failed", attrs...)
}
