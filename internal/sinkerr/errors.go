// Package sinkerr defines the error taxonomy of the shipping layer. Nothing
// in this layer is allowed to interrupt the gateway's request path: every
// error here terminates at a log line in the component that observes it.
package sinkerr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a shipping-layer failure.
type Kind string

const (
	KindConfig           Kind = "config"
	KindConnect          Kind = "connect"
	KindSizeExceeded     Kind = "size_exceeded"
	KindBatchLimit       Kind = "batch_limit_exceeded"
	KindBackendRejected  Kind = "backend_rejected"
	KindInterrupted      Kind = "interrupted"
	KindTransientNetwork Kind = "transient_network"
	KindClose            Kind = "close"
)

// Error carries the failure kind plus enough context (backend identity and
// destination) to diagnose a drop from the log line alone.
type Error struct {
	Kind Kind
	Sink string
	Dest string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sink %q dest %q: %s: %v", e.Sink, e.Dest, e.Kind, e.Err)
	}
	return fmt.Sprintf("sink %q dest %q: %s", e.Sink, e.Dest, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and sink context.
func New(kind Kind, sink, dest string, err error) *Error {
	return &Error{Kind: kind, Sink: sink, Dest: dest, Err: err}
}

// Config reports a missing or blank required configuration field.
func Config(sink string, err error) *Error {
	return &Error{Kind: KindConfig, Sink: sink, Err: err}
}

// Connect reports a backend unreachable at initialization.
func Connect(sink, dest string, err error) *Error {
	return &Error{Kind: KindConnect, Sink: sink, Dest: dest, Err: err}
}

// CloseFailure reports a handle that failed to release cleanly.
func CloseFailure(sink string, err error) *Error {
	return &Error{Kind: KindClose, Sink: sink, Err: err}
}

// KindOf extracts the kind from an error chain, classifying untyped errors by
// their shape: context cancellation maps to interrupted, net errors to
// transient-network, everything else to backend-rejected.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindInterrupted
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransientNetwork
	}
	return KindBackendRejected
}
