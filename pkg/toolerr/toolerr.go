// Package toolerr defines the error taxonomy shared by the tool registry,
// the upstream clients and the invocation dispatcher, and the envelope those
// errors are reported in.
package toolerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed invocation.
type Kind string

const (
	Validation         Kind = "ValidationError"
	MissingCredential  Kind = "MissingCredential"
	InvalidQuery       Kind = "InvalidQuery"
	UpstreamTimeout    Kind = "UpstreamTimeout"
	UpstreamError      Kind = "UpstreamError"
	UnknownOperation   Kind = "UnknownOperation"
	DuplicateOperation Kind = "DuplicateOperation"
	Internal           Kind = "InternalError"
)

// Error is a classified failure. Status is the upstream HTTP status when one
// was received, zero otherwise.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that keeps err as its cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Upstream creates an UpstreamError carrying the HTTP status.
func Upstream(status int, format string, args ...any) *Error {
	return &Error{Kind: UpstreamError, Message: fmt.Sprintf(format, args...), Status: status}
}

// NotFound reports an identifier the upstream source does not know about.
func NotFound(what, id string) *Error {
	return &Error{Kind: UpstreamError, Message: fmt.Sprintf("%s not found: %s", what, id), Status: http.StatusNotFound}
}

// KindOf classifies err. Context expiry, cancellation and network timeouts are
// UpstreamTimeout; anything unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return UpstreamTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return UpstreamTimeout
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Envelope is the wire form of a failed invocation.
type Envelope struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	Retryable bool   `json:"retryable"`
}

// String renders the envelope as the text block relayed to the host.
func (e Envelope) String() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ToEnvelope converts any error into an Envelope.
func ToEnvelope(err error) Envelope {
	var te *Error
	if errors.As(err, &te) {
		return Envelope{
			Kind:      te.Kind,
			Message:   te.Message,
			Status:    te.Status,
			Retryable: retryable(te.Kind, te.Status),
		}
	}
	kind := KindOf(err)
	msg := err.Error()
	if kind == UpstreamTimeout {
		msg = "upstream service did not respond in time"
	}
	return Envelope{Kind: kind, Message: msg, Retryable: retryable(kind, 0)}
}

func retryable(kind Kind, status int) bool {
	switch kind {
	case UpstreamTimeout:
		return true
	case UpstreamError:
		return status == http.StatusTooManyRequests || status >= 500
	}
	return false
}
