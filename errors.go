package cmrpc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a request failed.
type ErrorKind int

const (
	ErrKindUnspecified ErrorKind = iota
	ErrKindProtocolLimit
	ErrKindFrameTruncated
	ErrKindProtocolViolation
	ErrKindUnauthorized
	ErrKindUnknownMember
	ErrKindUnknownTarget
	ErrKindArityMismatch
	ErrKindInvocationFailed
	ErrKindTimeout
	ErrKindSessionClosed
	ErrKindCongestion
	ErrKindNilRequest
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindProtocolLimit:
		return "ProtocolLimit"
	case ErrKindFrameTruncated:
		return "FrameTruncated"
	case ErrKindProtocolViolation:
		return "ProtocolViolation"
	case ErrKindUnauthorized:
		return "Unauthorized"
	case ErrKindUnknownMember:
		return "UnknownMember"
	case ErrKindUnknownTarget:
		return "UnknownTarget"
	case ErrKindArityMismatch:
		return "ArityMismatch"
	case ErrKindInvocationFailed:
		return "InvocationFailed"
	case ErrKindTimeout:
		return "Timeout"
	case ErrKindSessionClosed:
		return "SessionClosed"
	case ErrKindCongestion:
		return "Congestion"
	case ErrKindNilRequest:
		return "NilRequest"
	default:
		return "Unspecified"
	}
}

// Error is the error type returned across the whole package. It carries a
// Kind so callers can classify failures with errors.Is against the
// package-level sentinels below, and an optional wrapped cause used when
// an Exception envelope reports the inner error of a server-side failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on Kind alone, so a wrapped or freshly
// constructed Error of the same kind compares equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors, one per Kind, for errors.Is comparisons.
var (
	ErrProtocolLimit     = &Error{Kind: ErrKindProtocolLimit, Message: "frame exceeds configured maximum size"}
	ErrFrameTruncated    = &Error{Kind: ErrKindFrameTruncated, Message: "frame truncated"}
	ErrProtocolViolation = &Error{Kind: ErrKindProtocolViolation, Message: "protocol violation"}
	ErrUnauthorized      = &Error{Kind: ErrKindUnauthorized, Message: "principal rejected"}
	ErrUnknownMember     = &Error{Kind: ErrKindUnknownMember, Message: "unknown member"}
	ErrUnknownProperty   = &Error{Kind: ErrKindUnknownMember, Message: "unknown property"}
	ErrUnknownTarget     = &Error{Kind: ErrKindUnknownTarget, Message: "unknown target object"}
	ErrArityMismatch     = &Error{Kind: ErrKindArityMismatch, Message: "no overload matches parameter count"}
	ErrInvocationFailed  = &Error{Kind: ErrKindInvocationFailed, Message: "method invocation failed"}
	ErrTimeout           = &Error{Kind: ErrKindTimeout, Message: "request timed out"}
	ErrSessionClosed     = &Error{Kind: ErrKindSessionClosed, Message: "session closed"}
	ErrCongestion        = &Error{Kind: ErrKindCongestion, Message: "dispatch queue congested"}
	ErrNilRequest        = &Error{Kind: ErrKindNilRequest, Message: "nil request"}
)

// exceptionSummary is what actually crosses the wire in an Exception
// envelope's ValueStream: the fault kind, the outer message, and one
// level of inner message.
type exceptionSummary struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Inner   string    `json:"inner,omitempty"`
}

func newExceptionSummary(err error) exceptionSummary {
	s := exceptionSummary{Kind: ErrKindInvocationFailed, Message: err.Error()}
	var asErr *Error
	if errors.As(err, &asErr) {
		s.Kind = asErr.Kind
	}
	if inner := errUnwrap(err); inner != nil {
		s.Inner = inner.Error()
	}
	return s
}

func errUnwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

func (s exceptionSummary) toError() error {
	if s.Inner != "" {
		return &Error{Kind: s.Kind, Message: s.Message, Cause: &Error{Kind: ErrKindUnspecified, Message: s.Inner}}
	}
	return &Error{Kind: s.Kind, Message: s.Message}
}
