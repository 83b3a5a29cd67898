package cmrpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	wrapped := &Error{Kind: ErrKindTimeout, Message: "slow method call"}
	require.True(t, errors.Is(wrapped, ErrTimeout))
	require.False(t, errors.Is(wrapped, ErrCongestion))
}

func TestExceptionSummaryRoundTrip(t *testing.T) {
	inner := &Error{Kind: ErrKindUnspecified, Message: "division by zero"}
	outer := &Error{Kind: ErrKindInvocationFailed, Message: "method Divide failed", Cause: inner}

	summary := newExceptionSummary(outer)
	require.Equal(t, outer.Error(), summary.Message)
	require.Equal(t, inner.Error(), summary.Inner)

	rebuilt := summary.toError()
	var asErr *Error
	require.True(t, errors.As(rebuilt, &asErr))
	require.Equal(t, ErrKindInvocationFailed, asErr.Kind)
}

func TestExceptionSummaryNoInner(t *testing.T) {
	summary := newExceptionSummary(&Error{Kind: ErrKindUnknownMember, Message: "no such property"})
	require.Empty(t, summary.Inner)
}
