package cmrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventRaiseAndUnsubscribe(t *testing.T) {
	var e Event
	var got []any
	unsub := e.subscribe(func(payload any) { got = append(got, payload) })

	e.Raise("first")
	unsub()
	e.Raise("second")

	require.Equal(t, []any{"first"}, got)
}

func TestEventMultipleSubscribers(t *testing.T) {
	var e Event
	var a, b int
	e.subscribe(func(any) { a++ })
	e.subscribe(func(any) { b++ })
	e.Raise(nil)
	require.Equal(t, 1, a)
	require.Equal(t, 1, b)
}
