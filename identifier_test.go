package cmrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifierRoundTrip(t *testing.T) {
	id := NewIdentifier()
	require.False(t, id.IsEmpty())

	parsed, err := ParseIdentifier(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestIdentifierEmptyValue(t *testing.T) {
	var id Identifier
	require.True(t, id.IsEmpty())
	require.Equal(t, "", id.String())

	parsed, err := ParseIdentifier("")
	require.NoError(t, err)
	require.True(t, parsed.IsEmpty())
}

func TestParseIdentifierMalformed(t *testing.T) {
	_, err := ParseIdentifier("not-a-uuid")
	require.Error(t, err)
}

func TestNewIdentifierUniqueness(t *testing.T) {
	a, b := NewIdentifier(), NewIdentifier()
	require.NotEqual(t, a, b)
}
