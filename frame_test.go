package cmrpc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := newFrameWriter(&buf)
	require.NoError(t, fw.writeFrame([]byte("hello")))
	require.NoError(t, fw.writeFrame([]byte("world")))

	fr := newFrameReader(&buf, 0)
	first, err := fr.readFrame()
	require.NoError(t, err)
	require.Equal(t, "hello", string(first))

	second, err := fr.readFrame()
	require.NoError(t, err)
	require.Equal(t, "world", string(second))
}

func TestFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	fw := newFrameWriter(&buf)
	require.NoError(t, fw.writeFrame(make([]byte, 100)))

	fr := newFrameReader(&buf, 10)
	_, err := fr.readFrame()
	require.ErrorIs(t, err, ErrProtocolLimit)
}

func TestFrameDetectsTruncation(t *testing.T) {
	var buf bytes.Buffer
	fw := newFrameWriter(&buf)
	require.NoError(t, fw.writeFrame([]byte("hello world")))

	full := buf.Bytes()
	truncated := bytes.NewReader(full[:len(full)-3])

	fr := newFrameReader(truncated, 0)
	_, err := fr.readFrame()
	require.ErrorIs(t, err, ErrFrameTruncated)
}

func TestFrameEmptyPayloadRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	fw := newFrameWriter(&buf)
	require.NoError(t, fw.writeFrame(nil))

	fr := newFrameReader(&buf, 0)
	payload, err := fr.readFrame()
	require.NoError(t, err)
	require.Empty(t, payload)
}
