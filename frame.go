package cmrpc

import (
	"bufio"
	"encoding/binary"
	"io"
)

// DefaultMaxFrameSize is the ceiling on a single frame's payload when a
// session is not configured with WithMaxFrameSize.
const DefaultMaxFrameSize = 64 * 1024 * 1024

// frameWriter writes length-prefixed frames: a 4-byte big-endian payload
// length followed by that many bytes. It exists as its own type so a
// Session's writer goroutine can serialize concurrent envelope writes
// through a single owner without a mutex.
type frameWriter struct {
	w   *bufio.Writer
	buf [4]byte
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: bufio.NewWriter(w)}
}

func (fw *frameWriter) writeFrame(payload []byte) error {
	binary.BigEndian.PutUint32(fw.buf[:], uint32(len(payload)))
	if _, err := fw.w.Write(fw.buf[:]); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	return fw.w.Flush()
}

// frameReader reads back what frameWriter produces, refusing any frame
// whose declared length exceeds maxSize before allocating a buffer for it.
type frameReader struct {
	r       *bufio.Reader
	maxSize uint32
}

func newFrameReader(r io.Reader, maxSize uint32) *frameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &frameReader{r: bufio.NewReader(r), maxSize: maxSize}
}

func (fr *frameReader) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > fr.maxSize {
		return nil, ErrProtocolLimit
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrFrameTruncated
		}
		return nil, err
	}
	return payload, nil
}
