package stream

import (
	"net"

	"github.com/hashicorp/yamux"
)

// MultiplexedDialer wraps one physical TCP connection in a yamux client
// session and hands out an independent stream — a full cmrpc Session
// worth of duplex — per call to Open. Unlike a per-call RPC multiplexer,
// each stream here backs one entire long-lived cmrpc.Session, so many
// sessions can share a single socket. The connection is plain TCP, with no
// TLS.
type MultiplexedDialer struct {
	mux *yamux.Session
}

// DialMultiplexed connects to addr and returns a dialer that opens new
// yamux streams over that one connection.
func DialMultiplexed(addr string) (*MultiplexedDialer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux, err := yamux.Client(conn, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &MultiplexedDialer{mux: mux}, nil
}

// Open starts a new session-worth stream over the shared connection.
func (d *MultiplexedDialer) Open() (net.Conn, error) {
	return d.mux.Open()
}

// Close tears down the underlying physical connection and every stream
// opened over it.
func (d *MultiplexedDialer) Close() error {
	return d.mux.Close()
}

// MultiplexedListener accepts one physical TCP connection and yields a
// new duplex stream — one per accepted session — for every yamux stream
// opened by the remote MultiplexedDialer.
type MultiplexedListener struct {
	mux *yamux.Session
}

// AcceptMultiplexed wraps an already-accepted net.Conn (from a regular
// net.Listener) as a yamux server session.
func AcceptMultiplexed(conn net.Conn) (*MultiplexedListener, error) {
	mux, err := yamux.Server(conn, nil)
	if err != nil {
		return nil, err
	}
	return &MultiplexedListener{mux: mux}, nil
}

// Accept blocks until the remote dialer opens a new session stream.
func (l *MultiplexedListener) Accept() (net.Conn, error) {
	return l.mux.Accept()
}

// Close tears down the underlying physical connection.
func (l *MultiplexedListener) Close() error {
	return l.mux.Close()
}
