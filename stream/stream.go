// Package stream provides the duplex byte-stream transports a Session can
// be built on: plain TCP/Unix sockets, one physical TCP connection
// multiplexed into many sessions via yamux, a WebSocket upgrade, and an
// MQTT topic pair. Every duplex stream this package yields (a net.Conn, a
// *websocket.Conn, an *MQTTDuplex) is an io.ReadWriteCloser suitable for
// cmrpc.NewClientSession / cmrpc.NewServerSession — this
// package knows nothing about envelopes, resolvers, or dispatch.
package stream

import "io"

// Duplex is the minimal contract a transport must satisfy. It is
// io.ReadWriteCloser under a name that documents intent at call sites.
type Duplex interface {
	io.Reader
	io.Writer
	io.Closer
}
