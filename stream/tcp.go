package stream

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// DialTCP opens one plain TCP connection, one session's worth of duplex
// stream. Pass a non-nil tlsConfig to negotiate TLS immediately after
// connect (see cmrpc.GenerateCertificate for a throwaway certificate).
func DialTCP(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	if tlsConfig != nil {
		return (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// ListenTCP starts accepting one physical connection per session. Each
// net.Conn returned by the listener's Accept is handed to
// cmrpc.NewServerSession directly — TCP is not multiplexed by default,
// unlike AcceptMultiplexed.
func ListenTCP(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	if tlsConfig != nil {
		return tls.Listen("tcp", addr, tlsConfig)
	}
	return net.Listen("tcp", addr)
}
