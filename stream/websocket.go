package stream

import (
	"net/http"

	"golang.org/x/net/websocket"
)

// DialWebSocket opens a duplex stream over a WebSocket connection.
// origin is the value websocket.Config expects for the Origin header;
// pass the URL you'd otherwise pass as target when running as a client
// behind a browser-facing proxy.
func DialWebSocket(url, origin string) (*websocket.Conn, error) {
	config, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// Handler adapts a per-connection accept function into an http.Handler
// suitable for http.ServeMux, upgrading each incoming request to a
// WebSocket and handing the resulting duplex stream to accept.
func Handler(accept func(conn *websocket.Conn)) http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		ws.PayloadType = websocket.BinaryFrame
		accept(ws)
	})
}
