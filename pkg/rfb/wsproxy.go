package rfb

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsUpgrader accepts any origin: this bridge has no browser-facing auth of
// its own beyond the RFB layer's pre-shared secret, and Origin checks
// would only lock out the noVNC deployments this endpoint exists for.
var wsUpgrader = websocket.Upgrader{
	Subprotocols: []string{"binary"},
	CheckOrigin:  func(r *http.Request) bool { return true },
}

// wsConn adapts a *websocket.Conn, which is message-oriented, onto the
// byte-stream io.Reader/io.Writer the RFB handshake and readLoop expect —
// the same role a websockify-style bridge plays for noVNC clients, buffering
// the tail of a partially consumed binary message across Read calls.
type wsConn struct {
	ws      *websocket.Conn
	pending []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.pending = data
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error         { return c.ws.Close() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// WebSocketHandler returns an http.Handler that upgrades each request to a
// WebSocket carrying the raw RFB byte stream, the transport noVNC-class
// browser clients need since they can't open a bare TCP socket. Mount it
// alongside (not instead of) ListenAndServe's raw TCP listener: both speak
// the identical RFC 6143 byte stream, just over different transports.
func (s *Server) WebSocketHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		s.handleConn(ctx, &wsConn{ws: ws})
	})
}

// ListenAndServeWebSocket runs an HTTP server exposing WebSocketHandler at
// "/" until ctx is cancelled.
func (s *Server) ListenAndServeWebSocket(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.WebSocketHandler(ctx))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.log.Info("rfb websocket proxy listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("rfb: websocket listen %s: %w", addr, err)
	}
	return nil
}
