// Package wsmessenger implements wire.Messenger over a websocket
// connection: each signalling message is exactly one websocket text
// frame. Grounded on the teacher's aetherlight dial/accept code
// (cli-proxy-aetherlight.go, signal-server-aetherlight.go), which
// already uses nhooyr.io/websocket for its own signalling channel;
// this package swaps that code's smux-multiplexed NetConn wrapping for
// the library's native message-framed Read/Write, since wire.Messenger
// wants one message per call rather than a byte stream.
package wsmessenger

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/webrtc-peercall/peercall/call/wire"
)

// WebsocketMessenger adapts a *websocket.Conn to wire.Messenger.
type WebsocketMessenger struct {
	conn *websocket.Conn
}

var _ wire.Messenger = (*WebsocketMessenger)(nil)

// New wraps an already-established websocket connection.
func New(conn *websocket.Conn) *WebsocketMessenger {
	return &WebsocketMessenger{conn: conn}
}

// Dial connects to a signalling server URL, grounded on the teacher's
// outbound dial in cli-proxy-aetherlight.go's runAetherlightEgress.
func Dial(ctx context.Context, url string, opts *websocket.DialOptions) (*WebsocketMessenger, error) {
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial signalling websocket failed: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return New(conn), nil
}

// Accept upgrades an inbound HTTP request to a websocket connection,
// grounded on the teacher's signal-server-aetherlight.go handler.
func Accept(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*WebsocketMessenger, error) {
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("accept signalling websocket failed: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return New(conn), nil
}

func (m *WebsocketMessenger) Read(ctx context.Context) ([]byte, error) {
	_, b, err := m.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read signalling websocket frame failed: %w", err)
	}
	return b, nil
}

func (m *WebsocketMessenger) Write(ctx context.Context, b []byte) error {
	if err := m.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write signalling websocket frame failed: %w", err)
	}
	return nil
}

func (m *WebsocketMessenger) Close() error {
	return m.conn.Close(websocket.StatusNormalClosure, "closing")
}
