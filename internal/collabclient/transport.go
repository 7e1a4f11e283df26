package collabclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport carries encoded frames to and from the relay.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until a frame arrives or the transport is closed.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

const writeWait = 10 * time.Second

// WebsocketTransport is a Transport over a gorilla websocket connection.
type WebsocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial opens the collaboration socket. The relay authenticates the token
// from the query string.
func Dial(ctx context.Context, wsURL, token string) (*WebsocketTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return &WebsocketTransport{conn: conn}, nil
}

func (t *WebsocketTransport) Send(ctx context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

func (t *WebsocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if d, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(d)
	}
	_, msg, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *WebsocketTransport) Close() error {
	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()
	return t.conn.Close()
}
