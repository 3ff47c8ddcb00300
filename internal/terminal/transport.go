package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsTransport streams terminal bytes over a WebSocket to the control
// plane's attach endpoint. Binary frames carry shell I/O; resize goes out
// as a small JSON text frame.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	// leftover holds unread bytes from the last binary frame.
	leftover []byte

	closeOnce sync.Once
	closeErr  error
}

type resizeFrame struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// NewWebSocketDialer returns a Dialer that attaches to sandboxes through
// the control plane's terminal endpoint.
func NewWebSocketDialer(baseURL, apiKey string) Dialer {
	return func(ctx context.Context, sandboxID string) (Transport, error) {
		wsURL := strings.Replace(strings.Replace(baseURL, "https://", "wss://", 1), "http://", "ws://", 1)
		endpoint := fmt.Sprintf("%s/v1/sandboxes/%s/terminal", wsURL, url.PathEscape(sandboxID))

		header := http.Header{}
		header.Set("Authorization", "Bearer "+apiKey)

		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("attaching to %s: %w (status %d)", sandboxID, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("attaching to %s: %w", sandboxID, err)
		}
		return &wsTransport{conn: conn}, nil
	}
}

func (t *wsTransport) Read(p []byte) (int, error) {
	if len(t.leftover) > 0 {
		n := copy(p, t.leftover)
		t.leftover = t.leftover[n:]
		return n, nil
	}

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		// Text frames are control traffic from the server; skip them.
		if msgType != websocket.BinaryMessage {
			continue
		}
		n := copy(p, data)
		if n < len(data) {
			t.leftover = data[n:]
		}
		return n, nil
	}
}

func (t *wsTransport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Resize(cols, rows int) error {
	frame, err := json.Marshal(resizeFrame{Type: "resize", Cols: cols, Rows: rows})
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
