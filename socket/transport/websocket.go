package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kleeedolinux/devsettings/debug"

	"github.com/gorilla/websocket"
)

// DefaultSubprotocols are offered on every handshake; the device selects
// "echo".
var DefaultSubprotocols = []string{"echo", "ignored_protocol"}

type WebSocketTransport struct {
	mu               sync.Mutex
	conn             *websocket.Conn
	url              string
	dialer           *websocket.Dialer
	headers          http.Header
	subprotocols     []string
	connected        bool
	readTimeout      time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

// WithReadTimeout sets an idle limit for Receive. Zero waits forever.
func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.handshakeTimeout = timeout
	}
}

func WithSubprotocols(protocols ...string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.subprotocols = append([]string(nil), protocols...)
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:              url,
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		subprotocols:     DefaultSubprotocols,
		writeTimeout:     10 * time.Second,
		handshakeTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	debug.Printf("WebSocketTransport: Connecting to %s", t.url)

	dialer := *t.dialer
	dialer.HandshakeTimeout = t.handshakeTimeout
	dialer.Subprotocols = t.subprotocols

	conn, resp, err := dialer.DialContext(ctx, t.url, t.headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		debug.Printf("WebSocketTransport: Connection failed: %v", err)
		return fmt.Errorf("transport: dial %s: %w", t.url, err)
	}

	debug.Printf("WebSocketTransport: Connected, subprotocol %q", conn.Subprotocol())
	t.conn = conn
	t.connected = true

	return nil
}

// Protocol reports the subprotocol the server selected.
func (t *WebSocketTransport) Protocol() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ""
	}
	return t.conn.Subprotocol()
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			debug.Printf("WebSocketTransport: Error setting write deadline: %v", err)
			return err
		}
	}

	debug.Printf("WebSocketTransport: Sending data: %s", string(data))
	err := t.conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		debug.Printf("WebSocketTransport: Send error: %v", err)
	}
	return err
}

// Receive returns the payload of the next text or binary message. A close
// frame, or a read after Close, yields an error wrapping ErrClosed.
func (t *WebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	if !t.connected || t.conn == nil {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	conn := t.conn

	if t.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			t.mu.Unlock()
			debug.Printf("WebSocketTransport: Error setting read deadline: %v", err)
			return nil, err
		}
	}
	t.mu.Unlock()

	_, message, err := conn.ReadMessage()
	if err != nil {
		debug.Printf("WebSocketTransport: Read error: %v", err)
		// 1006 is never sent on the wire; gorilla reports a dropped
		// connection with it.
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
			return nil, fmt.Errorf("%w: code %d %s", ErrClosed, closeErr.Code, closeErr.Text)
		}
		t.mu.Lock()
		closedLocally := !t.connected
		t.mu.Unlock()
		if closedLocally {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}

	debug.Printf("WebSocketTransport: Received data: %s", string(message))
	return message, nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return nil
	}

	debug.Printf("WebSocketTransport: Closing connection")

	err := t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err != nil {
		debug.Printf("WebSocketTransport: Error sending close message: %v", err)
	}

	err = t.conn.Close()
	if err != nil {
		debug.Printf("WebSocketTransport: Error closing connection: %v", err)
	}

	t.connected = false

	return err
}
