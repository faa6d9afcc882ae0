package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Websocket transport defaults.
const (
	// DefaultHandshakeTimeout bounds the websocket dial.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultMaxMessageSize is the inbound message size limit.
	DefaultMaxMessageSize = 64 << 20

	// DefaultWriteTimeout bounds a single Send.
	DefaultWriteTimeout = 5 * time.Second

	// closeWriteTimeout bounds the close handshake control frame.
	closeWriteTimeout = 500 * time.Millisecond
)

// ErrNotOpen is returned by Send before the websocket is established
// or after it has been closed.
var ErrNotOpen = errors.New("transport not open")

// WebSocketDialer creates websocket transports for ws:// and wss://
// addresses. The zero value uses the package defaults.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the dial (default: 30s).
	HandshakeTimeout time.Duration

	// MaxMessageSize limits inbound messages (default: 64MB).
	MaxMessageSize int64

	// WriteTimeout bounds each Send (default: 5s).
	WriteTimeout time.Duration
}

// Dial starts establishing a websocket to address and returns the handle
// immediately. The outcome arrives as the handle's first open or error
// notification.
func (d *WebSocketDialer) Dial(address string, h Handlers) Transport {
	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	maxSize := d.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	ws := &WebSocket{
		h:            h,
		writeTimeout: writeTimeout,
	}
	go ws.run(address, handshake, maxSize)
	return ws
}

// WebSocket is a websocket-backed Transport.
// Create instances through WebSocketDialer.
type WebSocket struct {
	h            Handlers
	writeTimeout time.Duration

	mu     sync.Mutex // guards conn, closed
	conn   *websocket.Conn
	closed bool

	writeMu  sync.Mutex // serializes writes to the socket
	detached atomic.Bool
}

// run dials and then pumps inbound messages until the socket drops.
func (ws *WebSocket) run(address string, handshake time.Duration, maxSize int64) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshake}
	conn, _, err := dialer.Dial(address, nil)
	if err != nil {
		ws.notifyError(fmt.Errorf("dial %s: %w", address, err))
		return
	}

	ws.mu.Lock()
	if ws.closed {
		// Closed while the dial was in flight.
		ws.mu.Unlock()
		_ = conn.Close()
		return
	}
	ws.conn = conn
	ws.mu.Unlock()

	conn.SetReadLimit(maxSize)

	ws.notifyOpen()
	ws.readLoop(conn)
}

func (ws *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				ws.notifyClose(ce.Code, ce.Text)
			case ws.isClosed():
				// Local Close tore down the socket.
				ws.notifyClose(websocket.CloseNormalClosure, "")
			default:
				ws.notifyError(err)
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			ws.notifyMessage(Message{Type: MessageBinary, Chunks: [][]byte{data}})
		case websocket.TextMessage:
			ws.notifyMessage(Message{Type: MessageText, Chunks: [][]byte{data}})
		}
	}
}

// Send writes one binary message to the peer.
func (ws *WebSocket) Send(data []byte) error {
	ws.mu.Lock()
	conn := ws.conn
	closed := ws.closed
	ws.mu.Unlock()

	if closed || conn == nil {
		return ErrNotOpen
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Detach stops notification delivery.
func (ws *WebSocket) Detach() {
	ws.detached.Store(true)
}

// Close closes the websocket, attempting the close handshake first.
// It is safe to call Close multiple times.
func (ws *WebSocket) Close() error {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return nil
	}
	ws.closed = true
	conn := ws.conn
	ws.mu.Unlock()

	if conn == nil {
		// Dial still in flight; run cleans up when it completes.
		return nil
	}

	ws.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(closeWriteTimeout))
	ws.writeMu.Unlock()

	return conn.Close()
}

func (ws *WebSocket) isClosed() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.closed
}

func (ws *WebSocket) notifyOpen() {
	if ws.detached.Load() || ws.h.OnOpen == nil {
		return
	}
	ws.h.OnOpen()
}

func (ws *WebSocket) notifyMessage(msg Message) {
	if ws.detached.Load() || ws.h.OnMessage == nil {
		return
	}
	ws.h.OnMessage(msg)
}

func (ws *WebSocket) notifyClose(code int, reason string) {
	if ws.detached.Load() || ws.h.OnClose == nil {
		return
	}
	ws.h.OnClose(code, reason)
}

func (ws *WebSocket) notifyError(err error) {
	if ws.detached.Load() || ws.h.OnError == nil {
		return
	}
	ws.h.OnError(err)
}
