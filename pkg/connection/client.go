package connection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bytesock/bytesock-go/pkg/log"
	"github.com/bytesock/bytesock-go/pkg/transport"
)

// DefaultReconnectDelay is the fixed delay between an unsolicited drop
// and the next dial when Config.ReconnectDelay is unset.
const DefaultReconnectDelay = 5 * time.Second

// Config holds per-instance configuration. It is read once at
// construction.
type Config struct {
	// Address is the endpoint to connect to, e.g. "ws://host:8080/stream".
	Address string

	// Autoconnect starts a connect attempt on construction. Its failure
	// is logged and broadcast on the error topic.
	Autoconnect bool

	// ReconnectDelay is the fixed delay before re-dialing after an
	// unsolicited drop. Zero selects DefaultReconnectDelay; a negative
	// value disables automatic reconnection.
	ReconnectDelay time.Duration

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives capture events. Nil disables capture.
	ProtocolLogger log.Logger

	// Dialer creates transports. Nil selects a websocket dialer with
	// default settings.
	Dialer transport.Dialer
}

// Client is the public surface of a managed binary-stream connection.
// All methods are safe for concurrent use.
type Client struct {
	ctrl *Controller
}

// New creates a client from cfg. With Autoconnect set, a connect attempt
// starts immediately.
func New(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("connection: address is required")
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ReconnectDelay < 0 {
		cfg.ReconnectDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = log.NoopLogger{}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &transport.WebSocketDialer{}
	}

	c := &Client{ctrl: newController(cfg)}

	if cfg.Autoconnect {
		ch := c.ctrl.Connect()
		go func() {
			if err := <-ch; err != nil {
				cfg.Logger.Warn("autoconnect failed", "err", err)
			}
		}()
	}
	return c, nil
}

// Connect establishes the connection, waiting until the attempt settles
// or ctx is done. A call while an attempt is pending fails with
// ErrConnectPending; a call while connected fails with
// ErrAlreadyConnected. Canceling ctx abandons the wait, not the attempt.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case err := <-c.ctrl.Connect():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectAsync starts a connect attempt and returns its settlement
// channel. The channel receives exactly one value: nil on success or the
// failure.
func (c *Client) ConnectAsync() <-chan error {
	return c.ctrl.Connect()
}

// Disconnect closes the connection and permanently disables automatic
// reconnection for this instance. Idempotent.
func (c *Client) Disconnect() {
	c.ctrl.Disconnect()
}

// Destroy is Disconnect plus release of all event topics. Terminal and
// idempotent.
func (c *Client) Destroy() {
	c.ctrl.Destroy()
}

// Send forwards one binary frame. It fails with ErrNotConnected unless
// the connection is established; it never buffers.
func (c *Client) Send(data []byte) error {
	return c.ctrl.Send(data)
}

// Events returns the connection's event topics.
func (c *Client) Events() *Events {
	return c.ctrl.events
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.ctrl.State()
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	return c.ctrl.State() == StateConnected
}
