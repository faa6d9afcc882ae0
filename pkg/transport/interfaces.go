package transport

// Handlers receives lifecycle notifications from a transport.
// Nil fields are skipped. See the package documentation for the
// delivery contract.
type Handlers struct {
	// OnOpen fires once when the transport is established.
	OnOpen func()

	// OnMessage fires once per inbound message.
	OnMessage func(msg Message)

	// OnClose fires when the peer closes the transport.
	OnClose func(code int, reason string)

	// OnError fires when establishment fails or the transport breaks.
	OnError func(err error)
}

// Transport is an opaque duplex byte-stream.
// Implemented by WebSocket.
type Transport interface {
	// Send writes one binary payload to the peer.
	Send(data []byte) error

	// Detach stops notification delivery. Call before discarding the
	// handle so a replaced transport cannot report into its successor.
	Detach()

	// Close closes the transport. Safe to call multiple times.
	Close() error
}

// Dialer creates transports.
// Implemented by WebSocketDialer.
type Dialer interface {
	// Dial returns a transport handle immediately. Establishment is
	// asynchronous: the outcome arrives as the handle's first open or
	// error notification.
	Dial(address string, h Handlers) Transport
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*WebSocket)(nil)
	_ Dialer    = (*WebSocketDialer)(nil)
)
