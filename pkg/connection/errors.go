package connection

import (
	"errors"
	"fmt"
)

// Connection errors.
var (
	// ErrConnectPending rejects a connect while another is in flight.
	ErrConnectPending = errors.New("connection already requested")

	// ErrAlreadyConnected rejects a connect on an established connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrNotConnected rejects a send without an open transport.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed rejects a pending connect torn down by Disconnect.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrDestroyed rejects any operation on a destroyed instance.
	ErrDestroyed = errors.New("connection destroyed")
)

// ProtocolViolationError reports an inbound text frame on the binary
// stream. The violation is broadcast on the error topic; the connection
// itself stays open.
type ProtocolViolationError struct {
	// Payload is the offending frame content.
	Payload []byte
}

// Error implements the error interface.
func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: received text frame (%d bytes) on binary stream", len(e.Payload))
}
