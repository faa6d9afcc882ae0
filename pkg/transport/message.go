package transport

import "bytes"

// MessageType distinguishes binary payloads from text frames.
type MessageType uint8

const (
	// MessageBinary is a binary payload, possibly fragmented.
	MessageBinary MessageType = iota

	// MessageText is a text frame. The connection layer treats text as a
	// protocol violation, but the transport reports it rather than judging.
	MessageText
)

// String returns a human-readable message type name.
func (t MessageType) String() string {
	switch t {
	case MessageBinary:
		return "BINARY"
	case MessageText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}

// Message is one inbound transport message.
type Message struct {
	// Type indicates the payload kind.
	Type MessageType

	// Chunks holds the payload fragments in arrival order. Transports
	// that reassemble internally deliver a single chunk.
	Chunks [][]byte
}

// Join concatenates the payload fragments into one contiguous slice.
func (m Message) Join() []byte {
	if len(m.Chunks) == 0 {
		return nil
	}
	return bytes.Join(m.Chunks, nil)
}

// Size returns the total payload size in bytes.
func (m Message) Size() int {
	var n int
	for _, c := range m.Chunks {
		n += len(c)
	}
	return n
}
