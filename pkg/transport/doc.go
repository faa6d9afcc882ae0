// Package transport defines the byte-stream transport driven by the
// connection layer, and provides a websocket implementation.
//
// The connection layer treats a transport as opaque: it sends binary
// payloads, and it observes the transport's life through four notification
// kinds (open, message, close, error) delivered via Handlers. A transport
// is created by a Dialer and used exactly once; after a drop the connection
// layer discards the handle and dials a fresh one.
//
// # Notification Contract
//
// Implementations must deliver notifications asynchronously (never from
// within Dial) and serially (never two at once for the same transport).
// After Detach returns, no new notification begins; one already in flight
// may still complete, so consumers that replace transports should also
// guard against stale callbacks.
package transport
