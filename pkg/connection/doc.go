// Package connection manages one logical binary-stream connection.
//
// This package handles:
//   - A future-style connect operation with fail-fast duplicate detection
//   - Lifecycle and data events broadcast to subscribers
//   - Automatic reconnection after an unrequested drop
//   - Connection state tracking
//
// # Lifecycle
//
// A Client owns at most one live transport. Connect dials and settles when
// the transport reports open or error. An unsolicited drop after a
// successful connect arms a fixed-delay reconnect timer; Disconnect and
// Destroy cancel it and permanently disable automatic reconnection for the
// instance.
//
// # Basic Usage
//
//	client, err := connection.New(connection.Config{
//	    Address: "ws://device.local:8080/stream",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Destroy()
//
//	client.Events().Data.Subscribe(func(frame []byte) {
//	    fmt.Printf("received %d bytes\n", len(frame))
//	})
//
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	if err := client.Send([]byte{0x01}); err != nil {
//	    return err
//	}
//
// Event handlers run synchronously on the connection's notification path
// and should hand heavy work to another goroutine.
package connection
