// Package log provides structured capture of connection-level events.
//
// This package defines the Logger interface and Event types for recording
// what happens on a managed connection: state transitions, inbound and
// outbound frames, and errors. It is separate from operational logging
// (slog) - capture produces a complete machine-readable trace suitable
// for debugging and compatibility analysis.
//
// # Basic Usage
//
// Applications configure capture by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/bytesock/client.blog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer keys for
// compactness. ReadEvents decodes a capture stream back into events.
package log
