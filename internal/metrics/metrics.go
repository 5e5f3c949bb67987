// Package metrics provides interfaces and implementations for collecting
// probe client metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording probe client metrics.
// Protocol labels are "lmtp" or "imap".
type Collector interface {
	// Session metrics
	SessionOpened(protocol string)
	SessionClosed(protocol string)

	// Command metrics
	CommandSent(protocol, command string)
	CommandFailed(protocol, command string)

	// Authentication metrics
	AuthAttempt(mechanism string, success bool)

	// Message metrics
	MessageDelivered(sizeBytes int64)
	MessageFetched(sizeBytes int64)

	// ResidentMemory records a resident set size sample of the server under
	// test, in kilobytes.
	ResidentMemory(kilobytes int64)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
