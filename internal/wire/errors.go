package wire

import (
	"errors"
	"fmt"
)

// Failure kinds shared by the delivery and retrieval clients.
var (
	// ErrConnection is returned when the transport cannot be established.
	ErrConnection = errors.New("connection failed")

	// ErrBrokenStream is returned when the peer closes the stream, or produces no
	// data, where a line was required.
	ErrBrokenStream = errors.New("broken stream")

	// ErrUnexpectedResponse is returned when a response's tag, status or shape does
	// not match what the command expects.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrInvalidCredentials is returned when the server or the administrative tool
	// explicitly rejects the supplied credentials.
	ErrInvalidCredentials = errors.New("invalid password")

	// ErrProtocol is returned when a delivery handshake step gets a bad status.
	ErrProtocol = errors.New("protocol error")

	// ErrSessionClosed is returned for commands issued on a session that has
	// already failed or been closed.
	ErrSessionClosed = errors.New("session closed")
)

// UnexpectedResponseError carries the offending response line.
type UnexpectedResponseError struct {
	Line string // raw line as received, without terminator
	Want string // what the caller expected, e.g. "* OK"
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response (want %s): %q", e.Want, e.Line)
}

// Is reports whether target is ErrUnexpectedResponse.
func (e *UnexpectedResponseError) Is(target error) bool {
	return target == ErrUnexpectedResponse
}
