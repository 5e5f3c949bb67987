package mailer

import "errors"

var (
	// ErrTooManySessions is returned when the session limiter is at capacity.
	ErrTooManySessions = errors.New("too many concurrent sessions")

	// ErrNotConfigured is returned when a Stack component was not enabled in
	// the configuration.
	ErrNotConfigured = errors.New("component not configured")
)
