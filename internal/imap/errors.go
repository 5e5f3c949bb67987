package imap

import "errors"

// ErrInvalidSearch is returned by ParseSearchQuery for unknown criteria.
var ErrInvalidSearch = errors.New("invalid search query")

// ErrMissingFetchResponse is returned when a batched header fetch completes
// without a response for one of the requested messages.
var ErrMissingFetchResponse = errors.New("no fetch response for message")

// ErrUnsupportedMechanism is returned by AuthenticateWith for a SASL
// mechanism outside SupportedSASLMechanisms.
var ErrUnsupportedMechanism = errors.New("unsupported sasl mechanism")
