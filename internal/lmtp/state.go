package lmtp

// State is the position of a Client in the delivery handshake.
type State int

const (
	// StateConnected is the idle state between deliveries.
	StateConnected State = iota
	// StateIdentified follows a successful LHLO.
	StateIdentified
	// StateFromSet follows a successful MAIL FROM.
	StateFromSet
	// StateToSet follows a successful RCPT TO.
	StateToSet
	// StateDataOpen follows the 354 reply to DATA.
	StateDataOpen
	// StateSent follows the final 250 for the message body.
	StateSent
	// StateClosed is terminal: after QUIT or after any failed step.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateIdentified:
		return "IDENTIFIED"
	case StateFromSet:
		return "FROM_SET"
	case StateToSet:
		return "TO_SET"
	case StateDataOpen:
		return "DATA_OPEN"
	case StateSent:
		return "SENT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
