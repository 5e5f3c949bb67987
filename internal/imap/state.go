package imap

// State represents the position of a Session in the IMAP state machine.
type State int

const (
	// StateNotAuthenticated is the state after the greeting.
	StateNotAuthenticated State = iota

	// StateAuthenticated follows a successful LOGIN or AUTHENTICATE.
	StateAuthenticated

	// StateSelected follows a successful SELECT.
	StateSelected

	// StateLoggedOut is terminal: after LOGOUT, a rejected login or any
	// failed exchange.
	StateLoggedOut
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNotAuthenticated:
		return "NOT_AUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateSelected:
		return "SELECTED"
	case StateLoggedOut:
		return "LOGGED_OUT"
	default:
		return "UNKNOWN"
	}
}
