package mailer

import (
	"fmt"
	"sync/atomic"
)

// SessionLimiter bounds the number of IMAP sessions a Facade keeps open at
// once. A nil *SessionLimiter admits everything.
type SessionLimiter struct {
	max  int64
	open atomic.Int64
}

// NewSessionLimiter creates a limiter admitting at most max sessions.
func NewSessionLimiter(max int) *SessionLimiter {
	return &SessionLimiter{max: int64(max)}
}

// Acquire reserves a session slot or fails with ErrTooManySessions.
func (l *SessionLimiter) Acquire() error {
	if l == nil {
		return nil
	}
	for {
		open := l.open.Load()
		if open >= l.max {
			return fmt.Errorf("%w (limit %d)", ErrTooManySessions, l.max)
		}
		if l.open.CompareAndSwap(open, open+1) {
			return nil
		}
	}
}

// Release returns a slot taken by Acquire.
func (l *SessionLimiter) Release() {
	if l == nil {
		return
	}
	l.open.Add(-1)
}

// Open returns the number of slots currently held.
func (l *SessionLimiter) Open() int64 {
	if l == nil {
		return 0
	}
	return l.open.Load()
}
