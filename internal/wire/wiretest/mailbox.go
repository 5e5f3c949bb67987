package wiretest

import (
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"
)

// Message is one delivered message as stored by the loopback servers.
type Message struct {
	Lines []string
	Flags []string
	Date  time.Time // parsed Date header, zero when absent
}

// Size is the literal size of the message on the IMAP wire.
func (m *Message) Size() int {
	n := 0
	for _, l := range m.Lines {
		n += len(l) + 2
	}
	return n
}

func (m *Message) hasFlag(flag string) bool {
	return slices.ContainsFunc(m.Flags, func(f string) bool { return strings.EqualFold(f, flag) })
}

// header returns the header lines, up to the first blank line.
func (m *Message) header() []string {
	for i, l := range m.Lines {
		if l == "" {
			return m.Lines[:i]
		}
	}
	return m.Lines
}

// Mailbox is the shared message list behind a loopback LMTP/IMAP pair.
type Mailbox struct {
	mu       sync.Mutex
	messages []*Message
	recent   int

	// Password accepted by IMAP LOGIN and AUTHENTICATE.
	Password string
	// Username accepted by IMAP LOGIN and AUTHENTICATE.
	Username string
	// Unreadable makes every body fetch drop the connection mid-literal, the
	// way a server without the decryption key behaves.
	Unreadable bool
}

// NewMailbox returns an empty mailbox for the given credentials.
func NewMailbox(username, password string) *Mailbox {
	return &Mailbox{Username: username, Password: password}
}

// Deliver appends a message made of the given body lines.
func (mb *Mailbox) Deliver(lines []string) {
	m := &Message{Lines: slices.Clone(lines)}
	for _, l := range m.header() {
		name, value, ok := strings.Cut(l, ":")
		if ok && strings.EqualFold(name, "Date") {
			if d, err := mail.ParseDate(strings.TrimSpace(value)); err == nil {
				m.Date = d
			}
		}
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages = append(mb.messages, m)
	mb.recent++
}

// Len returns the number of stored messages.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.messages)
}

// Message returns the message at 1-based position n, or nil.
func (mb *Mailbox) Message(n int) *Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if n < 1 || n > len(mb.messages) {
		return nil
	}
	return mb.messages[n-1]
}

// Clear removes all messages.
func (mb *Mailbox) Clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.messages = nil
	mb.recent = 0
}

func (mb *Mailbox) checkLogin(username, password string) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return username == mb.Username && password == mb.Password
}

// selectCounts returns EXISTS and RECENT and clears the recent count.
func (mb *Mailbox) selectCounts() (exists, recent int) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	exists, recent = len(mb.messages), mb.recent
	mb.recent = 0
	return exists, recent
}

func (mb *Mailbox) unreadable() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.Unreadable
}

// SetUnreadable toggles the missing-key simulation.
func (mb *Mailbox) SetUnreadable(v bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.Unreadable = v
}

// search returns 1-based ids of messages matching pred.
func (mb *Mailbox) search(pred func(*Message) bool) []int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var ids []int
	for i, m := range mb.messages {
		if pred(m) {
			ids = append(ids, i+1)
		}
	}
	return ids
}

// sortByDate returns all ids ordered by Date header, stable on position.
func (mb *Mailbox) sortByDate(reverse bool) []int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	ids := make([]int, len(mb.messages))
	for i := range ids {
		ids[i] = i + 1
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		return mb.messages[a-1].Date.Compare(mb.messages[b-1].Date)
	})
	if reverse {
		slices.Reverse(ids)
	}
	return ids
}

func (mb *Mailbox) addFlags(ids []int, flags []string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, id := range ids {
		if id < 1 || id > len(mb.messages) {
			continue
		}
		m := mb.messages[id-1]
		for _, f := range flags {
			if !m.hasFlag(f) {
				m.Flags = append(m.Flags, f)
			}
		}
	}
}
