package wiretest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"
)

// StartIMAP serves a single INBOX backed by mb over loopback IMAP.
func StartIMAP(t testing.TB, mb *Mailbox) *Server {
	t.Helper()
	return Start(t, func(p *Peer) { (&imapConn{p: p, mb: mb}).serve() })
}

type imapConn struct {
	p        *Peer
	mb       *Mailbox
	authed   bool
	selected bool
}

func (c *imapConn) serve() {
	c.p.Send("* OK [CAPABILITY IMAP4rev1 SASL-IR SORT AUTH=PLAIN] Loopback ready.")
	for {
		line, ok := c.p.Recv()
		if !ok {
			return
		}
		tag, rest, _ := strings.Cut(line, " ")
		verb, args, _ := strings.Cut(rest, " ")
		if !c.dispatch(tag, strings.ToUpper(verb), args) {
			return
		}
	}
}

// dispatch handles one command and reports whether the connection stays open.
func (c *imapConn) dispatch(tag, verb, args string) bool {
	switch {
	case verb == "LOGOUT":
		c.p.Send("* BYE Logging out", tag+" OK Logout completed.")
		return false
	case verb == "LOGIN":
		fields := strings.Fields(args)
		if len(fields) == 2 && c.mb.checkLogin(unquote(fields[0]), unquote(fields[1])) {
			c.authed = true
			c.p.Send(tag + " OK Logged in")
		} else {
			c.p.Send(tag + " NO [AUTHENTICATIONFAILED] Authentication failed.")
		}
	case verb == "AUTHENTICATE":
		return c.authenticate(tag, args)
	case !c.authed:
		c.p.Send(tag + " BAD Not authenticated.")
	case verb == "SELECT":
		exists, recent := c.mb.selectCounts()
		c.selected = true
		c.p.Send(
			`* FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`,
			`* OK [PERMANENTFLAGS (\Answered \Flagged \Deleted \Seen \Draft \*)] Flags permitted.`,
			fmt.Sprintf("* %d EXISTS", exists),
			fmt.Sprintf("* %d RECENT", recent),
			tag+" OK [READ-WRITE] Select completed.",
		)
	case !c.selected:
		c.p.Send(tag + " BAD No mailbox selected.")
	case verb == "FETCH":
		return c.fetch(tag, args)
	case verb == "SORT":
		reverse := strings.Contains(strings.ToUpper(args), "REVERSE")
		c.p.Send("* SORT"+joinIDs(c.mb.sortByDate(reverse)), tag+" OK Sort completed.")
	case verb == "SEARCH":
		pred, err := searchPredicate(args)
		if err != nil {
			c.p.Send(tag + " BAD " + err.Error())
			return true
		}
		c.p.Send("* SEARCH"+joinIDs(c.mb.search(pred)), tag+" OK Search completed.")
	case verb == "STORE":
		set, rest, _ := strings.Cut(args, " ")
		ids := parseSet(set)
		flags := strings.Fields(strings.Trim(strings.TrimPrefix(strings.ToUpper(rest), "+FLAGS "), "()"))
		for i := range flags {
			flags[i] = canonicalFlag(flags[i])
		}
		c.mb.addFlags(ids, flags)
		for _, id := range ids {
			m := c.mb.Message(id)
			if m == nil {
				continue
			}
			c.p.Send(fmt.Sprintf("* %d FETCH (FLAGS (%s))", id, strings.Join(m.Flags, " ")))
		}
		c.p.Send(tag + " OK Store completed.")
	default:
		c.p.Send(tag + " BAD Unknown command.")
	}
	return true
}

func (c *imapConn) authenticate(tag, args string) bool {
	mech, ir, _ := strings.Cut(args, " ")
	if !strings.EqualFold(mech, "PLAIN") {
		c.p.Send(tag + " NO Unsupported mechanism.")
		return true
	}
	if ir == "" {
		c.p.Send("+ ")
		line, ok := c.p.Recv()
		if !ok {
			return false
		}
		ir = line
	}
	raw, err := base64.StdEncoding.DecodeString(ir)
	parts := bytes.Split(raw, []byte{0})
	if err != nil || len(parts) != 3 || !c.mb.checkLogin(string(parts[1]), string(parts[2])) {
		c.p.Send(tag + " NO [AUTHENTICATIONFAILED] Authentication failed.")
		return true
	}
	c.authed = true
	c.p.Send(tag + " OK Logged in")
	return true
}

func (c *imapConn) fetch(tag, args string) bool {
	set, items, _ := strings.Cut(args, " ")
	upper := strings.ToUpper(items)
	ids := parseSet(set)

	switch {
	case upper == "BODY.PEEK[]":
		for _, id := range ids {
			m := c.mb.Message(id)
			if m == nil {
				continue
			}
			c.p.Send(fmt.Sprintf("* %d FETCH (BODY[] {%d}", id, m.Size()))
			if c.mb.unreadable() {
				return false
			}
			c.p.Send(m.Lines...)
			c.p.Send(")")
		}
	case upper == "BODY.PEEK[2.MIME]":
		for _, id := range ids {
			m := c.mb.Message(id)
			if m == nil {
				continue
			}
			part := mimePartHeader(m, 2)
			c.p.Send(fmt.Sprintf("* %d FETCH (BODY[2.MIME] {%d}", id, literalSize(part)))
			c.p.Send(part...)
			c.p.Send(")")
		}
	case strings.Contains(upper, "HEADER.FIELDS"):
		open := strings.Index(upper, "HEADER.FIELDS (")
		fields := strings.Fields(upper[open+len("HEADER.FIELDS ("):strings.Index(upper[open:], ")")+open])
		sorted := slices.Clone(ids)
		slices.Sort(sorted)
		for _, id := range sorted {
			m := c.mb.Message(id)
			if m == nil {
				continue
			}
			hdr := selectHeaders(m, fields)
			c.p.Send(fmt.Sprintf("* %d FETCH (UID %d RFC822.SIZE %d FLAGS (%s) INTERNALDATE %q BODY[HEADER.FIELDS (%s)] {%d}",
				id, id, m.Size(), strings.Join(m.Flags, " "), time.Now().Format("02-Jan-2006 15:04:05 -0700"),
				strings.Join(fields, " "), literalSize(hdr)))
			c.p.Send(hdr...)
			c.p.Send(")")
		}
	default:
		c.p.Send(tag + " BAD Unsupported fetch items.")
		return true
	}
	c.p.Send(tag + " OK Fetch completed.")
	return true
}

func literalSize(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 2
	}
	return n
}

// selectHeaders returns the header lines named in fields plus a closing blank line.
func selectHeaders(m *Message, fields []string) []string {
	var out []string
	keep := false
	for _, l := range m.header() {
		if strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t") {
			if keep {
				out = append(out, l)
			}
			continue
		}
		name, _, _ := strings.Cut(l, ":")
		keep = slices.Contains(fields, strings.ToUpper(strings.TrimSpace(name)))
		if keep {
			out = append(out, l)
		}
	}
	return append(out, "")
}

// mimePartHeader returns the MIME header lines of the n-th body part, where
// parts are delimited by lines that start with "--".
func mimePartHeader(m *Message, n int) []string {
	part := 0
	var out []string
	inHeader := false
	for _, l := range m.Lines[len(m.header()):] {
		if strings.HasPrefix(l, "--") {
			part++
			inHeader = part == n
			continue
		}
		if inHeader {
			if l == "" {
				break
			}
			out = append(out, l)
		}
	}
	return append(out, "")
}

func searchPredicate(args string) (func(*Message) bool, error) {
	fields := strings.Fields(args)
	negate := false
	if len(fields) > 0 && strings.EqualFold(fields[0], "NOT") {
		negate = true
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("missing search key")
	}
	var pred func(*Message) bool
	switch strings.ToUpper(fields[0]) {
	case "ALL":
		pred = func(*Message) bool { return true }
	case "SEEN":
		pred = func(m *Message) bool { return m.hasFlag(`\Seen`) }
	case "KEYWORD":
		if len(fields) < 2 {
			return nil, fmt.Errorf("missing keyword")
		}
		kw := unquote(fields[1])
		pred = func(m *Message) bool { return m.hasFlag(kw) }
	default:
		return nil, fmt.Errorf("unsupported search key %s", fields[0])
	}
	if negate {
		return func(m *Message) bool { return !pred(m) }, nil
	}
	return pred, nil
}

func parseSet(set string) []int {
	var ids []int
	for _, part := range strings.Split(set, ",") {
		if lo, hi, ok := strings.Cut(part, ":"); ok {
			a, err1 := strconv.Atoi(lo)
			b, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				continue
			}
			for i := a; i <= b; i++ {
				ids = append(ids, i)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

func joinIDs(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(id))
	}
	return sb.String()
}

func canonicalFlag(f string) string {
	if strings.HasPrefix(f, `\`) && len(f) > 1 {
		return `\` + f[1:2] + strings.ToLower(f[2:])
	}
	return f
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
