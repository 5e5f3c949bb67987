package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Wildcard accepts any leading token in Expect.
const Wildcard = ""

// BlockSentinel closes a literal body block when it appears alone on a line.
const BlockSentinel = ")"

// LineReader yields response lines one at a time.
type LineReader interface {
	ReadLine() (string, error)
}

// Line is a tokenized response line.
//
// For IMAP the tag is "*" (untagged), "+" (continuation) or the command tag,
// and Status is the keyword or number that follows it. For LMTP the tag is
// the three-digit reply code; "250-" continuation lines set Continued.
type Line struct {
	Raw       string
	Tag       string
	Status    string
	Rest      string
	Continued bool
}

// ParseLine splits a raw response line into its leading tokens. Runs of
// spaces between tokens are treated as a single separator.
func ParseLine(raw string) Line {
	l := Line{Raw: raw}
	s := strings.TrimLeft(raw, " ")

	tag, rest, _ := strings.Cut(s, " ")
	if isReplyCode(tag[:min(len(tag), 3)]) && len(tag) > 3 && tag[3] == '-' {
		// "250-PIPELINING" has no separating space after the code.
		rest = strings.TrimPrefix(s[4:], " ")
		tag = tag[:3]
		l.Continued = true
	}
	l.Tag = tag

	rest = strings.TrimLeft(rest, " ")
	status, rest, _ := strings.Cut(rest, " ")
	l.Status = status
	l.Rest = strings.TrimLeft(rest, " ")
	return l
}

// Expect checks that line starts with id (any id when id is Wildcard) and,
// when status is not empty, that the following token equals status.
func Expect(line, id, status string) error {
	l := ParseLine(line)
	if id != Wildcard && l.Tag != id {
		return &UnexpectedResponseError{Line: line, Want: describe(id, status)}
	}
	if status != "" && !strings.EqualFold(l.Status, status) {
		return &UnexpectedResponseError{Line: line, Want: describe(id, status)}
	}
	return nil
}

func describe(id, status string) string {
	if id == Wildcard {
		id = "<any>"
	}
	if status == "" {
		return id
	}
	return id + " " + status
}

// ReadExpected reads one line from r and checks it with Expect.
func ReadExpected(r LineReader, id, status string) (string, error) {
	line, err := r.ReadLine()
	if err != nil {
		return "", err
	}
	if err := Expect(line, id, status); err != nil {
		return line, err
	}
	return line, nil
}

// ReadUntilTag pulls lines until one carries tag and returns that line.
func ReadUntilTag(r LineReader, tag string) (string, error) {
	for {
		line, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if ParseLine(line).Tag == tag {
			return line, nil
		}
	}
}

// ReadBlock accumulates lines until one consisting solely of BlockSentinel.
// Each accumulated line is terminated with "\n"; the sentinel is dropped. A
// stream that ends first is ErrBrokenStream.
func ReadBlock(r LineReader) (string, error) {
	var sb strings.Builder
	for {
		line, err := r.ReadLine()
		if err != nil {
			return sb.String(), err
		}
		if strings.TrimSpace(line) == BlockSentinel {
			return sb.String(), nil
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}

// ReadCount extracts the last numeric token of a response line, e.g. 5 from
// "* 5 EXISTS".
func ReadCount(line string) (int, error) {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(fields[i]); err == nil && n >= 0 {
			return n, nil
		}
	}
	return 0, &UnexpectedResponseError{Line: line, Want: "count"}
}

// SplitIDs strips the "* <keyword>" prefix and returns the remaining
// whitespace-separated identifiers in server order.
func SplitIDs(line, keyword string) ([]string, error) {
	l := ParseLine(line)
	if l.Tag != "*" || !strings.EqualFold(l.Status, keyword) {
		return nil, &UnexpectedResponseError{Line: line, Want: "* " + keyword}
	}
	ids := strings.Fields(l.Rest)
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SplitSortIDs parses an untagged SORT response.
func SplitSortIDs(line string) ([]string, error) {
	return SplitIDs(line, "SORT")
}

// SplitSearchIDs parses an untagged SEARCH response.
func SplitSearchIDs(line string) ([]string, error) {
	return SplitIDs(line, "SEARCH")
}

// ParseFetchID returns the message number of an untagged FETCH response such
// as "* 3 FETCH (UID 7 ...".
func ParseFetchID(line string) (string, error) {
	l := ParseLine(line)
	if l.Tag != "*" {
		return "", &UnexpectedResponseError{Line: line, Want: "* <n> FETCH"}
	}
	if _, err := strconv.Atoi(l.Status); err != nil {
		return "", &UnexpectedResponseError{Line: line, Want: "* <n> FETCH"}
	}
	if verb, _, _ := strings.Cut(l.Rest, " "); !strings.EqualFold(verb, "FETCH") {
		return "", &UnexpectedResponseError{Line: line, Want: "* <n> FETCH"}
	}
	return l.Status, nil
}

// ReplyCode returns the numeric reply code of an LMTP response line.
func ReplyCode(line string) (int, error) {
	l := ParseLine(line)
	if !isReplyCode(l.Tag) {
		return 0, &UnexpectedResponseError{Line: line, Want: "reply code"}
	}
	code, _ := strconv.Atoi(l.Tag)
	return code, nil
}

// ExpectCode reads LMTP reply lines from r until the final line of a
// (possibly multi-line) reply and checks its code.
func ExpectCode(r LineReader, code int) (string, error) {
	for {
		line, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		got, err := ReplyCode(line)
		if err != nil {
			return line, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		if got != code {
			return line, fmt.Errorf("%w: expected status code %d: %s", ErrProtocol, code, line)
		}
		if !ParseLine(line).Continued {
			return line, nil
		}
	}
}

func isReplyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
