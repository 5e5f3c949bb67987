package imap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/infodancer/mailprobe/internal/attachment"
	"github.com/infodancer/mailprobe/internal/lmtp"
	"github.com/infodancer/mailprobe/internal/wire"
)

// HeaderFields are requested by FetchMailHeaders.
var HeaderFields = []string{
	"DATE", "FROM", "TO", "SUBJECT", "CONTENT-TYPE", "CC", "REPLY-TO",
	"LIST-POST", "DISPOSITION-NOTIFICATION-TO", "X-PRIORITY",
}

// Attachment is a fetched synthetic multipart message.
type Attachment struct {
	Text string // trimmed text/plain part
	Size int    // decoded attachment bytes
}

// Part is one fetched MIME sub-part.
type Part struct {
	Text   string
	Length int
}

// FetchMail returns the full body of message number in the selected mailbox.
// The stream ending before the literal block closes is wire.ErrBrokenStream.
func (s *Session) FetchMail(number int) (string, error) {
	body, err := s.fetchBody(number)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(body, "\n"), nil
}

// FetchMailWithAttachment fetches a message built by
// lmtp.Client.DeliverWithAttachment and returns its text part and the
// decoded size of its attachment part.
func (s *Session) FetchMailWithAttachment(number int) (Attachment, error) {
	body, err := s.fetchBody(number)
	if err != nil {
		return Attachment{}, err
	}
	return splitMultipart(body)
}

// FetchMailParts fetches the MIME header of the second body part of every
// message in ids, in input order.
func (s *Session) FetchMailParts(ids []string) ([]Part, error) {
	parts := make([]Part, 0, len(ids))
	for _, id := range ids {
		cmd, err := s.send("FETCH", id+" BODY.PEEK[2.MIME]")
		if err != nil {
			return nil, err
		}
		if _, err := wire.ReadExpected(s.conn, "*", id); err != nil {
			return nil, s.fail(cmd, err)
		}
		text, err := wire.ReadBlock(s.conn)
		if err != nil {
			return nil, s.fail(cmd, err)
		}
		if err := s.complete(cmd); err != nil {
			return nil, err
		}
		parts = append(parts, Part{Text: text, Length: len(text)})
	}
	return parts, nil
}

// Sort returns all message identifiers ordered by field, as the server
// returned them.
func (s *Session) Sort(field string, reverse bool) ([]string, error) {
	criteria := strings.ToUpper(field)
	if reverse {
		criteria = "REVERSE " + criteria
	}
	cmd, err := s.send("SORT", "("+criteria+") US-ASCII ALL")
	if err != nil {
		return nil, err
	}
	line, err := wire.ReadExpected(s.conn, "*", "SORT")
	if err != nil {
		return nil, s.fail(cmd, err)
	}
	ids, err := wire.SplitSortIDs(line)
	if err != nil {
		return nil, s.fail(cmd, err)
	}
	if err := s.complete(cmd); err != nil {
		return nil, err
	}
	return ids, nil
}

// Search returns the identifiers matching q in server order.
func (s *Session) Search(q SearchQuery) ([]string, error) {
	cmd, err := s.send("SEARCH", q.String())
	if err != nil {
		return nil, err
	}
	line, err := wire.ReadExpected(s.conn, "*", "SEARCH")
	if err != nil {
		return nil, s.fail(cmd, err)
	}
	ids, err := wire.SplitSearchIDs(line)
	if err != nil {
		return nil, s.fail(cmd, err)
	}
	if err := s.complete(cmd); err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchMailHeaders fetches the HeaderFields of every message in ids with one
// batched command. Responses arrive in server order; the result follows the
// order of ids.
func (s *Session) FetchMailHeaders(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	distinct := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		distinct[id] = struct{}{}
	}

	items := "(UID RFC822.SIZE FLAGS INTERNALDATE BODY.PEEK[HEADER.FIELDS (" + strings.Join(HeaderFields, " ") + ")])"
	cmd, err := s.send("FETCH", sequenceSet(ids)+" "+items)
	if err != nil {
		return nil, err
	}

	// Untagged pushes such as "* 3 EXISTS" may be interleaved with the
	// FETCH responses and are skipped.
	responses := make(map[string]string, len(distinct))
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			return nil, s.fail(cmd, err)
		}
		l := wire.ParseLine(line)
		if l.Tag == cmd.Tag.String() {
			if err := wire.Expect(line, cmd.Tag.String(), "OK"); err != nil {
				return nil, s.fail(cmd, err)
			}
			break
		}
		if l.Tag != "*" {
			return nil, s.fail(cmd, &wire.UnexpectedResponseError{Line: line, Want: "* <n> FETCH"})
		}
		id, err := wire.ParseFetchID(line)
		if err != nil {
			continue
		}
		block, err := wire.ReadBlock(s.conn)
		if err != nil {
			return nil, s.fail(cmd, err)
		}
		responses[id] = block
	}

	headers := make([]string, len(ids))
	for i, id := range ids {
		h, ok := responses[id]
		if !ok {
			return nil, fmt.Errorf("%w %s", ErrMissingFetchResponse, id)
		}
		headers[i] = h
	}
	return headers, nil
}

// Store adds flags to every message in ids. An empty ids sends nothing.
func (s *Session) Store(ids []string, flags []string) error {
	if len(ids) == 0 {
		return nil
	}
	cmd, err := s.send("STORE", sequenceSet(ids)+" +FLAGS ("+strings.Join(flags, " ")+")")
	if err != nil {
		return err
	}
	return s.complete(cmd)
}

// fetchBody fetches BODY.PEEK[] of number and returns the literal block with
// every line terminated by "\n".
func (s *Session) fetchBody(number int) (string, error) {
	id := strconv.Itoa(number)
	cmd, err := s.send("FETCH", id+" BODY.PEEK[]")
	if err != nil {
		return "", err
	}
	if _, err := wire.ReadExpected(s.conn, "*", id); err != nil {
		return "", s.fail(cmd, err)
	}
	body, err := wire.ReadBlock(s.conn)
	if err != nil {
		return "", s.fail(cmd, err)
	}
	if err := s.complete(cmd); err != nil {
		return "", err
	}
	s.collector.MessageFetched(int64(len(body)))
	return body, nil
}

// splitMultipart extracts the text part and the attachment size from a
// synthetic multipart body. The text is everything between the text/plain
// part header and the next boundary; attachment lines are only counted after
// that boundary, so a text part that happens to start with the line marker is
// never decoded.
func splitMultipart(body string) (Attachment, error) {
	lines := strings.Split(body, "\n")

	start := -1
	for i, l := range lines {
		name, value, ok := strings.Cut(l, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Type") &&
			strings.EqualFold(strings.TrimSpace(value), "text/plain") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return Attachment{}, fmt.Errorf("%w: no text/plain part", wire.ErrUnexpectedResponse)
	}
	end := -1
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == lmtp.Boundary {
			end = i
			break
		}
	}
	if end < 0 {
		return Attachment{}, fmt.Errorf("%w: unterminated text part", wire.ErrUnexpectedResponse)
	}

	size, err := attachment.Decode(lines[end+1:])
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{
		Text: strings.TrimSpace(strings.Join(lines[start:end], "\n")),
		Size: size,
	}, nil
}
