package imap

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// ParseHeader decodes a header block returned by FetchMailHeaders.
func ParseHeader(raw string) (mail.Header, error) {
	if !strings.HasSuffix(raw, "\n\n") {
		raw = strings.TrimRight(raw, "\n") + "\n\n"
	}
	h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		return mail.Header{}, fmt.Errorf("parse header: %w", err)
	}
	return mail.Header{Header: message.Header{Header: h}}, nil
}
