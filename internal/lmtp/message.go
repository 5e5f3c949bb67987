package lmtp

import (
	"time"

	"github.com/infodancer/mailprobe/internal/attachment"
)

// Boundary separates the parts of a synthetic multipart message.
const Boundary = "---separator---"

// DateLayout is the layout of the Date header in generated messages.
const DateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// writeMultipart streams a two-part message: a text/plain part holding text
// and an application/octet-stream part carrying attachmentSize zero bytes.
func writeMultipart(now time.Time, text string, attachmentSize int, emit func(string) error) error {
	head := []string{
		"Date: " + now.Format(DateLayout),
		"Subject: test multipart",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="` + Boundary + `"`,
		"",
		"This message has multiple parts",
		"",
		Boundary,
		"Content-Type: text/plain",
		"",
		text,
		Boundary,
		"Content-Type: application/octet-stream",
		"Content-Transfer-Encoding: base64",
		"",
	}
	for _, l := range head {
		if err := emit(l); err != nil {
			return err
		}
	}
	if err := attachment.EncodeTo(attachmentSize, emit); err != nil {
		return err
	}
	return emit(Boundary)
}
