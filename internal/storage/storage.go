// Package storage inspects the mail server's on-disk store directly, without
// going through a protocol. It is used to assert on what was (or was not)
// written to disk in the clear.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Inspector returns the header blocks of messages stored for one user.
type Inspector interface {
	// FindMailDeliveredTo returns the stored header blocks addressed to user.
	FindMailDeliveredTo(ctx context.Context, user string) ([]string, error)
	// FindMailWith returns the stored header blocks matching pattern.
	FindMailWith(ctx context.Context, pattern *regexp.Regexp) ([]string, error)
	// Clear removes the user's stored mail.
	Clear(ctx context.Context) error
}

// DeliveredToPattern matches the Delivered-To header the server adds for user.
func DeliveredToPattern(user string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`Delivered-To: <%s>`, regexp.QuoteMeta(user)))
}

func filter(headers []string, pattern *regexp.Regexp) []string {
	matched := []string{}
	for _, h := range headers {
		if pattern.MatchString(h) {
			matched = append(matched, h)
		}
	}
	return matched
}

// headerBlock returns content up to the first blank line, with CRLF line
// endings folded to LF.
func headerBlock(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if i := strings.Index(content, "\n\n"); i >= 0 {
		return content[:i]
	}
	return content
}
