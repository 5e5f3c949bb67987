package admin

import (
	"context"
	"errors"
	"slices"
	"testing"
)

const psOutput = `COMMAND                      RSS
/sbin/init                   11840
dovecot/imap-login            4120
grep imap                      980
dovecot/imap                  6544
`

func TestParseRSS(t *testing.T) {
	tests := []struct {
		pattern string
		want    int64
	}{
		{"imap", 4120},
		{"dovecot/imap ", 6544},
		{"init", 11840},
	}
	for _, tt := range tests {
		got, err := parseRSS(psOutput, tt.pattern)
		if err != nil {
			t.Errorf("parseRSS(%q): %v", tt.pattern, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRSS(%q) = %d, want %d", tt.pattern, got, tt.want)
		}
	}
}

func TestParseRSSNotFound(t *testing.T) {
	if _, err := parseRSS(psOutput, "pop3"); !errors.Is(err, ErrProcessNotFound) {
		t.Errorf("err = %v, want ErrProcessNotFound", err)
	}
}

func TestSampleRSS(t *testing.T) {
	r := &fakeRunner{result: Result{Output: []byte(psOutput)}}
	s := &RSSSampler{Runner: r, Pattern: "dovecot/imap "}

	got, err := s.SampleRSS(context.Background())
	if err != nil {
		t.Fatalf("SampleRSS: %v", err)
	}
	if got != 6544 {
		t.Errorf("rss = %d, want 6544", got)
	}
	call := r.calls[0]
	if call.Path != "ps" || !slices.Equal(call.Args, []string{"ax", "-o", "command,rss"}) {
		t.Errorf("command = %s %q", call.Path, call.Args)
	}
}

func TestSampleRSSExitStatus(t *testing.T) {
	s := &RSSSampler{Runner: &fakeRunner{result: Result{Status: 1}}, Pattern: "imap"}
	var exitErr *ExitError
	if _, err := s.SampleRSS(context.Background()); !errors.As(err, &exitErr) {
		t.Errorf("err = %v, want ExitError", err)
	}
}
