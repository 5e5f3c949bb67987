package imap

import (
	"testing"
	"time"
)

func TestParseHeader(t *testing.T) {
	raw := "Date: Sat, 01 Jan 2000 01:04:00 +0000\nSubject: test 4\n\n"
	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	subject, err := h.Subject()
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	if subject != "test 4" {
		t.Errorf("subject = %q, want %q", subject, "test 4")
	}
	date, err := h.Date()
	if err != nil {
		t.Fatalf("Date: %v", err)
	}
	want := time.Date(2000, 1, 1, 1, 4, 0, 0, time.UTC)
	if !date.Equal(want) {
		t.Errorf("date = %v, want %v", date, want)
	}
}

func TestParseHeaderWithoutTrailingBlankLine(t *testing.T) {
	h, err := ParseHeader("Subject: no blank")
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got := h.Get("Subject"); got != "no blank" {
		t.Errorf("subject = %q", got)
	}
}
