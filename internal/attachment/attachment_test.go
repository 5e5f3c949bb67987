package attachment

import (
	"strings"
	"testing"
)

func TestEncodeLineCount(t *testing.T) {
	tests := []struct {
		size  int
		lines int
		last  int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{44, 1, 44},
		{45, 1, 45},
		{46, 2, 1},
		{90, 2, 45},
		{2 * 1024 * 1024, 46604, 2*1024*1024 - 46603*45},
	}

	for _, tt := range tests {
		lines := Encode(tt.size)
		if len(lines) != tt.lines {
			t.Errorf("Encode(%d) produced %d lines, want %d", tt.size, len(lines), tt.lines)
			continue
		}
		if LineCount(tt.size) != tt.lines {
			t.Errorf("LineCount(%d) = %d, want %d", tt.size, LineCount(tt.size), tt.lines)
		}
		if tt.lines == 0 {
			continue
		}
		n, ok, err := DecodeLine(lines[len(lines)-1])
		if err != nil || !ok {
			t.Fatalf("DecodeLine(last) ok=%v err=%v", ok, err)
		}
		if n != tt.last {
			t.Errorf("Encode(%d) last line carries %d bytes, want %d", tt.size, n, tt.last)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 2, 3, 44, 45, 46, 89, 90, 91, 1000, 3 * 1024 * 1024}
	for _, n := range sizes {
		got, err := Decode(Encode(n))
		if err != nil {
			t.Fatalf("Decode(Encode(%d)) error = %v", n, err)
		}
		if got != n {
			t.Errorf("Decode(Encode(%d)) = %d", n, got)
		}
	}
}

func TestEncodeNegative(t *testing.T) {
	err := EncodeTo(-1, func(string) error { return nil })
	if err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestDecodeIgnoresNonAttachmentLines(t *testing.T) {
	lines := []string{
		"Content-Type: application/octet-stream",
		"---separator---",
		"",
	}
	lines = append(lines, Encode(100)...)
	lines = append(lines, "---separator---", "command_04 OK Fetch completed.")

	got, err := Decode(lines)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != 100 {
		t.Errorf("Decode() = %d, want 100", got)
	}
}

func TestDecodeLineTrimsTerminator(t *testing.T) {
	n, ok, err := DecodeLine("AAAA\r\n")
	if err != nil || !ok || n != 3 {
		t.Errorf("DecodeLine(AAAA CRLF) = %d, %v, %v; want 3, true, nil", n, ok, err)
	}
}

func TestDecodeLineInvalid(t *testing.T) {
	_, ok, err := DecodeLine("A*bad")
	if !ok {
		t.Error("expected marker line to be recognised")
	}
	if err == nil || !strings.Contains(err.Error(), "decode attachment line") {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestEncodeToStopsOnError(t *testing.T) {
	calls := 0
	stop := errStop{}
	err := EncodeTo(1000, func(string) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Fatalf("EncodeTo() error = %v, want errStop", err)
	}
	if calls != 2 {
		t.Errorf("emit called %d times, want 2", calls)
	}
}

type errStop struct{}

func (errStop) Error() string { return "stop" }
