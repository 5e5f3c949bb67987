package wire

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// lines is a LineReader over a fixed script. Reading past the end returns
// ErrBrokenStream, like a peer that closed the connection.
type lines []string

func (l *lines) ReadLine() (string, error) {
	if len(*l) == 0 {
		return "", fmt.Errorf("%w: peer closed connection", ErrBrokenStream)
	}
	line := (*l)[0]
	*l = (*l)[1:]
	return line, nil
}

func script(s ...string) *lines {
	l := lines(s)
	return &l
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		raw  string
		want Line
	}{
		{"* OK [CAPABILITY IMAP4rev1] ready", Line{Tag: "*", Status: "OK", Rest: "[CAPABILITY IMAP4rev1] ready"}},
		{"command_02 OK [READ-WRITE] Select completed.", Line{Tag: "command_02", Status: "OK", Rest: "[READ-WRITE] Select completed."}},
		{"*  5   EXISTS", Line{Tag: "*", Status: "5", Rest: "EXISTS"}},
		{"250-PIPELINING", Line{Tag: "250", Status: "PIPELINING", Continued: true}},
		{"250 2.1.0 OK", Line{Tag: "250", Status: "2.1.0", Rest: "OK"}},
		{"221", Line{Tag: "221"}},
		{"", Line{}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseLine(tt.raw)
			tt.want.Raw = tt.raw
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExpect(t *testing.T) {
	tests := []struct {
		line, id, status string
		ok               bool
	}{
		{"* OK ready", "*", "OK", true},
		{"* ok ready", "*", "OK", true},
		{"* BYE gone", "*", "OK", false},
		{"command_01 OK Logged in", "command_01", "OK", true},
		{"command_01 NO [AUTHENTICATIONFAILED] failed", "command_01", "OK", false},
		{"command_02 OK done", "command_01", "", false},
		{"anything at all", Wildcard, "", true},
		{"* 3 FETCH (BODY[] {12}", "*", "3", true},
	}

	for _, tt := range tests {
		err := Expect(tt.line, tt.id, tt.status)
		if tt.ok && err != nil {
			t.Errorf("Expect(%q, %q, %q) = %v, want nil", tt.line, tt.id, tt.status, err)
		}
		if !tt.ok {
			var ure *UnexpectedResponseError
			if !errors.As(err, &ure) {
				t.Errorf("Expect(%q, %q, %q) = %v, want *UnexpectedResponseError", tt.line, tt.id, tt.status, err)
				continue
			}
			if ure.Line != tt.line {
				t.Errorf("error line = %q, want %q", ure.Line, tt.line)
			}
			if !errors.Is(err, ErrUnexpectedResponse) {
				t.Error("error does not match ErrUnexpectedResponse")
			}
		}
	}
}

func TestReadUntilTag(t *testing.T) {
	r := script("* 1 FETCH (FLAGS (\\Seen))", "* 2 FETCH (FLAGS (\\Seen))", "command_11 OK Store completed.", "extra")
	line, err := ReadUntilTag(r, "command_11")
	if err != nil {
		t.Fatalf("ReadUntilTag() error = %v", err)
	}
	if line != "command_11 OK Store completed." {
		t.Errorf("ReadUntilTag() = %q", line)
	}
	if len(*r) != 1 {
		t.Errorf("ReadUntilTag consumed past the tagged line, %d left", len(*r))
	}
}

func TestReadUntilTagBrokenStream(t *testing.T) {
	_, err := ReadUntilTag(script("* SEARCH 1"), "command_07")
	if !errors.Is(err, ErrBrokenStream) {
		t.Errorf("ReadUntilTag() error = %v, want ErrBrokenStream", err)
	}
}

func TestReadBlock(t *testing.T) {
	r := script("Subject: test", "", "test message one", "  )  ", "command_03 OK")
	got, err := ReadBlock(r)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if want := "Subject: test\n\ntest message one\n"; got != want {
		t.Errorf("ReadBlock() = %q, want %q", got, want)
	}
	if len(*r) != 1 {
		t.Errorf("ReadBlock consumed the tagged line")
	}
}

func TestReadBlockBrokenStream(t *testing.T) {
	_, err := ReadBlock(script("partial body"))
	if !errors.Is(err, ErrBrokenStream) {
		t.Errorf("ReadBlock() error = %v, want ErrBrokenStream", err)
	}
}

func TestReadCount(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"* 5 EXISTS", 5, true},
		{"* 0 RECENT", 0, true},
		{"* 12 EXISTS ", 12, true},
		{"* OK no numbers here", 0, false},
	}
	for _, tt := range tests {
		got, err := ReadCount(tt.line)
		if tt.ok != (err == nil) {
			t.Errorf("ReadCount(%q) error = %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadCount(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		name  string
		split func(string) ([]string, error)
		line  string
		want  []string
		ok    bool
	}{
		{"sort", SplitSortIDs, "* SORT 5 4 3 2 1", []string{"5", "4", "3", "2", "1"}, true},
		{"sort spaces", SplitSortIDs, "* SORT  2   1 ", []string{"2", "1"}, true},
		{"search empty", SplitSearchIDs, "* SEARCH", []string{}, true},
		{"search", SplitSearchIDs, "* SEARCH 3 1", []string{"3", "1"}, true},
		{"wrong keyword", SplitSearchIDs, "* SORT 1", nil, false},
		{"tagged", SplitSortIDs, "command_06 OK", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.split(tt.line)
			if tt.ok != (err == nil) {
				t.Fatalf("error = %v", err)
			}
			if tt.ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFetchID(t *testing.T) {
	id, err := ParseFetchID("* 17 FETCH (UID 17 RFC822.SIZE 220")
	if err != nil || id != "17" {
		t.Errorf("ParseFetchID() = %q, %v", id, err)
	}
	if _, err := ParseFetchID("* OK done"); err == nil {
		t.Error("expected error for non-numeric fetch id")
	}
	for _, push := range []string{"* 3 EXISTS", "* 2 EXPUNGE", "* 1 RECENT"} {
		if _, err := ParseFetchID(push); err == nil {
			t.Errorf("ParseFetchID(%q) accepted a non-FETCH response", push)
		}
	}
}

func TestExpectCode(t *testing.T) {
	r := script("250-localhost", "250-PIPELINING", "250 8BITMIME", "next")
	line, err := ExpectCode(r, 250)
	if err != nil {
		t.Fatalf("ExpectCode() error = %v", err)
	}
	if line != "250 8BITMIME" {
		t.Errorf("ExpectCode() = %q", line)
	}

	_, err = ExpectCode(script("550 5.1.1 unknown user"), 250)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("ExpectCode() error = %v, want ErrProtocol", err)
	}

	_, err = ExpectCode(script("garbage"), 250)
	if !errors.Is(err, ErrProtocol) || !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("ExpectCode(garbage) error = %v", err)
	}

	_, err = ExpectCode(script(), 250)
	if !errors.Is(err, ErrBrokenStream) {
		t.Errorf("ExpectCode(empty) error = %v, want ErrBrokenStream", err)
	}
}
