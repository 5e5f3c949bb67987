// Package attachment encodes and decodes the synthetic zero-filled binary
// payload used to exercise size-sensitive delivery and retrieval paths.
package attachment

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// BytesPerLine is the number of raw bytes carried by each full encoded line.
const BytesPerLine = 45

// LineMarker is the leading character of every encoded attachment line. The
// base64 encoding of a zero byte run always starts with it.
const LineMarker = 'A'

var zeros [BytesPerLine]byte

// LineCount returns the number of lines Encode produces for n bytes.
func LineCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + BytesPerLine - 1) / BytesPerLine
}

// EncodeTo streams the encoding of n zero bytes to emit, one line at a time.
// Every line carries BytesPerLine bytes except the last, which carries the
// remainder.
func EncodeTo(n int, emit func(line string) error) error {
	if n < 0 {
		return fmt.Errorf("attachment size must not be negative: %d", n)
	}
	full := base64.StdEncoding.EncodeToString(zeros[:])
	for sent := 0; sent < n; {
		chunk := min(n-sent, BytesPerLine)
		line := full
		if chunk < BytesPerLine {
			line = base64.StdEncoding.EncodeToString(zeros[:chunk])
		}
		if err := emit(line); err != nil {
			return err
		}
		sent += chunk
	}
	return nil
}

// Encode returns the encoded lines for n zero bytes.
func Encode(n int) []string {
	lines := make([]string, 0, LineCount(n))
	_ = EncodeTo(n, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	return lines
}

// IsLine reports whether line looks like an encoded attachment line.
func IsLine(line string) bool {
	return len(line) > 0 && line[0] == LineMarker
}

// DecodeLine returns the number of raw bytes carried by line. ok is false for
// lines that are not attachment lines, such as headers and boundaries.
func DecodeLine(line string) (n int, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !IsLine(line) {
		return 0, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return 0, true, fmt.Errorf("decode attachment line: %w", err)
	}
	return len(raw), true, nil
}

// Decode sums the decoded byte length of every attachment line in lines.
func Decode(lines []string) (int, error) {
	total := 0
	for _, l := range lines {
		n, _, err := DecodeLine(l)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
