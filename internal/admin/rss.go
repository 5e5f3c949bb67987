package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RSSSampler reads the resident set size of the first process whose command
// line contains Pattern from the process table.
type RSSSampler struct {
	Runner  Runner
	Pattern string
	PS      string // ps binary; empty → "ps"
}

// SampleRSS returns the resident set size in kilobytes.
func (s *RSSSampler) SampleRSS(ctx context.Context) (int64, error) {
	ps := s.PS
	if ps == "" {
		ps = "ps"
	}
	res, err := s.Runner.Run(ctx, Command{Path: ps, Args: []string{"ax", "-o", "command,rss"}})
	if err != nil {
		return 0, err
	}
	if res.Status != 0 {
		return 0, &ExitError{Path: ps, Status: res.Status, Output: string(res.Output)}
	}
	return parseRSS(string(res.Output), s.Pattern)
}

// parseRSS finds the first line of ps output matching pattern, skipping the
// header and grep itself, and returns its last field.
func parseRSS(out, pattern string) (int64, error) {
	for i, line := range strings.Split(out, "\n") {
		if i == 0 && strings.HasPrefix(strings.TrimSpace(line), "COMMAND") {
			continue
		}
		if !strings.Contains(line, pattern) || strings.HasPrefix(line, "grep") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		rss, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rss of %q: %w", line, err)
		}
		return rss, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrProcessNotFound, pattern)
}
