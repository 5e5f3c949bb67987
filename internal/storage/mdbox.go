package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

const returnPath = "Return-Path:"

// MdboxInspector reads dovecot mdbox storage files under
// <home>/<user>/mail/storage/m.*.
type MdboxInspector struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	cached []string
	loaded bool
}

// NewMdboxInspector returns an inspector for user's mail below home.
func NewMdboxInspector(home, user string, logger *slog.Logger) *MdboxInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &MdboxInspector{
		dir:    filepath.Join(home, user, "mail"),
		logger: logger.With("inspector", "mdbox", "user", user),
	}
}

// FindMailDeliveredTo implements Inspector.
func (m *MdboxInspector) FindMailDeliveredTo(ctx context.Context, user string) ([]string, error) {
	return m.FindMailWith(ctx, DeliveredToPattern(user))
}

// FindMailWith implements Inspector.
func (m *MdboxInspector) FindMailWith(ctx context.Context, pattern *regexp.Regexp) ([]string, error) {
	headers, err := m.mails()
	if err != nil {
		return nil, err
	}
	return filter(headers, pattern), nil
}

// Clear removes the user's mail directory and forgets cached contents.
func (m *MdboxInspector) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached, m.loaded = nil, false
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("clear %s: %w", m.dir, err)
	}
	m.logger.Debug("mail directory removed", "dir", m.dir)
	return nil
}

// mails reads the storage files once and caches the header blocks until
// the next Clear.
func (m *MdboxInspector) mails() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return m.cached, nil
	}

	files, err := filepath.Glob(filepath.Join(m.dir, "storage", "m.*"))
	if err != nil {
		return nil, fmt.Errorf("list storage files: %w", err)
	}
	headers := []string{}
	for _, name := range files {
		content, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		headers = append(headers, splitHeaders(string(content))...)
	}
	m.logger.Debug("storage files read", "files", len(files), "messages", len(headers))
	m.cached, m.loaded = headers, true
	return headers, nil
}

// splitHeaders returns each "Return-Path:" header block of an mdbox file.
func splitHeaders(content string) []string {
	var headers []string
	from := 0
	for {
		i := strings.Index(content[from:], returnPath)
		if i < 0 {
			return headers
		}
		start := from + i
		block := content[start:]
		if end := strings.Index(block, "\n\n"); end >= 0 {
			block = block[:end]
		}
		headers = append(headers, block)
		from = start + len(returnPath)
	}
}
