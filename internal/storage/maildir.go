package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"

	"github.com/infodancer/msgstore"
	_ "github.com/infodancer/msgstore/maildir" // Register maildir storage backend
)

// MaildirInspector reads a user's maildir through msgstore.
type MaildirInspector struct {
	store   msgstore.MsgStore
	mailbox string
	logger  *slog.Logger
}

// OpenMaildirInspector opens the maildir tree at basePath. subdir is the
// per-user maildir directory name; empty means the user directory itself.
func OpenMaildirInspector(basePath, subdir, user string, logger *slog.Logger) (*MaildirInspector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := msgstore.StoreConfig{
		Type:     "maildir",
		BasePath: basePath,
	}
	if subdir != "" {
		cfg.Options = map[string]string{"maildir_subdir": subdir}
	}
	store, err := msgstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open maildir %s: %w", basePath, err)
	}
	return NewMaildirInspector(store, user, logger), nil
}

// NewMaildirInspector wraps an already opened store.
func NewMaildirInspector(store msgstore.MsgStore, user string, logger *slog.Logger) *MaildirInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaildirInspector{
		store:   store,
		mailbox: user,
		logger:  logger.With("inspector", "maildir", "user", user),
	}
}

// FindMailDeliveredTo implements Inspector.
func (m *MaildirInspector) FindMailDeliveredTo(ctx context.Context, user string) ([]string, error) {
	return m.FindMailWith(ctx, DeliveredToPattern(user))
}

// FindMailWith implements Inspector.
func (m *MaildirInspector) FindMailWith(ctx context.Context, pattern *regexp.Regexp) ([]string, error) {
	msgs, err := m.store.List(ctx, m.mailbox)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.mailbox, err)
	}
	headers := make([]string, 0, len(msgs))
	for _, info := range msgs {
		content, err := m.retrieve(ctx, info.UID)
		if err != nil {
			return nil, err
		}
		headers = append(headers, headerBlock(content))
	}
	m.logger.Debug("maildir read", "messages", len(headers))
	return filter(headers, pattern), nil
}

// Clear deletes every message in the mailbox.
func (m *MaildirInspector) Clear(ctx context.Context) error {
	msgs, err := m.store.List(ctx, m.mailbox)
	if err != nil {
		return fmt.Errorf("list %s: %w", m.mailbox, err)
	}
	for _, info := range msgs {
		if err := m.store.Delete(ctx, m.mailbox, info.UID); err != nil {
			return fmt.Errorf("delete %s: %w", info.UID, err)
		}
	}
	if err := m.store.Expunge(ctx, m.mailbox); err != nil {
		return fmt.Errorf("expunge %s: %w", m.mailbox, err)
	}
	m.logger.Debug("maildir cleared", "messages", len(msgs))
	return nil
}

func (m *MaildirInspector) retrieve(ctx context.Context, uid string) (string, error) {
	rc, err := m.store.Retrieve(ctx, m.mailbox, uid)
	if err != nil {
		return "", fmt.Errorf("retrieve %s: %w", uid, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", uid, err)
	}
	return string(b), nil
}
