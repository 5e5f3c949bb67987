// Package mailer composes the delivery client and the retrieval session into
// the operations a mail server test drives: deliver once, then open a fresh
// authenticated session for every retrieval.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/infodancer/mailprobe/internal/config"
	"github.com/infodancer/mailprobe/internal/imap"
	"github.com/infodancer/mailprobe/internal/metrics"
	"github.com/infodancer/mailprobe/internal/wire"
)

// MemorySampler reports the resident memory of the server process in
// kilobytes.
type MemorySampler interface {
	SampleRSS(ctx context.Context) (int64, error)
}

// FacadeConfig configures a Facade.
type FacadeConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string               // empty → "INBOX"
	Auth     config.AuthMechanism // empty → LOGIN

	Wire      wire.Options
	Logger    *slog.Logger      // nil → slog.Default()
	Collector metrics.Collector // nil → NoopCollector
	Limiter   *SessionLimiter   // nil → unbounded
}

// Facade runs each retrieval operation in its own session: open, log in,
// select, act, log out. Methods may be called concurrently; each call uses
// its own connection.
type Facade struct {
	cfg    FacadeConfig
	logger *slog.Logger

	mu       sync.Mutex
	password string
}

// NewFacade returns a Facade for cfg.
func NewFacade(cfg FacadeConfig) *Facade {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Collector == nil {
		cfg.Collector = &metrics.NoopCollector{}
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Facade{
		cfg:      cfg,
		logger:   cfg.Logger.With("username", cfg.Username),
		password: cfg.Password,
	}
}

// SetPassword changes the password used by subsequent sessions.
func (f *Facade) SetPassword(password string) {
	f.mu.Lock()
	f.password = password
	f.mu.Unlock()
}

func (f *Facade) currentPassword() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.password
}

// Receive fetches every message in the mailbox by position.
func (f *Facade) Receive(ctx context.Context) ([]string, error) {
	var mails []string
	err := f.withSession(ctx, func(s *imap.Session) error {
		mb, err := s.Select(f.cfg.Mailbox)
		if err != nil {
			return err
		}
		mails = make([]string, 0, mb.Existing)
		for n := 1; n <= mb.Existing; n++ {
			mail, err := s.FetchMail(n)
			if err != nil {
				return err
			}
			mails = append(mails, mail)
		}
		return nil
	})
	return mails, err
}

// ReceiveWithAttachment fetches every message as a synthetic multipart
// message and returns its text and decoded attachment size.
func (f *Facade) ReceiveWithAttachment(ctx context.Context) ([]imap.Attachment, error) {
	var mails []imap.Attachment
	err := f.withSession(ctx, func(s *imap.Session) error {
		mb, err := s.Select(f.cfg.Mailbox)
		if err != nil {
			return err
		}
		mails = make([]imap.Attachment, 0, mb.Existing)
		for n := 1; n <= mb.Existing; n++ {
			mail, err := s.FetchMailWithAttachment(n)
			if err != nil {
				return err
			}
			mails = append(mails, mail)
		}
		return nil
	})
	return mails, err
}

// ReceiveHeaders sorts the mailbox by field and returns the header blocks in
// sorted order.
func (f *Facade) ReceiveHeaders(ctx context.Context, field string, reverse bool) ([]string, error) {
	var headers []string
	err := f.within(ctx, func(s *imap.Session) error {
		ids, err := s.Sort(field, reverse)
		if err != nil {
			return err
		}
		headers, err = s.FetchMailHeaders(ids)
		return err
	})
	return headers, err
}

// ReceivePart fetches the second MIME part header of every message.
func (f *Facade) ReceivePart(ctx context.Context) ([]imap.Part, error) {
	var parts []imap.Part
	err := f.within(ctx, func(s *imap.Session) error {
		ids, err := s.Search(imap.SearchQuery{})
		if err != nil {
			return err
		}
		parts, err = s.FetchMailParts(ids)
		return err
	})
	return parts, err
}

// Search returns the ids matching q.
func (f *Facade) Search(ctx context.Context, q imap.SearchQuery) ([]string, error) {
	var ids []string
	err := f.within(ctx, func(s *imap.Session) error {
		var err error
		ids, err = s.Search(q)
		return err
	})
	return ids, err
}

// Store adds flags to every message in the mailbox.
func (f *Facade) Store(ctx context.Context, flags ...string) error {
	return f.within(ctx, func(s *imap.Session) error {
		ids, err := s.Search(imap.SearchQuery{})
		if err != nil {
			return err
		}
		return s.Store(ids, flags)
	})
}

// MultipleReceiveCycles keeps one session open, fetches every message once,
// samples the server's memory, fetches everything count more times and
// returns the growth in kilobytes.
func (f *Facade) MultipleReceiveCycles(ctx context.Context, count int, sampler MemorySampler) (int64, error) {
	var delta int64
	err := f.withSession(ctx, func(s *imap.Session) error {
		mb, err := s.Select(f.cfg.Mailbox)
		if err != nil {
			return err
		}
		fetchAll := func() error {
			for n := 1; n <= mb.Existing; n++ {
				if _, err := s.FetchMail(n); err != nil {
					return err
				}
			}
			return nil
		}

		if err := fetchAll(); err != nil {
			return err
		}
		before, err := sampler.SampleRSS(ctx)
		if err != nil {
			return fmt.Errorf("sample memory: %w", err)
		}
		f.cfg.Collector.ResidentMemory(before)
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fetchAll(); err != nil {
				return err
			}
		}
		after, err := sampler.SampleRSS(ctx)
		if err != nil {
			return fmt.Errorf("sample memory: %w", err)
		}
		f.cfg.Collector.ResidentMemory(after)
		delta = after - before
		f.logger.Debug("receive cycles complete", "cycles", count, "messages", mb.Existing, "rss_before", before, "rss_after", after)
		return nil
	})
	return delta, err
}

// within runs fn in a session with the mailbox selected.
func (f *Facade) within(ctx context.Context, fn func(*imap.Session) error) error {
	return f.withSession(ctx, func(s *imap.Session) error {
		if _, err := s.Select(f.cfg.Mailbox); err != nil {
			return err
		}
		return fn(s)
	})
}

// withSession opens and authenticates a session, runs fn and logs out. The
// transport is closed on every path.
func (f *Facade) withSession(ctx context.Context, fn func(*imap.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.cfg.Limiter.Acquire(); err != nil {
		return err
	}
	defer f.cfg.Limiter.Release()

	s, err := imap.Open(ctx, imap.Options{
		Host:      f.cfg.Host,
		Port:      f.cfg.Port,
		Wire:      f.cfg.Wire,
		Logger:    f.cfg.Logger,
		Collector: f.cfg.Collector,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := f.authenticate(s); err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return s.Logout()
}

func (f *Facade) authenticate(s *imap.Session) error {
	password := f.currentPassword()
	if f.cfg.Auth == config.AuthPlain {
		return s.Authenticate(f.cfg.Username, password)
	}
	return s.Login(f.cfg.Username, password)
}
