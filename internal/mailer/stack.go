package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/infodancer/mailprobe/internal/admin"
	"github.com/infodancer/mailprobe/internal/config"
	"github.com/infodancer/mailprobe/internal/fixture"
	"github.com/infodancer/mailprobe/internal/lmtp"
	"github.com/infodancer/mailprobe/internal/metrics"
	"github.com/infodancer/mailprobe/internal/storage"
	"github.com/infodancer/mailprobe/internal/wire"
)

// StackConfig groups the configuration needed to build a Stack.
type StackConfig struct {
	Config    config.Config
	Runner    admin.Runner      // nil → admin.ExecRunner
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
}

// Stack owns every component a test run needs and manages their lifecycle.
type Stack struct {
	mailer    *Mailer
	admin     *admin.Administrator
	sampler   *admin.RSSSampler
	inspector storage.Inspector
	fixtures  *fixture.Store

	closers []io.Closer
	logger  *slog.Logger
}

// NewStack creates a Stack from the given configuration, wiring up all
// components. Network connections are not opened until first use.
func NewStack(ctx context.Context, cfg StackConfig) (*Stack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	runner := cfg.Runner
	if runner == nil {
		runner = &admin.ExecRunner{Logger: logger}
	}
	c := cfg.Config

	s := &Stack{logger: logger}

	wireOpts := wire.Options{
		Trace:       c.Trace,
		DialTimeout: c.Timeouts.DialTimeout(),
		ReadTimeout: c.Timeouts.ReadTimeout(),
		Logger:      logger,
	}

	var limiter *SessionLimiter
	if c.Limits.MaxSessions > 0 {
		limiter = NewSessionLimiter(c.Limits.MaxSessions)
	}
	facade := NewFacade(FacadeConfig{
		Host:      c.IMAP.Host,
		Port:      c.IMAP.Port,
		Username:  c.IMAP.Username,
		Password:  c.IMAP.Password,
		Mailbox:   c.IMAP.Mailbox,
		Auth:      c.IMAP.Auth,
		Wire:      wireOpts,
		Logger:    logger,
		Collector: collector,
		Limiter:   limiter,
	})
	s.mailer = New(lmtp.Options{
		Host:      c.LMTP.Host,
		Port:      c.LMTP.Port,
		Domain:    c.LMTP.Domain,
		From:      c.LMTP.From,
		Wire:      wireOpts,
		Logger:    logger,
		Collector: collector,
	}, facade)
	s.closers = append(s.closers, s.mailer)

	s.admin = &admin.Administrator{
		Binary:       c.Admin.Binary,
		ConfigPath:   c.Admin.ConfigPath,
		Username:     c.Admin.Username,
		HomeMailPath: c.Admin.HomeMailPath,
		SyncPath:     c.Admin.SyncPath,
		Runner:       runner,
		Logger:       logger,
	}
	s.sampler = &admin.RSSSampler{Runner: runner, Pattern: c.Admin.ProcessPattern}

	switch c.Storage.Type {
	case config.StorageMaildir:
		in, err := storage.OpenMaildirInspector(c.Storage.Maildir, "", c.Storage.User, logger)
		if err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		s.inspector = in
		logger.Debug("store inspector enabled", "type", "maildir", "path", c.Storage.Maildir)
	default:
		s.inspector = storage.NewMdboxInspector(c.Storage.Home, c.Storage.User, logger)
		logger.Debug("store inspector enabled", "type", "mdbox", "home", c.Storage.Home)
	}

	if c.Fixture.Database != "" {
		store, err := fixture.Open(ctx, c.Fixture.Database, fixture.Options{
			KeyPassword: c.Fixture.KeyPassword,
			KeyCost:     c.Fixture.KeyCost,
			Logger:      logger,
		})
		if err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		s.fixtures = store
		s.closers = append(s.closers, store)
		logger.Debug("fixture store enabled", "database", c.Fixture.Database)
	}

	return s, nil
}

// Mailer returns the delivery and retrieval facade.
func (s *Stack) Mailer() *Mailer { return s.mailer }

// Administrator returns the administrative tool wrapper.
func (s *Stack) Administrator() *admin.Administrator { return s.admin }

// Sampler returns the server memory sampler.
func (s *Stack) Sampler() *admin.RSSSampler { return s.sampler }

// Inspector returns the on-disk store inspector.
func (s *Stack) Inspector() storage.Inspector { return s.inspector }

// Fixtures returns the fixture store, or ErrNotConfigured when no database
// path was configured.
func (s *Stack) Fixtures() (*fixture.Store, error) {
	if s.fixtures == nil {
		return nil, ErrNotConfigured
	}
	return s.fixtures, nil
}

// Close shuts down all closeable components in reverse registration order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
