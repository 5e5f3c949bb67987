package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/infodancer/mailprobe/internal/config"
	"github.com/infodancer/mailprobe/internal/logging"
	"github.com/infodancer/mailprobe/internal/mailer"
	"github.com/infodancer/mailprobe/internal/metrics"
)

// env holds what the Before hook builds for the selected command.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	stack  *mailer.Stack

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "./mailprobe.toml", Usage: "path to configuration file", EnvVars: []string{"MAILPROBE_CONFIG"}},
		&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to .env file with secrets"},
		&cli.StringFlag{Name: "log-level", Usage: "log level (debug, info, warn, error)"},
		&cli.BoolFlag{Name: "trace", Usage: "log every protocol line"},
		&cli.StringFlag{Name: "lmtp-host", Usage: "LMTP host"},
		&cli.IntFlag{Name: "lmtp-port", Usage: "LMTP port"},
		&cli.StringFlag{Name: "imap-host", Usage: "IMAP host"},
		&cli.IntFlag{Name: "imap-port", Usage: "IMAP port"},
		&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "IMAP username"},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "IMAP password"},
		&cli.StringFlag{Name: "mailbox", Usage: "IMAP mailbox"},
		&cli.StringFlag{Name: "auth", Usage: "IMAP authentication (login, plain)"},
		&cli.IntFlag{Name: "max-sessions", Usage: "maximum concurrent IMAP sessions"},
		&cli.StringFlag{Name: "database", Usage: "fixture sqlite database path"},
	}
}

func flagsFrom(c *cli.Context) *config.Flags {
	return &config.Flags{
		ConfigPath:  c.String("config"),
		EnvPath:     c.String("env-file"),
		LogLevel:    c.String("log-level"),
		Trace:       c.Bool("trace"),
		LMTPHost:    c.String("lmtp-host"),
		LMTPPort:    c.Int("lmtp-port"),
		IMAPHost:    c.String("imap-host"),
		IMAPPort:    c.Int("imap-port"),
		Username:    c.String("username"),
		Password:    c.String("password"),
		Mailbox:     c.String("mailbox"),
		Auth:        c.String("auth"),
		MaxSessions: c.Int("max-sessions"),
		Database:    c.String("database"),
	}
}

func (p *env) setup(c *cli.Context) error {
	cfg, err := config.LoadWithFlags(flagsFrom(c))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	p.logger = logging.NewLogger(cfg.LogLevel)
	c.Context = logging.NewContext(c.Context, p.logger)

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheusCollector(reg)
		p.startMetrics(c.Context, metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path, reg))
	}

	p.stack, err = mailer.NewStack(c.Context, mailer.StackConfig{
		Config:    cfg,
		Collector: collector,
		Logger:    p.logger,
	})
	return err
}

func (p *env) startMetrics(ctx context.Context, srv metrics.Server) {
	ctx, cancel := context.WithCancel(ctx)
	p.stopMetrics = cancel
	p.metricsDone = make(chan struct{})
	go func() {
		defer close(p.metricsDone)
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("metrics server error", "error", err)
		}
	}()
	p.logger.Info("metrics enabled", "address", p.cfg.Metrics.Address, "path", p.cfg.Metrics.Path)
}

func (p *env) teardown(c *cli.Context) error {
	var errs []error
	if p.stack != nil {
		errs = append(errs, p.stack.Close())
	}
	if p.stopMetrics != nil {
		p.stopMetrics()
		<-p.metricsDone
	}
	return errors.Join(errs...)
}
