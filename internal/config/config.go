// Package config provides configuration management for the mail probe.
package config

import (
	"errors"
	"fmt"
	"time"
)

// AuthMechanism selects how IMAP sessions authenticate.
type AuthMechanism string

const (
	// AuthLogin uses the LOGIN command.
	AuthLogin AuthMechanism = "login"
	// AuthPlain uses AUTHENTICATE PLAIN.
	AuthPlain AuthMechanism = "plain"
)

// StorageType selects the on-disk store inspector.
type StorageType string

const (
	// StorageMdbox reads dovecot mdbox storage files.
	StorageMdbox StorageType = "mdbox"
	// StorageMaildir reads a maildir through msgstore.
	StorageMaildir StorageType = "maildir"
)

// FileConfig is the top-level wrapper for the shared configuration file.
// The [server] table holds settings shared with the mail server under test.
type FileConfig struct {
	Server    ServerConfig `toml:"server"`
	Mailprobe Config       `toml:"mailprobe"`
}

// ServerConfig holds shared settings of the server under test.
type ServerConfig struct {
	Hostname string `toml:"hostname"`
	Maildir  string `toml:"maildir"`
}

// Config holds the probe configuration.
type Config struct {
	LogLevel string         `toml:"log_level"`
	Trace    bool           `toml:"trace"`
	LMTP     LMTPConfig     `toml:"lmtp"`
	IMAP     IMAPConfig     `toml:"imap"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Limits   LimitsConfig   `toml:"limits"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Admin    AdminConfig    `toml:"admin"`
	Fixture  FixtureConfig  `toml:"fixture"`
	Storage  StorageConfig  `toml:"storage"`
}

// LMTPConfig defines the delivery endpoint and envelope.
type LMTPConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	Domain string `toml:"domain"`
	From   string `toml:"from"`
}

// IMAPConfig defines the retrieval endpoint and account.
type IMAPConfig struct {
	Host     string        `toml:"host"`
	Port     int           `toml:"port"`
	Username string        `toml:"username"`
	Password string        `toml:"password"`
	Mailbox  string        `toml:"mailbox"`
	Auth     AuthMechanism `toml:"auth"`
}

// TimeoutsConfig defines timeout durations. Empty means no limit.
type TimeoutsConfig struct {
	Dial string `toml:"dial"`
	Read string `toml:"read"`
}

// LimitsConfig defines client-side resource limits.
type LimitsConfig struct {
	// MaxSessions bounds concurrently open IMAP sessions; zero is unbounded.
	MaxSessions int `toml:"max_sessions"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// AdminConfig configures the administrative encryption tool.
type AdminConfig struct {
	Binary         string `toml:"binary"`
	ConfigPath     string `toml:"config_path"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	HomeMailPath   string `toml:"home_mail_path"`
	SyncPath       string `toml:"sync_path"`
	ProcessPattern string `toml:"process_pattern"`
}

// FixtureConfig configures the fixture account database.
type FixtureConfig struct {
	Database    string `toml:"database"`
	KeyPassword string `toml:"key_password"`
	KeyCost     int    `toml:"key_cost"`
}

// StorageConfig configures the on-disk store inspector.
type StorageConfig struct {
	Type    StorageType `toml:"type"`
	Home    string      `toml:"home"`
	User    string      `toml:"user"`
	Maildir string      `toml:"maildir"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		LogLevel: "info",
		LMTP: LMTPConfig{
			Host:   "127.0.0.1",
			Port:   6060,
			Domain: "test.com",
			From:   "sender@test.com",
		},
		IMAP: IMAPConfig{
			Host:     "127.0.0.1",
			Port:     6070,
			Username: "test",
			Password: "testPassword",
			Mailbox:  "INBOX",
			Auth:     AuthLogin,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9102",
			Path:    "/metrics",
		},
		Admin: AdminConfig{
			Binary:         "doveadm",
			ConfigPath:     "/etc/dovecot/dovecot.conf",
			Username:       "test",
			SyncPath:       "/tmp/test",
			ProcessPattern: "imap",
		},
		Fixture: FixtureConfig{
			KeyPassword: "testPassword",
			KeyCost:     12,
		},
		Storage: StorageConfig{
			Type: StorageMdbox,
			User: "test",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.LMTP.Host == "" {
		return errors.New("lmtp host is required")
	}
	if c.LMTP.Port <= 0 || c.LMTP.Port > 65535 {
		return fmt.Errorf("invalid lmtp port %d", c.LMTP.Port)
	}
	if c.IMAP.Host == "" {
		return errors.New("imap host is required")
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("invalid imap port %d", c.IMAP.Port)
	}
	if c.IMAP.Username == "" {
		return errors.New("imap username is required")
	}
	if !isValidAuth(c.IMAP.Auth) {
		return fmt.Errorf("invalid imap auth %q (valid: login, plain)", c.IMAP.Auth)
	}

	if c.Limits.MaxSessions < 0 {
		return errors.New("max_sessions must not be negative")
	}

	if c.Timeouts.Dial != "" {
		if _, err := time.ParseDuration(c.Timeouts.Dial); err != nil {
			return fmt.Errorf("invalid dial timeout: %w", err)
		}
	}

	if c.Timeouts.Read != "" {
		if _, err := time.ParseDuration(c.Timeouts.Read); err != nil {
			return fmt.Errorf("invalid read timeout: %w", err)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	if c.Fixture.KeyCost != 0 && (c.Fixture.KeyCost < 4 || c.Fixture.KeyCost > 31) {
		return fmt.Errorf("invalid fixture key_cost %d (valid: 4-31)", c.Fixture.KeyCost)
	}

	switch c.Storage.Type {
	case "", StorageMdbox:
	case StorageMaildir:
		if c.Storage.Maildir == "" {
			return errors.New("storage maildir is required for the maildir inspector")
		}
	default:
		return fmt.Errorf("invalid storage type %q (valid: mdbox, maildir)", c.Storage.Type)
	}

	return nil
}

// DialTimeout returns the dial timeout as a time.Duration.
// Returns 0 (no limit) if not configured or invalid.
func (c *TimeoutsConfig) DialTimeout() time.Duration {
	return parseDuration(c.Dial)
}

// ReadTimeout returns the per-read timeout as a time.Duration.
// Returns 0 (block forever) if not configured or invalid.
func (c *TimeoutsConfig) ReadTimeout() time.Duration {
	return parseDuration(c.Read)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func isValidAuth(m AuthMechanism) bool {
	switch m {
	case AuthLogin, AuthPlain:
		return true
	default:
		return false
	}
}
