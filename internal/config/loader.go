package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Environment variables read from the process environment or a .env file.
const (
	EnvPassword      = "MAILPROBE_PASSWORD"
	EnvAdminPassword = "MAILPROBE_ADMIN_PASSWORD"
	EnvKeyPassword   = "MAILPROBE_KEY_PASSWORD"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath  string
	EnvPath     string
	LogLevel    string
	Trace       bool
	LMTPHost    string
	LMTPPort    int
	IMAPHost    string
	IMAPPort    int
	Username    string
	Password    string
	Mailbox     string
	Auth        string
	MaxSessions int
	Database    string
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
// The loader reads from both [server] (shared settings) and [mailprobe]
// (probe settings), with [mailprobe] values taking precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// First merge shared server config into defaults
	cfg = mergeServerConfig(cfg, fileConfig.Server)

	// Then merge probe-specific config (takes precedence)
	cfg = mergeConfig(cfg, fileConfig.Mailprobe)

	return cfg, nil
}

// ApplyEnv overlays secrets from the .env file at path and the process
// environment. Process variables win over the file. A missing file is not an
// error.
func ApplyEnv(cfg Config, path string) (Config, error) {
	file := map[string]string{}
	if path != "" {
		values, err := godotenv.Read(path)
		switch {
		case err == nil:
			file = values
		case os.IsNotExist(err):
		default:
			return cfg, fmt.Errorf("reading env file: %w", err)
		}
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return file[key]
	}
	if v := lookup(EnvPassword); v != "" {
		cfg.IMAP.Password = v
	}
	if v := lookup(EnvAdminPassword); v != "" {
		cfg.Admin.Password = v
	}
	if v := lookup(EnvKeyPassword); v != "" {
		cfg.Fixture.KeyPassword = v
	}
	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Trace {
		cfg.Trace = true
	}

	if f.LMTPHost != "" {
		cfg.LMTP.Host = f.LMTPHost
	}

	if f.LMTPPort > 0 {
		cfg.LMTP.Port = f.LMTPPort
	}

	if f.IMAPHost != "" {
		cfg.IMAP.Host = f.IMAPHost
	}

	if f.IMAPPort > 0 {
		cfg.IMAP.Port = f.IMAPPort
	}

	if f.Username != "" {
		cfg.IMAP.Username = f.Username
	}

	if f.Password != "" {
		cfg.IMAP.Password = f.Password
	}

	if f.Mailbox != "" {
		cfg.IMAP.Mailbox = f.Mailbox
	}

	if f.Auth != "" {
		cfg.IMAP.Auth = AuthMechanism(f.Auth)
	}

	if f.MaxSessions > 0 {
		cfg.Limits.MaxSessions = f.MaxSessions
	}

	if f.Database != "" {
		cfg.Fixture.Database = f.Database
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// overlays the environment, then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg, err = ApplyEnv(cfg, f.EnvPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

// mergeServerConfig merges shared server settings into the config.
func mergeServerConfig(dst Config, src ServerConfig) Config {
	if src.Hostname != "" {
		dst.LMTP.Domain = src.Hostname
	}

	if src.Maildir != "" {
		dst.Storage.Maildir = src.Maildir
	}

	return dst
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.Trace {
		dst.Trace = true
	}

	dst.LMTP = mergeLMTP(dst.LMTP, src.LMTP)
	dst.IMAP = mergeIMAP(dst.IMAP, src.IMAP)

	if src.Timeouts.Dial != "" {
		dst.Timeouts.Dial = src.Timeouts.Dial
	}

	if src.Timeouts.Read != "" {
		dst.Timeouts.Read = src.Timeouts.Read
	}

	if src.Limits.MaxSessions > 0 {
		dst.Limits.MaxSessions = src.Limits.MaxSessions
	}

	if src.Metrics.Enabled {
		dst.Metrics.Enabled = true
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	dst.Admin = mergeAdmin(dst.Admin, src.Admin)

	if src.Fixture.Database != "" {
		dst.Fixture.Database = src.Fixture.Database
	}

	if src.Fixture.KeyPassword != "" {
		dst.Fixture.KeyPassword = src.Fixture.KeyPassword
	}

	if src.Fixture.KeyCost > 0 {
		dst.Fixture.KeyCost = src.Fixture.KeyCost
	}

	if src.Storage.Type != "" {
		dst.Storage.Type = src.Storage.Type
	}

	if src.Storage.Home != "" {
		dst.Storage.Home = src.Storage.Home
	}

	if src.Storage.User != "" {
		dst.Storage.User = src.Storage.User
	}

	if src.Storage.Maildir != "" {
		dst.Storage.Maildir = src.Storage.Maildir
	}

	return dst
}

func mergeLMTP(dst, src LMTPConfig) LMTPConfig {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
	if src.Domain != "" {
		dst.Domain = src.Domain
	}
	if src.From != "" {
		dst.From = src.From
	}
	return dst
}

func mergeIMAP(dst, src IMAPConfig) IMAPConfig {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.Mailbox != "" {
		dst.Mailbox = src.Mailbox
	}
	if src.Auth != "" {
		dst.Auth = src.Auth
	}
	return dst
}

func mergeAdmin(dst, src AdminConfig) AdminConfig {
	if src.Binary != "" {
		dst.Binary = src.Binary
	}
	if src.ConfigPath != "" {
		dst.ConfigPath = src.ConfigPath
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.HomeMailPath != "" {
		dst.HomeMailPath = src.HomeMailPath
	}
	if src.SyncPath != "" {
		dst.SyncPath = src.SyncPath
	}
	if src.ProcessPattern != "" {
		dst.ProcessPattern = src.ProcessPattern
	}
	return dst
}
