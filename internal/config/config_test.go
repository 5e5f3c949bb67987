package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}

	if cfg.LMTP.Host != "127.0.0.1" || cfg.LMTP.Port != 6060 {
		t.Errorf("expected lmtp 127.0.0.1:6060, got %s:%d", cfg.LMTP.Host, cfg.LMTP.Port)
	}

	if cfg.LMTP.Domain != "test.com" {
		t.Errorf("expected lmtp domain 'test.com', got %q", cfg.LMTP.Domain)
	}

	if cfg.LMTP.From != "sender@test.com" {
		t.Errorf("expected lmtp from 'sender@test.com', got %q", cfg.LMTP.From)
	}

	if cfg.IMAP.Host != "127.0.0.1" || cfg.IMAP.Port != 6070 {
		t.Errorf("expected imap 127.0.0.1:6070, got %s:%d", cfg.IMAP.Host, cfg.IMAP.Port)
	}

	if cfg.IMAP.Username != "test" || cfg.IMAP.Password != "testPassword" {
		t.Errorf("expected imap account test/testPassword, got %s/%s", cfg.IMAP.Username, cfg.IMAP.Password)
	}

	if cfg.IMAP.Auth != AuthLogin {
		t.Errorf("expected imap auth 'login', got %q", cfg.IMAP.Auth)
	}

	if cfg.Fixture.KeyCost != 12 {
		t.Errorf("expected fixture key_cost 12, got %d", cfg.Fixture.KeyCost)
	}

	if cfg.Storage.Type != StorageMdbox {
		t.Errorf("expected storage type 'mdbox', got %q", cfg.Storage.Type)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty lmtp host",
			modify:  func(c *Config) { c.LMTP.Host = "" },
			wantErr: true,
		},
		{
			name:    "lmtp port out of range",
			modify:  func(c *Config) { c.LMTP.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero imap port",
			modify:  func(c *Config) { c.IMAP.Port = 0 },
			wantErr: true,
		},
		{
			name:    "empty imap username",
			modify:  func(c *Config) { c.IMAP.Username = "" },
			wantErr: true,
		},
		{
			name:    "invalid auth mechanism",
			modify:  func(c *Config) { c.IMAP.Auth = "cram-md5" },
			wantErr: true,
		},
		{
			name:    "plain auth",
			modify:  func(c *Config) { c.IMAP.Auth = AuthPlain },
			wantErr: false,
		},
		{
			name:    "negative max sessions",
			modify:  func(c *Config) { c.Limits.MaxSessions = -1 },
			wantErr: true,
		},
		{
			name:    "invalid read timeout",
			modify:  func(c *Config) { c.Timeouts.Read = "soon" },
			wantErr: true,
		},
		{
			name:    "valid timeouts",
			modify:  func(c *Config) { c.Timeouts.Dial = "5s"; c.Timeouts.Read = "30s" },
			wantErr: false,
		},
		{
			name: "metrics enabled without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			wantErr: true,
		},
		{
			name:    "key cost too low",
			modify:  func(c *Config) { c.Fixture.KeyCost = 2 },
			wantErr: true,
		},
		{
			name:    "maildir storage without path",
			modify:  func(c *Config) { c.Storage.Type = StorageMaildir },
			wantErr: true,
		},
		{
			name: "maildir storage with path",
			modify: func(c *Config) {
				c.Storage.Type = StorageMaildir
				c.Storage.Maildir = "/var/mail"
			},
			wantErr: false,
		},
		{
			name:    "unknown storage type",
			modify:  func(c *Config) { c.Storage.Type = "mbox" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDialTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"10s", 10 * time.Second},
		{"1m", 1 * time.Minute},
		{"", 0},        // default: no limit
		{"invalid", 0}, // invalid falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := TimeoutsConfig{Dial: tt.value}
			if got := cfg.DialTimeout(); got != tt.expected {
				t.Errorf("DialTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReadTimeout(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"", 0},
		{"invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := TimeoutsConfig{Read: tt.value}
			if got := cfg.ReadTimeout(); got != tt.expected {
				t.Errorf("ReadTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}
