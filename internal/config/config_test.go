package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second},
		Database: DatabaseConfig{Path: "data/bookings.db"},
		Osm:      OsmConfig{BaseURL: "https://www.onlinescoutmanager.co.uk", CampsiteID: "42", SectionID: "7"},
		Hashing:  HashingConfig{SecretPath: "data/hash-secret.txt", Iterations: 200000},
		Sync:     SyncConfig{IntervalMinutes: 15},
		Backfill: BackfillConfig{StartupDelay: 30 * time.Second, Interval: 30 * time.Minute, BatchSize: 20},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "data/bookings.db", cfg.Database.Path)
	assert.Equal(t, "https://www.onlinescoutmanager.co.uk", cfg.Osm.BaseURL)
	assert.Equal(t, 200000, cfg.Hashing.Iterations)
	assert.Equal(t, 15, cfg.Sync.IntervalMinutes)
	assert.Equal(t, 30*time.Second, cfg.Backfill.StartupDelay)
	assert.Equal(t, 30*time.Minute, cfg.Backfill.Interval)
	assert.Equal(t, 20, cfg.Backfill.BatchSize)
	assert.False(t, cfg.Mailbox.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"missing campsite id", func(c *Config) { c.Osm.CampsiteID = "" }, "campsite_id"},
		{"missing section id", func(c *Config) { c.Osm.SectionID = "" }, "section_id"},
		{"zero iterations", func(c *Config) { c.Hashing.Iterations = 0 }, "iterations"},
		{"zero sync interval", func(c *Config) { c.Sync.IntervalMinutes = 0 }, "sync interval"},
		{"zero batch size", func(c *Config) { c.Backfill.BatchSize = 0 }, "batch size"},
		{
			"mailbox enabled without gmail credentials",
			func(c *Config) { c.Mailbox = MailboxConfig{Enabled: true, IntervalMinutes: 5} },
			"OAuth2 credentials",
		},
		{
			"mailbox imap without credentials",
			func(c *Config) {
				c.Mailbox = MailboxConfig{Enabled: true, IntervalMinutes: 5, UseIMAP: true, IMAPHost: "imap.example.com"}
			},
			"IMAP credentials",
		},
		{
			"mailbox imap with credentials",
			func(c *Config) {
				c.Mailbox = MailboxConfig{
					Enabled: true, IntervalMinutes: 5, UseIMAP: true,
					IMAPHost: "imap.example.com", IMAPPort: 993,
					IMAPUser: "inbox@example.com", IMAPPassword: "secret",
				}
			},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
