package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Osm      OsmConfig      `mapstructure:"osm"`
	Hashing  HashingConfig  `mapstructure:"hashing"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// OsmConfig holds Online Scout Manager API configuration. AccessToken is
// populated by the auth layer; when empty the gateway reports that
// authentication is required.
type OsmConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	CampsiteID  string `mapstructure:"campsite_id"`
	SectionID   string `mapstructure:"section_id"`
	AccessToken string `mapstructure:"access_token"`
}

// HashingConfig holds PII hashing configuration
type HashingConfig struct {
	SecretPath string `mapstructure:"secret_path"`
	Iterations int    `mapstructure:"iterations"`
}

// SyncConfig holds booking sync scheduler configuration
type SyncConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// BackfillConfig holds the detail backfill loop configuration
type BackfillConfig struct {
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	Interval     time.Duration `mapstructure:"interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// MailboxConfig holds the optional mailbox ingestion configuration.
// When Enabled is false no mailbox fetcher is constructed and captured
// emails only arrive through the HTTP capture endpoint.
type MailboxConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	UseIMAP         bool   `mapstructure:"use_imap"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RefreshToken    string `mapstructure:"refresh_token"`
	UserEmail       string `mapstructure:"user_email"`
	IMAPHost        string `mapstructure:"imap_host"`
	IMAPPort        int    `mapstructure:"imap_port"`
	IMAPUser        string `mapstructure:"imap_user"`
	IMAPPassword    string `mapstructure:"imap_password"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.path", "data/bookings.db")

	viper.SetDefault("osm.base_url", "https://www.onlinescoutmanager.co.uk")

	viper.SetDefault("hashing.secret_path", "data/hash-secret.txt")
	viper.SetDefault("hashing.iterations", 200000)

	viper.SetDefault("sync.interval_minutes", 15)

	viper.SetDefault("backfill.startup_delay", "30s")
	viper.SetDefault("backfill.interval", "30m")
	viper.SetDefault("backfill.batch_size", 20)

	viper.SetDefault("mailbox.enabled", false)
	viper.SetDefault("mailbox.interval_minutes", 5)
	viper.SetDefault("mailbox.use_imap", false)
	viper.SetDefault("mailbox.imap_host", "outlook.office365.com")
	viper.SetDefault("mailbox.imap_port", 993)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	viper.BindEnv("database.path", "DB_PATH")

	viper.BindEnv("osm.base_url", "OSM_BASE_URL")
	viper.BindEnv("osm.campsite_id", "OSM_CAMPSITE_ID")
	viper.BindEnv("osm.section_id", "OSM_SECTION_ID")
	viper.BindEnv("osm.access_token", "OSM_ACCESS_TOKEN")

	viper.BindEnv("hashing.secret_path", "HASH_SECRET_PATH")
	viper.BindEnv("hashing.iterations", "HASH_ITERATIONS")

	viper.BindEnv("sync.interval_minutes", "SYNC_INTERVAL_MINUTES")

	viper.BindEnv("backfill.startup_delay", "BACKFILL_STARTUP_DELAY")
	viper.BindEnv("backfill.interval", "BACKFILL_INTERVAL")
	viper.BindEnv("backfill.batch_size", "BACKFILL_BATCH_SIZE")

	viper.BindEnv("mailbox.enabled", "MAILBOX_ENABLED")
	viper.BindEnv("mailbox.interval_minutes", "MAILBOX_INTERVAL_MINUTES")
	viper.BindEnv("mailbox.use_imap", "MAILBOX_USE_IMAP")
	viper.BindEnv("mailbox.client_id", "MAILBOX_CLIENT_ID")
	viper.BindEnv("mailbox.client_secret", "MAILBOX_CLIENT_SECRET")
	viper.BindEnv("mailbox.refresh_token", "MAILBOX_REFRESH_TOKEN")
	viper.BindEnv("mailbox.user_email", "MAILBOX_USER_EMAIL")
	viper.BindEnv("mailbox.imap_host", "MAILBOX_IMAP_HOST")
	viper.BindEnv("mailbox.imap_port", "MAILBOX_IMAP_PORT")
	viper.BindEnv("mailbox.imap_user", "MAILBOX_IMAP_USER")
	viper.BindEnv("mailbox.imap_password", "MAILBOX_IMAP_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Osm.CampsiteID == "" || c.Osm.SectionID == "" {
		return fmt.Errorf("OSM campsite_id and section_id are required")
	}

	if c.Hashing.Iterations <= 0 {
		return fmt.Errorf("hashing iterations must be greater than 0")
	}

	if c.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("sync interval must be greater than 0")
	}

	if c.Backfill.BatchSize <= 0 {
		return fmt.Errorf("backfill batch size must be greater than 0")
	}

	if c.Mailbox.Enabled {
		if c.Mailbox.UseIMAP {
			if c.Mailbox.IMAPUser == "" || c.Mailbox.IMAPPassword == "" {
				return fmt.Errorf("IMAP credentials are required when mailbox ingestion uses IMAP")
			}
		} else {
			if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" || c.Mailbox.RefreshToken == "" {
				return fmt.Errorf("Gmail OAuth2 credentials are required when mailbox ingestion is enabled")
			}
		}
	}

	return nil
}
