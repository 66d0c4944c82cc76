// Package config defines the top-level configuration for the crypto dashboard
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CRYPTODASH_* environment variables.
type Config struct {
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// CoinGeckoConfig holds the market data endpoint and the fixed query
// parameters of the markets request.
type CoinGeckoConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	VsCurrency string   `toml:"vs_currency"`
	AssetIDs   []string `toml:"asset_ids"`
	PerPage    int      `toml:"per_page"`
	Timeout    duration `toml:"timeout"`
}

// DashboardConfig holds refresh cadence and browser session parameters.
type DashboardConfig struct {
	RefreshInterval duration `toml:"refresh_interval"`
	PollLockTTL     duration `toml:"poll_lock_ttl"`
	SessionTTL      duration `toml:"session_ttl"`
	MaxSessions     int      `toml:"max_sessions"`
}

// PostgresConfig holds PostgreSQL connection parameters for snapshot history.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving old snapshot history to object storage.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"` // guards POST /api/refresh when set
	RefreshRateLimit  int      `toml:"refresh_rate_limit"`
	RefreshRateWindow duration `toml:"refresh_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// DefaultAssetIDs is the fixed set of assets the dashboard tracks.
var DefaultAssetIDs = []string{
	"bitcoin", "ethereum", "binancecoin", "cardano", "solana",
	"polkadot", "dogecoin", "avalanche-2", "polygon", "chainlink",
	"litecoin", "bitcoin-cash", "algorand", "stellar",
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	ids := make([]string, len(DefaultAssetIDs))
	copy(ids, DefaultAssetIDs)

	return Config{
		CoinGecko: CoinGeckoConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			VsCurrency: "usd",
			AssetIDs:   ids,
			PerPage:    50,
			Timeout:    duration{15 * time.Second},
		},
		Dashboard: DashboardConfig{
			RefreshInterval: duration{60 * time.Second},
			PollLockTTL:     duration{50 * time.Second},
			SessionTTL:      duration{24 * time.Hour},
			MaxSessions:     10_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			TLSEnabled:  false,
			SnapshotTTL: duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "cryptodash-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Port:              8080,
			CORSOrigins:       []string{},
			RefreshRateLimit:  6,
			RefreshRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"fetch_failed", "fetch_recovered"},
		},
		Mode:     ModeStandalone,
		LogLevel: "info",
	}
}

// Operating modes.
const (
	// ModeStandalone runs without external infrastructure.
	ModeStandalone = "standalone"
	// ModeFull adds Redis, PostgreSQL and optional S3 archival.
	ModeFull = "full"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeStandalone: true,
	ModeFull:       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// CoinGecko
	if c.CoinGecko.BaseURL == "" {
		errs = append(errs, "coingecko: base_url must not be empty")
	}
	if c.CoinGecko.VsCurrency == "" {
		errs = append(errs, "coingecko: vs_currency must not be empty")
	}
	if len(c.CoinGecko.AssetIDs) == 0 {
		errs = append(errs, "coingecko: asset_ids must list at least one asset")
	}
	if c.CoinGecko.PerPage < len(c.CoinGecko.AssetIDs) {
		errs = append(errs, fmt.Sprintf("coingecko: per_page (%d) must be >= number of asset_ids (%d)", c.CoinGecko.PerPage, len(c.CoinGecko.AssetIDs)))
	}
	if c.CoinGecko.Timeout.Duration <= 0 {
		errs = append(errs, "coingecko: timeout must be > 0")
	}

	// Dashboard
	if c.Dashboard.RefreshInterval.Duration < time.Second {
		errs = append(errs, "dashboard: refresh_interval must be >= 1s")
	}
	if c.Dashboard.SessionTTL.Duration <= 0 {
		errs = append(errs, "dashboard: session_ttl must be > 0")
	}
	if c.Dashboard.MaxSessions < 1 {
		errs = append(errs, "dashboard: max_sessions must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if strings.ToLower(c.Mode) == ModeFull {
		if c.Dashboard.PollLockTTL.Duration <= 0 || c.Dashboard.PollLockTTL.Duration > c.Dashboard.RefreshInterval.Duration {
			errs = append(errs, "dashboard: poll_lock_ttl must be > 0 and <= refresh_interval")
		}

		// Postgres
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		// Redis
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		if c.Server.RefreshRateLimit < 1 {
			errs = append(errs, "server: refresh_rate_limit must be >= 1")
		}
		if c.Server.RefreshRateWindow.Duration <= 0 {
			errs = append(errs, "server: refresh_rate_window must be > 0")
		}

		// Archive
		if c.Archive.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when archive is enabled")
			}
			if c.Archive.RetentionDays < 1 {
				errs = append(errs, "archive: retention_days must be >= 1")
			}
			if _, err := cron.ParseStandard(c.Archive.Cron); err != nil {
				errs = append(errs, fmt.Sprintf("archive: invalid cron %q: %v", c.Archive.Cron, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
