package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CRYPTODASH_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CRYPTODASH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── CoinGecko ──
	setStr(&cfg.CoinGecko.BaseURL, "CRYPTODASH_COINGECKO_BASE_URL")
	setStr(&cfg.CoinGecko.APIKey, "CRYPTODASH_COINGECKO_API_KEY")
	setStr(&cfg.CoinGecko.VsCurrency, "CRYPTODASH_COINGECKO_VS_CURRENCY")
	setStringSlice(&cfg.CoinGecko.AssetIDs, "CRYPTODASH_COINGECKO_ASSET_IDS")
	setInt(&cfg.CoinGecko.PerPage, "CRYPTODASH_COINGECKO_PER_PAGE")
	setDuration(&cfg.CoinGecko.Timeout, "CRYPTODASH_COINGECKO_TIMEOUT")

	// ── Dashboard ──
	setDuration(&cfg.Dashboard.RefreshInterval, "CRYPTODASH_DASHBOARD_REFRESH_INTERVAL")
	setDuration(&cfg.Dashboard.PollLockTTL, "CRYPTODASH_DASHBOARD_POLL_LOCK_TTL")
	setDuration(&cfg.Dashboard.SessionTTL, "CRYPTODASH_DASHBOARD_SESSION_TTL")
	setInt(&cfg.Dashboard.MaxSessions, "CRYPTODASH_DASHBOARD_MAX_SESSIONS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CRYPTODASH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CRYPTODASH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CRYPTODASH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CRYPTODASH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CRYPTODASH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CRYPTODASH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CRYPTODASH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CRYPTODASH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CRYPTODASH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CRYPTODASH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CRYPTODASH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRYPTODASH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRYPTODASH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRYPTODASH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRYPTODASH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRYPTODASH_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "CRYPTODASH_REDIS_SNAPSHOT_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CRYPTODASH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRYPTODASH_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRYPTODASH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CRYPTODASH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRYPTODASH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRYPTODASH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRYPTODASH_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CRYPTODASH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CRYPTODASH_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "CRYPTODASH_ARCHIVE_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "CRYPTODASH_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // PaaS convention
	setStringSlice(&cfg.Server.CORSOrigins, "CRYPTODASH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CRYPTODASH_SERVER_API_KEY")
	setInt(&cfg.Server.RefreshRateLimit, "CRYPTODASH_SERVER_REFRESH_RATE_LIMIT")
	setDuration(&cfg.Server.RefreshRateWindow, "CRYPTODASH_SERVER_REFRESH_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRYPTODASH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRYPTODASH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRYPTODASH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CRYPTODASH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CRYPTODASH_MODE")
	setStr(&cfg.LogLevel, "CRYPTODASH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
