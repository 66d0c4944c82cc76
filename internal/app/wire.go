package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/cryptodash/internal/blob/s3"
	"github.com/alanyoungcy/cryptodash/internal/cache/memory"
	"github.com/alanyoungcy/cryptodash/internal/cache/redis"
	"github.com/alanyoungcy/cryptodash/internal/config"
	"github.com/alanyoungcy/cryptodash/internal/domain"
	"github.com/alanyoungcy/cryptodash/internal/notify"
	"github.com/alanyoungcy/cryptodash/internal/platform/coingecko"
	"github.com/alanyoungcy/cryptodash/internal/server/handler"
	"github.com/alanyoungcy/cryptodash/internal/store/postgres"
)

// Dependencies bundles what the modes need. Infrastructure fields are nil
// in standalone mode.
type Dependencies struct {
	Source   domain.MarketDataSource
	Sessions domain.SessionCache

	// full mode
	SnapshotCache domain.SnapshotCache
	History       domain.SnapshotStore
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus
	Archiver      domain.Archiver

	// Notifier is nil when no sender is configured.
	Notifier *notify.Notifier

	// HealthChecks probe the infrastructure for GET /api/health.
	HealthChecks map[string]handler.Check
}

// Wire builds the concrete dependencies for cfg.Mode and returns them with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Source: coingecko.NewClient(coingecko.Options{
			BaseURL:    cfg.CoinGecko.BaseURL,
			APIKey:     cfg.CoinGecko.APIKey,
			VsCurrency: cfg.CoinGecko.VsCurrency,
			AssetIDs:   cfg.CoinGecko.AssetIDs,
			PerPage:    cfg.CoinGecko.PerPage,
			Timeout:    cfg.CoinGecko.Timeout.Duration,
		}),
		Sessions:     memory.NewSessionCache(cfg.Dashboard.MaxSessions, cfg.Dashboard.SessionTTL.Duration),
		HealthChecks: map[string]handler.Check{},
	}

	if strings.ToLower(cfg.Mode) == config.ModeFull {
		if err := wireFull(ctx, cfg, deps, &closers); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

func wireFull(ctx context.Context, cfg *config.Config, deps *Dependencies, closers *[]func()) error {
	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fmt.Errorf("wire: postgres: %w", err)
	}
	*closers = append(*closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	store := postgres.NewSnapshotStore(pgClient.Pool())
	deps.History = store
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fmt.Errorf("wire: redis: %w", err)
	}
	*closers = append(*closers, func() { _ = redisClient.Close() })

	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RefreshRateLimit, cfg.Server.RefreshRateWindow.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSnapshotArchiver(s3blob.NewWriter(s3Client), store)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	return nil
}
