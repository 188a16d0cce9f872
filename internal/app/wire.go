package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/papertrader/internal/blob/s3"
	"github.com/alanyoungcy/papertrader/internal/cache/redis"
	"github.com/alanyoungcy/papertrader/internal/config"
	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
	"github.com/alanyoungcy/papertrader/internal/mirror"
	"github.com/alanyoungcy/papertrader/internal/mirror/supabase"
	"github.com/alanyoungcy/papertrader/internal/notify"
	"github.com/alanyoungcy/papertrader/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Persistence
	SnapshotStore domain.SnapshotStore

	// Caches
	PriceCache  domain.PriceSource
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Remote mirror. Outbox is nil when no Supabase REST endpoint is
	// configured; the engine then runs purely local.
	Outbox *mirror.Outbox

	// Blob storage
	Archiver domain.TradeArchiver

	// Notifications
	Notifier *notify.Notifier

	// The ledger engine itself.
	Engine *ledger.Engine
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL snapshot store ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.SnapshotStore = postgres.NewSnapshotStore(pgClient.Pool(), cfg.Ledger.LedgerID)

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
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Remote mirror (optional) ---
	var remote domain.RemoteStore
	if cfg.Supabase.ApiURL != "" && cfg.Supabase.ApiKey != "" {
		deps.Outbox = mirror.NewOutbox(
			supabase.New(cfg.Supabase.ApiURL, cfg.Supabase.ApiKey),
			logger,
		)
		remote = deps.Outbox
	}

	// --- S3 trade archive (optional) ---
	if cfg.S3.Enabled {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewTradeArchiver(s3Client, cfg.S3.Prefix)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.FCMCredentialsPath != "" && cfg.Notify.FCMTopic != "" {
		fcm, err := notify.NewFCMSender(ctx, cfg.Notify.FCMCredentialsPath, cfg.Notify.FCMTopic)
		if err != nil {
			// Push alerts are best-effort; keep the other channels.
			logger.WarnContext(ctx, "wire: fcm sender unavailable",
				slog.String("error", err.Error()),
			)
		} else {
			senders = append(senders, fcm)
		}
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Ledger engine ---
	deps.Engine = ledger.New(
		ledger.Config{
			InitialCapital: cfg.Ledger.InitialCapital,
			ValidateLevels: cfg.Ledger.ValidateLevels,
		},
		deps.SnapshotStore,
		remote,
		deps.Archiver,
		deps.SignalBus,
		logger,
	)

	return deps, cleanup, nil
}
