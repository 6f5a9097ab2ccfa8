package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/aftermath/internal/blob/s3"
	"github.com/alanyoungcy/aftermath/internal/cache/memory"
	"github.com/alanyoungcy/aftermath/internal/cache/redis"
	"github.com/alanyoungcy/aftermath/internal/config"
	"github.com/alanyoungcy/aftermath/internal/crypto"
	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/metrics"
	"github.com/alanyoungcy/aftermath/internal/notify"
	"github.com/alanyoungcy/aftermath/internal/platform/polygon"
	"github.com/alanyoungcy/aftermath/internal/platform/polymarket"
	"github.com/alanyoungcy/aftermath/internal/platform/transport"
	"github.com/alanyoungcy/aftermath/internal/server/handler"
	"github.com/alanyoungcy/aftermath/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes build on. Optional
// sinks are nil when their section is not configured; the event bus and
// rate limiter fall back to in-process implementations.
type Dependencies struct {
	// Upstreams
	Polygon *polygon.Client
	Clob    *polymarket.ClobClient
	Signer  *crypto.Signer // nil without a configured key

	// Sinks
	Journal    domain.TradeJournal
	Audit      domain.AuditStore
	Locks      domain.LockManager
	Bus        domain.EventBus
	Limiter    domain.RateLimiter
	BlobWriter domain.BlobWriter
	BlobLister domain.BlobLister

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// HealthChecks probes every optional backend that was connected.
	HealthChecks map[string]handler.Check
}

// Wire builds every dependency from cfg. The returned cleanup releases them
// in reverse order and is safe to call once.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.Check)}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.New(reg)

	// --- Wallet signer ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	switch {
	case errors.Is(err, crypto.ErrNoKey):
		logger.Info("wire: no wallet key configured, orders will be unsigned")
	case err != nil:
		return fail(fmt.Errorf("wire: wallet key: %w", err))
	default:
		deps.Signer, err = crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
	}

	// --- Upstream clients ---
	deps.Polygon = polygon.NewClient(cfg.Polygon.BaseURL, cfg.Polygon.APIKey,
		httpOptions(cfg, cfg.Polygon.RateLimit))
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.APIKey,
		httpOptions(cfg, cfg.Polymarket.RateLimit), deps.Signer)

	// --- PostgreSQL ---
	if cfg.Database.DSN != "" {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Database.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Journal = postgres.NewTradeJournal(pg.Pool())
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		deps.HealthChecks["postgres"] = pg.Pool().Ping
		logger.Info("wire: trade journal enabled")
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Locks = redis.NewLockManager(rc)
		deps.Bus = redis.NewEventBus(rc)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.HealthChecks["redis"] = rc.Ping
		logger.Info("wire: redis locks and event bus enabled", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.Bus = memory.NewEventBus()
		deps.Limiter = memory.NewRateLimiter()
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		store := s3blob.NewStore(sc)
		deps.BlobWriter = store
		deps.BlobLister = store
		deps.HealthChecks["s3"] = sc.Health
		logger.Info("wire: journal archive enabled", slog.String("bucket", sc.Bucket()))
	}

	// --- Notifications ---
	deps.Notifier = notify.New(notify.Settings{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		Events:            cfg.Notify.Events,
	}, logger)

	return deps, cleanup, nil
}

// httpOptions applies the shared [http] section to one upstream.
func httpOptions(cfg *config.Config, rps float64) transport.Options {
	return transport.Options{
		Timeout:    cfg.HTTP.Timeout.Duration,
		RateLimit:  rps,
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryBase:  cfg.HTTP.RetryBase.Duration,
	}
}
