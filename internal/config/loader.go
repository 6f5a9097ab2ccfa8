package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AFTERMATH_* environment variable overrides, and
// returns the final Config. A missing file is tolerated unless required is
// true, so a deployment can be configured from the environment alone. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string, required bool) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AFTERMATH_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Polygon ──
	setStr(&cfg.Polygon.APIKey, "AFTERMATH_POLYGON_API_KEY")
	setStr(&cfg.Polygon.APIKey, "POLYGON_API_KEY") // compatibility alias
	setStr(&cfg.Polygon.BaseURL, "AFTERMATH_POLYGON_BASE_URL")
	setFloat64(&cfg.Polygon.RateLimit, "AFTERMATH_POLYGON_RATE_LIMIT")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "AFTERMATH_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.APIKey, "AFTERMATH_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APIKey, "POLYMARKET_API_KEY") // compatibility alias
	setInt(&cfg.Polymarket.ChainID, "AFTERMATH_POLYMARKET_CHAIN_ID")
	setFloat64(&cfg.Polymarket.RateLimit, "AFTERMATH_POLYMARKET_RATE_LIMIT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AFTERMATH_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.Address, "AFTERMATH_WALLET_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AFTERMATH_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AFTERMATH_WALLET_KEY_PASSWORD")
	setFloat64(&cfg.Wallet.InitialBalance, "AFTERMATH_WALLET_INITIAL_BALANCE")

	// ── Trading ──
	setFloat64(&cfg.Trading.AllocationPct, "AFTERMATH_TRADING_ALLOCATION_PCT")
	setFloat64(&cfg.Trading.MinReturnThreshold, "AFTERMATH_TRADING_MIN_RETURN_THRESHOLD")

	// ── Risk ──
	setInt(&cfg.Risk.MaxConcurrent, "AFTERMATH_RISK_MAX_CONCURRENT")
	setInt(&cfg.Risk.MaxDaily, "AFTERMATH_RISK_MAX_DAILY")
	setFloat64(&cfg.Risk.MaxPositionSize, "AFTERMATH_RISK_MAX_POSITION_SIZE")
	setStr(&cfg.Risk.DayTimezone, "AFTERMATH_RISK_DAY_TIMEZONE")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.ScanInterval, "AFTERMATH_SCHEDULER_SCAN_INTERVAL")
	setInt(&cfg.Scheduler.WindowMinutes, "AFTERMATH_SCHEDULER_WINDOW_MINUTES")
	setInt(&cfg.Scheduler.HorizonDays, "AFTERMATH_SCHEDULER_HORIZON_DAYS")
	setInt(&cfg.Scheduler.CalendarEvery, "AFTERMATH_SCHEDULER_CALENDAR_EVERY")
	setDuration(&cfg.Scheduler.ErrorBackoff, "AFTERMATH_SCHEDULER_ERROR_BACKOFF")
	setInt(&cfg.Scheduler.MaxParallel, "AFTERMATH_SCHEDULER_MAX_PARALLEL")
	setDuration(&cfg.Scheduler.SettleInterval, "AFTERMATH_SCHEDULER_SETTLE_INTERVAL")

	// ── HTTP ──
	setDuration(&cfg.HTTP.Timeout, "AFTERMATH_HTTP_TIMEOUT")
	setInt(&cfg.HTTP.MaxRetries, "AFTERMATH_HTTP_MAX_RETRIES")
	setDuration(&cfg.HTTP.RetryBase, "AFTERMATH_HTTP_RETRY_BASE")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "AFTERMATH_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "AFTERMATH_METRICS_PORT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AFTERMATH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AFTERMATH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AFTERMATH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AFTERMATH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AFTERMATH_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AFTERMATH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AFTERMATH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AFTERMATH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AFTERMATH_NOTIFY_EVENTS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "AFTERMATH_DATABASE_DSN")
	setInt(&cfg.Database.PoolMaxConns, "AFTERMATH_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "AFTERMATH_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AFTERMATH_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AFTERMATH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AFTERMATH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AFTERMATH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AFTERMATH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AFTERMATH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AFTERMATH_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "AFTERMATH_REDIS_LOCK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AFTERMATH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AFTERMATH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AFTERMATH_S3_REGION")
	setStr(&cfg.S3.Bucket, "AFTERMATH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AFTERMATH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AFTERMATH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AFTERMATH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AFTERMATH_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ArchiveCron, "AFTERMATH_S3_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "AFTERMATH_MODE")
	setStr(&cfg.LogLevel, "AFTERMATH_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
