// Package config defines the top-level configuration for the aftermath bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // day_timezone must resolve in minimal containers

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AFTERMATH_* environment variables.
type Config struct {
	Polygon    PolygonConfig    `toml:"polygon"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Wallet     WalletConfig     `toml:"wallet"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	HTTP       HTTPConfig       `toml:"http"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolygonConfig holds the financial data API credentials.
type PolygonConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	// RateLimit is the maximum number of requests per second. Zero disables
	// client-side throttling.
	RateLimit float64 `toml:"rate_limit"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string  `toml:"clob_host"`
	APIKey    string  `toml:"api_key"`
	ChainID   int     `toml:"chain_id"`
	RateLimit float64 `toml:"rate_limit"`
}

// WalletConfig holds wallet credentials and the starting balance.
type WalletConfig struct {
	PrivateKey       string  `toml:"private_key"`
	Address          string  `toml:"address"`
	EncryptedKeyPath string  `toml:"encrypted_key_path"`
	KeyPassword      string  `toml:"key_password"`
	InitialBalance   float64 `toml:"initial_balance"`
}

// TradingConfig holds the sizing and profitability parameters.
type TradingConfig struct {
	// AllocationPct is the percent of balance committed per trade.
	AllocationPct float64 `toml:"allocation_pct"`
	// MinReturnThreshold is the minimum expected return in percent.
	MinReturnThreshold float64 `toml:"min_return_threshold"`
}

// RiskConfig holds exposure limits.
type RiskConfig struct {
	MaxConcurrent   int     `toml:"max_concurrent"`
	MaxDaily        int     `toml:"max_daily"`
	MaxPositionSize float64 `toml:"max_position_size"`
	// DayTimezone is the IANA zone whose calendar midnight resets the daily
	// trade counter.
	DayTimezone string `toml:"day_timezone"`
}

// SchedulerConfig holds the trigger loop cadence.
type SchedulerConfig struct {
	ScanInterval  duration `toml:"scan_interval"`
	WindowMinutes int      `toml:"window_minutes"`
	HorizonDays   int      `toml:"horizon_days"`
	// CalendarEvery re-runs the calendar scan every N ticks.
	CalendarEvery int      `toml:"calendar_every"`
	ErrorBackoff  duration `toml:"error_backoff"`
	MaxParallel   int      `toml:"max_parallel"`

	// SettleInterval is how often open trades are checked for resolution.
	SettleInterval duration `toml:"settle_interval"`
}

// Window returns the post-release trading window as a duration.
func (s SchedulerConfig) Window() time.Duration {
	return time.Duration(s.WindowMinutes) * time.Minute
}

// HTTPConfig holds outbound HTTP client parameters shared by both providers.
type HTTPConfig struct {
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	RetryBase  duration `toml:"retry_base"`
}

// MetricsConfig toggles the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// duration wraps time.Duration for TOML string decoding.
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

// ServerConfig holds HTTP API server parameters. An empty APIKey disables
// authentication. RateLimit is requests per minute per client IP, 0 disables.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// DatabaseConfig holds the optional PostgreSQL trade journal connection.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the optional Redis connection used for trigger locks and
// event fan-out.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters for journal
// archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveCron is a 5-field UTC cron expression (or @daily style
	// descriptor) for the daily export.
	ArchiveCron    string `toml:"archive_cron"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polygon: PolygonConfig{
			BaseURL:   "https://api.polygon.io",
			RateLimit: 5,
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			ChainID:   137,
			RateLimit: 10,
		},
		Wallet: WalletConfig{
			InitialBalance: 100,
		},
		Trading: TradingConfig{
			AllocationPct:      10,
			MinReturnThreshold: 5,
		},
		Risk: RiskConfig{
			MaxConcurrent:   3,
			MaxDaily:        20,
			MaxPositionSize: 50,
			DayTimezone:     "America/New_York",
		},
		Scheduler: SchedulerConfig{
			ScanInterval:   duration{60 * time.Second},
			WindowMinutes:  5,
			HorizonDays:    7,
			CalendarEvery:  1,
			ErrorBackoff:   duration{10 * time.Second},
			MaxParallel:    1,
			SettleInterval: duration{2 * time.Minute},
		},
		HTTP: HTTPConfig{
			Timeout:    duration{5 * time.Second},
			MaxRetries: 0,
			RetryBase:  duration{250 * time.Millisecond},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    8080,
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "trade_failed", "risk_limit", "error"},
		},
		Database: DatabaseConfig{
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			LockTTL:    duration{2 * time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "aftermath-journal",
			ForcePathStyle: true,
			ArchiveCron:    "15 0 * * *",
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"scan":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for logical errors and returns a combined
// error describing every problem found, or nil when the config is valid.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polygon.APIKey == "" {
		errs = append(errs, "polygon: api_key must be set")
	}
	if c.Polygon.BaseURL == "" {
		errs = append(errs, "polygon: base_url must not be empty")
	}
	if c.Polygon.RateLimit < 0 {
		errs = append(errs, "polygon: rate_limit must be >= 0")
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.RateLimit < 0 {
		errs = append(errs, "polymarket: rate_limit must be >= 0")
	}

	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}
	if c.Wallet.InitialBalance < 0 {
		errs = append(errs, "wallet: initial_balance must be >= 0")
	}

	if c.Trading.AllocationPct <= 0 || c.Trading.AllocationPct > 100 {
		errs = append(errs, fmt.Sprintf("trading: allocation_pct must be in (0, 100], got %g", c.Trading.AllocationPct))
	}
	if c.Trading.MinReturnThreshold < 0 {
		errs = append(errs, "trading: min_return_threshold must be >= 0")
	}

	if c.Risk.MaxConcurrent <= 0 {
		errs = append(errs, "risk: max_concurrent must be positive")
	}
	if c.Risk.MaxDaily <= 0 {
		errs = append(errs, "risk: max_daily must be positive")
	}
	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be positive")
	}
	if _, err := time.LoadLocation(c.Risk.DayTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("risk: day_timezone %q: %v", c.Risk.DayTimezone, err))
	}

	if c.Scheduler.ScanInterval.Duration <= 0 {
		errs = append(errs, "scheduler: scan_interval must be positive")
	}
	if c.Scheduler.WindowMinutes <= 0 {
		errs = append(errs, "scheduler: window_minutes must be positive")
	}
	if c.Scheduler.HorizonDays <= 0 {
		errs = append(errs, "scheduler: horizon_days must be positive")
	}
	if c.Scheduler.CalendarEvery <= 0 {
		errs = append(errs, "scheduler: calendar_every must be positive")
	}
	if c.Scheduler.ErrorBackoff.Duration < 0 {
		errs = append(errs, "scheduler: error_backoff must be >= 0")
	}
	if c.Scheduler.MaxParallel <= 0 {
		errs = append(errs, "scheduler: max_parallel must be positive")
	}

	if c.HTTP.Timeout.Duration <= 0 {
		errs = append(errs, "http: timeout must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, "http: max_retries must be >= 0")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Sprintf("metrics: port must be 1-65535, got %d", c.Metrics.Port))
	}
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("server: rate_limit must be >= 0, got %d", c.Server.RateLimit))
		}
		if c.Metrics.Enabled && c.Server.Port == c.Metrics.Port {
			errs = append(errs, "server: port must differ from metrics.port")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if c.Database.DSN != "" && c.Database.PoolMaxConns < c.Database.PoolMinConns {
		errs = append(errs, "database: pool_max_conns must be >= pool_min_conns")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region is required when enabled")
		}
		if c.Database.DSN == "" {
			errs = append(errs, "s3: journal archiving needs database.dsn")
		}
		if _, err := cron.ParseStandard(c.S3.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("s3: invalid archive_cron %q: %v", c.S3.ArchiveCron, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DryRun reports whether the configured mode must never submit orders.
func (c *Config) DryRun() bool {
	return strings.ToLower(c.Mode) != "trade"
}
