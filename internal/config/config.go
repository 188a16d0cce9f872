// Package config defines the top-level configuration for the paper trading
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERTRADER_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Poll     PollConfig     `toml:"poll"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the simulated ledger parameters.
type LedgerConfig struct {
	LedgerID       string  `toml:"ledger_id"`
	InitialCapital float64 `toml:"initial_capital"`
	ValidateLevels bool    `toml:"validate_levels"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters. The DSN
// takes precedence over the discrete host fields when set. ApiURL and ApiKey
// point at the Supabase REST endpoint used for the remote position mirror.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	ApiURL        string `toml:"api_url"`
	ApiKey        string `toml:"api_key"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the closed-trade
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PollConfig holds the price polling cadence. Foreground covers symbols with
// at least one open position; background sweeps the full ledger less often.
type PollConfig struct {
	ForegroundInterval duration `toml:"foreground_interval"`
	BackgroundInterval duration `toml:"background_interval"`
}

// ServerConfig holds HTTP API server parameters. An empty APIKey disables
// authentication; a zero RateLimit disables per-client rate limiting.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per minute per client
}

// NotifyConfig holds notification channel credentials. Events filters which
// event kinds are forwarded; an empty list disables notifications.
type NotifyConfig struct {
	TelegramToken      string   `toml:"telegram_token"`
	TelegramChatID     string   `toml:"telegram_chat_id"`
	DiscordWebhookURL  string   `toml:"discord_webhook_url"`
	FCMCredentialsPath string   `toml:"fcm_credentials_path"`
	FCMTopic           string   `toml:"fcm_topic"`
	Events             []string `toml:"events"`
}

// duration wraps time.Duration so TOML values like "5m" or "30s" decode
// directly.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sane local-development defaults.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			LedgerID:       "default",
			InitialCapital: 10_000,
			ValidateLevels: false,
		},
		Supabase: SupabaseConfig{
			DSN:           "",
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
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "papertrader-data",
			Prefix:         "trades",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Poll: PollConfig{
			ForegroundInterval: duration{3 * time.Second},
			BackgroundInterval: duration{60 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"engine": true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, engine)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.LedgerID == "" {
		errs = append(errs, "ledger: ledger_id must not be empty")
	}
	if c.Ledger.InitialCapital <= 0 {
		errs = append(errs, fmt.Sprintf("ledger: initial_capital must be positive, got %v", c.Ledger.InitialCapital))
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}
	// The REST mirror needs both the URL and key or neither.
	au := c.Supabase.ApiURL != ""
	ak := c.Supabase.ApiKey != ""
	if au != ak {
		errs = append(errs, "supabase: api_url and api_key must be set together")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when s3 is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when s3 is enabled")
		}
	}

	// Poll
	if c.Poll.ForegroundInterval.Duration <= 0 {
		errs = append(errs, "poll: foreground_interval must be positive")
	}
	if c.Poll.BackgroundInterval.Duration <= 0 {
		errs = append(errs, "poll: background_interval must be positive")
	}
	if c.Poll.BackgroundInterval.Duration < c.Poll.ForegroundInterval.Duration {
		errs = append(errs, "poll: background_interval must not be shorter than foreground_interval")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify — telegram fields must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	fc := c.Notify.FCMCredentialsPath != ""
	ft := c.Notify.FCMTopic != ""
	if fc != ft {
		errs = append(errs, "notify: fcm_credentials_path and fcm_topic must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
