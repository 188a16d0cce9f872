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
// built-in defaults, applies PAPERTRADER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAPERTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.LedgerID, "PAPERTRADER_LEDGER_ID")
	setFloat64(&cfg.Ledger.InitialCapital, "PAPERTRADER_LEDGER_INITIAL_CAPITAL")
	setBool(&cfg.Ledger.ValidateLevels, "PAPERTRADER_LEDGER_VALIDATE_LEVELS")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "PAPERTRADER_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "PAPERTRADER_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "PAPERTRADER_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "PAPERTRADER_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "PAPERTRADER_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "PAPERTRADER_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "PAPERTRADER_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "PAPERTRADER_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "PAPERTRADER_SUPABASE_POOL_MIN_CONNS")
	setStr(&cfg.Supabase.ApiURL, "PAPERTRADER_SUPABASE_API_URL")
	setStr(&cfg.Supabase.ApiKey, "PAPERTRADER_SUPABASE_API_KEY")
	setBool(&cfg.Supabase.RunMigrations, "PAPERTRADER_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PAPERTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAPERTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAPERTRADER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PAPERTRADER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PAPERTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAPERTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAPERTRADER_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "PAPERTRADER_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "PAPERTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAPERTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAPERTRADER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAPERTRADER_S3_FORCE_PATH_STYLE")

	// ── Poll ──
	setDuration(&cfg.Poll.ForegroundInterval, "PAPERTRADER_POLL_FOREGROUND_INTERVAL")
	setDuration(&cfg.Poll.BackgroundInterval, "PAPERTRADER_POLL_BACKGROUND_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAPERTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAPERTRADER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERTRADER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAPERTRADER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PAPERTRADER_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAPERTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.FCMCredentialsPath, "PAPERTRADER_NOTIFY_FCM_CREDENTIALS_PATH")
	setStr(&cfg.Notify.FCMTopic, "PAPERTRADER_NOTIFY_FCM_TOPIC")
	setStringSlice(&cfg.Notify.Events, "PAPERTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAPERTRADER_MODE")
	setStr(&cfg.LogLevel, "PAPERTRADER_LOG_LEVEL")
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
