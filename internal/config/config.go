// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// データストアの種別
const (
	DataStorePostgres = "postgres"
	DataStoreMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DataStore    string `env:"DATA_STORE" env-default:"postgres"`
	DatabaseURL  string `env:"DATABASE_URL"`
	TxMaxRetries int    `env:"TX_MAX_RETRIES" env-default:"3"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" env-default:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" env-default:"1h"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral  int `env:"RATE_LIMIT_GENERAL" env-default:"120"`
	RateLimitMutation int `env:"RATE_LIMIT_MUTATION" env-default:"60"`

	// View cache
	ViewCacheTTL time.Duration `env:"VIEW_CACHE_TTL" env-default:"30s"`

	// Link preview
	LinkPreviewEnabled bool          `env:"LINK_PREVIEW_ENABLED" env-default:"true"`
	LinkPreviewTimeout time.Duration `env:"LINK_PREVIEW_TIMEOUT" env-default:"5s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`

	// Server
	ServerPort string `env:"SERVER_PORT" env-default:"8080"`
	BaseURL    string `env:"BASE_URL"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" env-default:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.DataStore = strings.ToLower(strings.TrimSpace(cfg.DataStore))

	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"GOOGLE_CLIENT_ID", cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URL", cfg.GoogleRedirectURL},
		{"BASE_URL", cfg.BaseURL},
	}
	if cfg.DataStore == DataStorePostgres {
		required = append(required, struct {
			name  string
			value string
		}{"DATABASE_URL", cfg.DatabaseURL})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// validate は値の範囲と列挙値を検証する。
func (c *Config) validate() error {
	switch c.DataStore {
	case DataStorePostgres, DataStoreMemory:
	default:
		return fmt.Errorf("invalid DATA_STORE %q: must be %q or %q", c.DataStore, DataStorePostgres, DataStoreMemory)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or pretty", c.LogFormat)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"SESSION_MAX_AGE", int64(c.SessionMaxAge)},
		{"RATE_LIMIT_GENERAL", int64(c.RateLimitGeneral)},
		{"RATE_LIMIT_MUTATION", int64(c.RateLimitMutation)},
		{"SESSION_CLEANUP_INTERVAL", int64(c.SessionCleanupInterval)},
		{"VIEW_CACHE_TTL", int64(c.ViewCacheTTL)},
		{"LINK_PREVIEW_TIMEOUT", int64(c.LinkPreviewTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("invalid %s: must be positive", p.name)
		}
	}

	if c.TxMaxRetries < 0 {
		return fmt.Errorf("invalid TX_MAX_RETRIES: must not be negative")
	}

	return nil
}
