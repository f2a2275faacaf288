package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSessionSecretLength = 32

type Config struct {
	Port           string
	Env            string
	BaseURL        string
	DatabaseURL    string
	RedisURL       string
	AutoMigrate    bool
	UploadDir      string
	MaxUploadBytes int64
	SessionSecret  string
	SessionTTL     time.Duration
	TrustedProxies []string
	Log            LogConfig
	Webhook        WebhookConfig
	Limits         LimitsConfig

	AccessTokenRetention time.Duration
	HousekeepingInterval time.Duration
}

type LogConfig struct {
	Level  string
	File   string
	MaxAge time.Duration
}

type WebhookConfig struct {
	RateLimit        int
	RateWindow       time.Duration
	Timeout          time.Duration
	MaxResponseBytes int
	AllowRawURL      bool
	BlockPrivate     bool
}

type LimitsConfig struct {
	MaxPagesPerUser int
	SlugAttempts    int
	AuthRateLimit   int
}

// Production reports whether the process runs with production hardening
// (secure cookies, no error details in responses).
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	env := strings.ToLower(p.str("APP_ENV", "development"))
	defaultLevel := "info"
	if env != "production" {
		defaultLevel = "debug"
	}

	cfg := Config{
		Port:           p.str("PORT", "8080"),
		Env:            env,
		BaseURL:        strings.TrimRight(firstNonEmpty(getenv("APP_BASE_URL"), getenv("NEXTAUTH_URL"), "http://localhost:3000"), "/"),
		DatabaseURL:    getenv("DATABASE_URL"),
		RedisURL:       getenv("REDIS_URL"),
		AutoMigrate:    parseBool(getenv("AUTO_MIGRATE")),
		UploadDir:      p.str("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes: int64(p.integer("MAX_UPLOAD_BYTES", 10<<20)),
		SessionSecret:  getenv("SESSION_SECRET"),
		SessionTTL:     p.duration("SESSION_TTL", 7*24*time.Hour),
		TrustedProxies: parseList(getenv("TRUSTED_PROXIES")),
		Log: LogConfig{
			Level:  strings.ToLower(p.str("LOG_LEVEL", defaultLevel)),
			File:   getenv("LOG_FILE"),
			MaxAge: p.duration("LOG_MAX_AGE", 7*24*time.Hour),
		},
		Webhook: WebhookConfig{
			RateLimit:        p.integer("WEBHOOK_RATE_LIMIT", 100),
			RateWindow:       p.duration("WEBHOOK_RATE_WINDOW", time.Minute),
			Timeout:          p.duration("WEBHOOK_TIMEOUT", 30*time.Second),
			MaxResponseBytes: p.integer("WEBHOOK_MAX_RESPONSE_BYTES", 1_000_000),
			AllowRawURL:      p.flag("WEBHOOK_ALLOW_RAW_URL", true),
			BlockPrivate:     p.flag("WEBHOOK_BLOCK_PRIVATE_NETWORKS", env == "production"),
		},
		Limits: LimitsConfig{
			MaxPagesPerUser: p.integer("MAX_PAGES_PER_USER", 5),
			SlugAttempts:    p.integer("SLUG_ATTEMPTS", 10),
			AuthRateLimit:   p.integer("AUTH_RATE_LIMIT", 10),
		},
		AccessTokenRetention: p.duration("ACCESS_TOKEN_RETENTION", 0),
		HousekeepingInterval: p.duration("HOUSEKEEPING_INTERVAL", 5*time.Minute),
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if len(cfg.SessionSecret) < minSessionSecretLength {
		return Config{}, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
	}
	if cfg.Limits.MaxPagesPerUser < 1 || cfg.Limits.SlugAttempts < 1 {
		return Config{}, fmt.Errorf("MAX_PAGES_PER_USER and SLUG_ATTEMPTS must be positive")
	}
	if cfg.Webhook.RateLimit < 1 || cfg.Webhook.RateWindow <= 0 || cfg.Webhook.Timeout <= 0 {
		return Config{}, fmt.Errorf("webhook rate limit, window and timeout must be positive")
	}
	if cfg.HousekeepingInterval <= 0 {
		return Config{}, fmt.Errorf("HOUSEKEEPING_INTERVAL must be positive")
	}

	absUpload, err := filepath.Abs(cfg.UploadDir)
	if err == nil {
		cfg.UploadDir = absUpload
	}

	return cfg, nil
}

// parser records the first malformed value so Load can fail loudly.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if val := strings.Trim(p.getenv(key), "\"' \t\r\n"); val != "" {
		return val
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (p *parser) flag(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	return parseBool(raw)
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(val string) bool {
	if val == "" {
		return false
	}
	val = strings.ToLower(strings.Trim(val, "\"' "))
	return val == "1" || val == "true" || val == "yes"
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
