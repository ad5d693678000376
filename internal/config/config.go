package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/backend-impor/internal/common"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	MigrateOnStart     bool
	// TrustedProxies may set X-Forwarded-For / X-Real-IP; other peers' headers are ignored.
	TrustedProxies     []netip.Prefix

	CatalogRefreshInterval time.Duration
	CatalogDefaultLimit    int
	CatalogMaxLimit        int

	RatesCacheTTL        time.Duration
	RatesOfflineFallback bool
	BreakerMinRequests   int
	BreakerOpenFor       time.Duration

	CompatMaxAlternatives int
	QuoteRateLimit        string

	OrderLockTTL     time.Duration
	LockRetryBackoff time.Duration
	IdempotencyTTL   time.Duration
	MaxBodyBytes     int64

	// EventWebhookURL receives committed-order events when set.
	EventWebhookURL    string
	EventWebhookSecret string
	EventWebhookTopics []string

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration

	Obs Obs
}

// Obs groups logging, metrics and tracing settings (OBS_* variables).
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START"), false),

		CatalogRefreshInterval: parseDuration(k.String("CATALOG_REFRESH_INTERVAL"), "5m"),
		CatalogDefaultLimit:    parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:        parseInt(k.String("CATALOG_MAX_LIMIT"), 100),

		RatesCacheTTL:        parseDuration(k.String("RATES_CACHE_TTL"), "1m"),
		RatesOfflineFallback: parseBool(k.String("RATES_OFFLINE_FALLBACK"), false),
		BreakerMinRequests:   parseInt(k.String("RATES_BREAKER_MIN_REQUESTS"), 5),
		BreakerOpenFor:       parseDuration(k.String("RATES_BREAKER_OPEN_FOR"), "30s"),

		CompatMaxAlternatives: parseInt(k.String("COMPAT_MAX_ALTERNATIVES"), 5),
		QuoteRateLimit:        valueOrDefault(k.String("QUOTE_RATE_LIMIT"), "120-M"),

		OrderLockTTL:     parseDuration(k.String("ORDER_LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		MaxBodyBytes:     int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),

		EventWebhookURL:    strings.TrimSpace(k.String("EVENT_WEBHOOK_URL")),
		EventWebhookSecret: k.String("EVENT_WEBHOOK_SECRET"),
		EventWebhookTopics: splitAndTrim(k.String("EVENT_WEBHOOK_TOPICS")),

		HealthDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),

		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "impor"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		},
	}

	proxies, err := common.ParseTrustedProxies(splitAndTrim(k.String("TRUSTED_PROXIES")))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.CompatMaxAlternatives <= 0 {
		return nil, errors.New("COMPAT_MAX_ALTERNATIVES must be positive")
	}
	if cfg.CatalogMaxLimit < cfg.CatalogDefaultLimit {
		return nil, errors.New("CATALOG_MAX_LIMIT must not be below CATALOG_DEFAULT_LIMIT")
	}
	if cfg.EventWebhookURL != "" && cfg.EventWebhookSecret == "" {
		return nil, errors.New("EVENT_WEBHOOK_SECRET is required when EVENT_WEBHOOK_URL is set")
	}
	if cfg.IsProduction() && cfg.RatesOfflineFallback {
		return nil, errors.New("RATES_OFFLINE_FALLBACK must be disabled in production")
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
