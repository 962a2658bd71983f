package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Ledger         LedgerConfig         `yaml:"ledger"`
	Auth           AuthConfig           `yaml:"auth"`
	Thresholds     ThresholdsConfig     `yaml:"thresholds"`
	Cache          CacheConfig          `yaml:"cache"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Batch          BatchConfig          `yaml:"batch"`
	Webhook        WebhookConfig        `yaml:"webhook"`
	Storage        StorageConfig        `yaml:"storage"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	WriteTimeout        Duration `yaml:"write_timeout"`
	IdleTimeout         Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`
	AdminMetricsAPIKey  string   `yaml:"admin_metrics_api_key"` // optional API key to protect /metrics
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// LedgerConfig holds the remote Horizon-style ledger API configuration.
type LedgerConfig struct {
	BaseURL string   `yaml:"base_url"` // default https://api.mainnet.minepi.com
	Timeout Duration `yaml:"timeout"`  // per-page request timeout, default 30s
}

// AuthConfig holds the dual API-key/internal-trust authentication configuration.
type AuthConfig struct {
	APIKey          string `yaml:"-"` // API_KEY env only, never logged or written back to YAML
	InternalTrustKey string `yaml:"-"`
}

// ThresholdsConfig holds the default business-activity thresholds.
type ThresholdsConfig struct {
	MinTransactions         int `yaml:"min_transactions"`
	MinCreditedTransactions int `yaml:"min_credited_transactions"`
	MinUniqueWallets        int `yaml:"min_unique_wallets"`
}

// CacheConfig holds verification-cache configuration.
type CacheConfig struct {
	TTL                    Duration `yaml:"ttl"`                      // default 1h
	RedisAddr              string   `yaml:"redis_addr"`               // empty falls back to in-process cache
	RedisDB                int      `yaml:"redis_db"`
	IncludeThresholdsInKey bool     `yaml:"include_thresholds_in_key"` // opt-in; default false
}

// RateLimitConfig holds both the atomic per-wallet limiter and the coarse process-local layer.
type RateLimitConfig struct {
	// Per-wallet atomic sliding window (component C). This is the limiter whose
	// refusal is surfaced to callers via the X-RateLimit-* headers.
	WalletMax    int      `yaml:"wallet_max"`    // default 5
	WalletWindow Duration `yaml:"wallet_window"` // default 1h

	// Coarse process-local throttling layered in front of the atomic limiter,
	// to blunt abusive traffic before it reaches the per-wallet store.
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// BatchConfig holds batch-orchestrator limits.
type BatchConfig struct {
	MaxEntries  int `yaml:"max_entries"`  // default 10
	Concurrency int `yaml:"concurrency"`  // default 3
}

// WebhookConfig holds webhook dispatcher configuration.
type WebhookConfig struct {
	Timeout  Duration   `yaml:"timeout"`  // per-attempt timeout, default 10s
	Attempts int        `yaml:"attempts"` // default 3
	Backoff  []Duration `yaml:"backoff"`  // default [0s, 1s, 5s], one entry per attempt
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // default 25
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // default 5
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // default 5m
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Backend         string             `yaml:"backend"` // "memory", "postgres", or "mongodb"
	PostgresURL     string             `yaml:"postgres_url"`
	MongoDBURL      string             `yaml:"mongodb_url"`
	MongoDBDatabase string             `yaml:"mongodb_database"`
	PostgresPool    PostgresPoolConfig `yaml:"postgres_pool"`

	VerificationsTableName string `yaml:"verifications_table"` // default "verifications"
	RateBucketsTableName   string `yaml:"rate_buckets_table"`  // default "rate_buckets"
	WebhookLogTableName    string `yaml:"webhook_log_table"`   // default "webhook_deliveries"
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Ledger  BreakerServiceConfig `yaml:"ledger"`
	Webhook BreakerServiceConfig `yaml:"webhook"`
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
