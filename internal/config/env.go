package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration. Names match
// the external interface contract exactly (LEDGER_BASE, API_KEY, ...) rather
// than a namespaced prefix, since external operators configure this service
// by those names.
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Ledger.BaseURL, "LEDGER_BASE")
	setDurationIfEnv(&c.Ledger.Timeout, "LEDGER_TIMEOUT")

	setIfEnv(&c.Auth.APIKey, "API_KEY")
	setIfEnv(&c.Auth.InternalTrustKey, "INTERNAL_TRUST_KEY")

	setIntIfEnv(&c.Thresholds.MinTransactions, "MIN_TRANSACTIONS")
	setIntIfEnv(&c.Thresholds.MinCreditedTransactions, "MIN_CREDITED_TRANSACTIONS")
	setIntIfEnv(&c.Thresholds.MinUniqueWallets, "MIN_UNIQUE_WALLETS")

	setDurationIfEnv(&c.Cache.TTL, "CACHE_TTL")
	setIfEnv(&c.Cache.RedisAddr, "REDIS_ADDR")
	setBoolIfEnv(&c.Cache.IncludeThresholdsInKey, "CACHE_KEY_INCLUDE_THRESHOLDS")

	setIntIfEnv(&c.RateLimit.WalletMax, "RATE_MAX")
	setDurationIfEnv(&c.RateLimit.WalletWindow, "RATE_WINDOW")

	setIntIfEnv(&c.Batch.MaxEntries, "BATCH_MAX")
	setIntIfEnv(&c.Batch.Concurrency, "BATCH_CONCURRENCY")

	setDurationIfEnv(&c.Webhook.Timeout, "WEBHOOK_TIMEOUT")
	setIntIfEnv(&c.Webhook.Attempts, "WEBHOOK_ATTEMPTS")
	if raw := os.Getenv("WEBHOOK_BACKOFF"); raw != "" {
		if backoff, ok := parseBackoffList(raw); ok {
			c.Webhook.Backoff = backoff
		}
	}

	setIfEnv(&c.Storage.Backend, "STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "MONGODB_DATABASE")

	setIfEnv(&c.Server.Address, "SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "ADMIN_METRICS_API_KEY")
	setIfEnv(&c.Logging.Level, "LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "ENVIRONMENT")

	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		c.Server.CORSAllowedOrigins = strings.Split(raw, ",")
	}
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// parseBackoffList parses a bracketed, comma-separated delay list such as
// "[0,1s,5s]" into a Duration slice. A bare "0" is treated as zero seconds.
func parseBackoffList(raw string) ([]Duration, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil, false
	}
	parts := strings.Split(raw, ",")
	out := make([]Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "0" {
			out = append(out, Duration{Duration: 0})
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, false
		}
		out = append(out, Duration{Duration: d})
	}
	return out, true
}
