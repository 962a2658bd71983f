package config

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// finalize fills any remaining defaults that depend on other fields and
// validates the resulting configuration, mirroring the source codebase's
// finalize/validate pattern but scoped to this domain's much smaller
// surface (no Stripe/X402/paywall validation applies here).
func (c *Config) finalize() error {
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Storage.VerificationsTableName == "" {
		c.Storage.VerificationsTableName = "verifications"
	}
	if c.Storage.RateBucketsTableName == "" {
		c.Storage.RateBucketsTableName = "rate_buckets"
	}
	if c.Storage.WebhookLogTableName == "" {
		c.Storage.WebhookLogTableName = "webhook_deliveries"
	}
	if c.Storage.PostgresPool.MaxOpenConns == 0 {
		c.Storage.PostgresPool.MaxOpenConns = 25
	}
	if c.Storage.PostgresPool.MaxIdleConns == 0 {
		c.Storage.PostgresPool.MaxIdleConns = 5
	}

	return c.validate()
}

// validate returns an error describing the first configuration problem found.
func (c *Config) validate() error {
	if c.Auth.APIKey == "" && c.Auth.InternalTrustKey == "" {
		return fmt.Errorf("config: at least one of API_KEY or INTERNAL_TRUST_KEY must be set")
	}

	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("config: ledger base URL must not be empty")
	}
	if u, err := url.Parse(c.Ledger.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: ledger base URL %q is not a valid absolute URL", c.Ledger.BaseURL)
	}

	if c.Thresholds.MinTransactions < 0 || c.Thresholds.MinCreditedTransactions < 0 || c.Thresholds.MinUniqueWallets < 0 {
		return fmt.Errorf("config: thresholds must not be negative")
	}

	if c.RateLimit.WalletMax <= 0 {
		return fmt.Errorf("config: rate_limit.wallet_max must be positive")
	}
	if c.RateLimit.WalletWindow.Duration <= 0 {
		return fmt.Errorf("config: rate_limit.wallet_window must be positive")
	}

	if c.Batch.MaxEntries <= 0 {
		return fmt.Errorf("config: batch.max_entries must be positive")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("config: batch.concurrency must be positive")
	}
	if c.Batch.Concurrency > c.Batch.MaxEntries {
		return fmt.Errorf("config: batch.concurrency (%d) must not exceed batch.max_entries (%d)", c.Batch.Concurrency, c.Batch.MaxEntries)
	}

	if c.Webhook.Attempts <= 0 {
		return fmt.Errorf("config: webhook.attempts must be positive")
	}
	if len(c.Webhook.Backoff) != c.Webhook.Attempts {
		return fmt.Errorf("config: webhook.backoff must have exactly %d entries (one per attempt), got %d", c.Webhook.Attempts, len(c.Webhook.Backoff))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "memory", "":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("config: storage.postgres_url required when storage.backend=postgres")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			return fmt.Errorf("config: storage.mongodb_url required when storage.backend=mongodb")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}

	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database
// connection, defaulting any unset field.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
