package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path skips the file stage entirely; environment overrides and
// defaults still apply, so the service can run from env vars alone.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with the defaults named in the external interface contract.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "production",
		},
		Ledger: LedgerConfig{
			BaseURL: "https://api.mainnet.minepi.com",
			Timeout: Duration{Duration: 30 * time.Second},
		},
		Thresholds: ThresholdsConfig{
			MinTransactions:         100,
			MinCreditedTransactions: 50,
			MinUniqueWallets:        10,
		},
		Cache: CacheConfig{
			TTL: Duration{Duration: time.Hour},
		},
		RateLimit: RateLimitConfig{
			WalletMax:    5,
			WalletWindow: Duration{Duration: time.Hour},

			GlobalEnabled: true,
			GlobalLimit:   1000,
			GlobalWindow:  Duration{Duration: time.Minute},

			PerIPEnabled: true,
			PerIPLimit:   120,
			PerIPWindow:  Duration{Duration: time.Minute},
		},
		Batch: BatchConfig{
			MaxEntries:  10,
			Concurrency: 3,
		},
		Webhook: WebhookConfig{
			Timeout:  Duration{Duration: 10 * time.Second},
			Attempts: 3,
			Backoff: []Duration{
				{Duration: 0},
				{Duration: time.Second},
				{Duration: 5 * time.Second},
			},
		},
		Storage: StorageConfig{
			Backend:                "memory",
			VerificationsTableName: "verifications",
			RateBucketsTableName:   "rate_buckets",
			WebhookLogTableName:    "webhook_deliveries",
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			Ledger: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			Webhook: BreakerServiceConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second},
				ConsecutiveFailures: 10,
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
