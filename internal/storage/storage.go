// Package storage persists verification records, per-wallet rate-limit
// buckets, and the webhook delivery log behind a single Store interface,
// with memory, PostgreSQL, and MongoDB implementations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/config"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = errors.New("storage: not found")

// Store captures every persistence requirement of the verification pipeline.
type Store interface {
	// UpsertVerification inserts or updates the record for a wallet and
	// returns the stored row including its opaque id.
	UpsertVerification(ctx context.Context, rec VerificationRecord) (VerificationRecord, error)
	GetVerificationByWallet(ctx context.Context, wallet string) (VerificationRecord, error)

	// CheckRateLimit applies the sliding-window rule atomically and returns
	// whether the call is allowed, the bucket's count after the check, and
	// the window's reset time.
	CheckRateLimit(ctx context.Context, wallet string, max int, window time.Duration) (allowed bool, count int, resetAt time.Time, err error)

	// CheckAllowance and IncrementUsage implement the per-user quota gate.
	CheckAllowance(ctx context.Context, externalUserID string) (allowed bool, remaining int, err error)
	IncrementUsage(ctx context.Context, externalUserID string) error

	LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error
	UpdateWebhookDelivery(ctx context.Context, d WebhookDelivery) error

	Close() error
}

// StoreConfig holds storage backend configuration.
type StoreConfig struct {
	Backend         string // "memory", "postgres", or "mongodb"
	PostgresURL     string
	MongoDBURL      string
	MongoDBDatabase string
	PostgresPool    config.PostgresPoolConfig

	VerificationsTableName string
	RateBucketsTableName   string
	WebhookLogTableName    string

	// DefaultAllowance is the quota granted to each external user id by the
	// memory backend (0 means unlimited); the postgres and mongodb backends
	// do not use it.
	DefaultAllowance int
}

// NewStore creates a Store instance based on the provided configuration.
func NewStore(cfg StoreConfig) (Store, error) {
	return NewStoreWithDB(cfg, nil)
}

// NewStoreWithDB creates a Store instance, optionally reusing an existing
// *sql.DB connection pool for the postgres backend.
func NewStoreWithDB(cfg StoreConfig, sharedDB *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.DefaultAllowance), nil
	case "postgres":
		if cfg.PostgresURL == "" && sharedDB == nil {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		var store *PostgresStore
		var err error
		if sharedDB != nil {
			store, err = NewPostgresStoreWithDB(sharedDB)
		} else {
			store, err = NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool)
		}
		if err != nil {
			return nil, err
		}
		return store.WithTableNames(cfg.VerificationsTableName, cfg.RateBucketsTableName, cfg.WebhookLogTableName), nil
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_database")
		}
		return NewMongoDBStore(cfg.MongoDBURL, cfg.MongoDBDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
