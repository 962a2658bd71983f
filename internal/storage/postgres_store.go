package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/config"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db                     *sql.DB
	ownsDB                 bool
	verificationsTableName string
	rateBucketsTableName   string
	webhookLogTableName    string
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(connectionString string, poolConfig config.PostgresPoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)

	store := newPostgresStore(db, true)
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB creates a PostgreSQL-backed store using an existing
// connection pool (such as a dbpool.SharedPool) that it does not own and
// does not close.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := newPostgresStore(db, false)
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func newPostgresStore(db *sql.DB, ownsDB bool) *PostgresStore {
	return &PostgresStore{
		db:                     db,
		ownsDB:                 ownsDB,
		verificationsTableName: "verifications",
		rateBucketsTableName:   "rate_buckets",
		webhookLogTableName:    "webhook_deliveries",
	}
}

// WithTableNames applies schema-mapping table name overrides and recreates
// tables under the new names (CREATE TABLE IF NOT EXISTS is a no-op for
// tables that already exist).
func (s *PostgresStore) WithTableNames(verifications, rateBuckets, webhookLog string) *PostgresStore {
	if verifications != "" {
		s.verificationsTableName = verifications
	}
	if rateBuckets != "" {
		s.rateBucketsTableName = rateBuckets
	}
	if webhookLog != "" {
		s.webhookLogTableName = webhookLog
	}
	_ = s.createTables()
	return s
}

func (s *PostgresStore) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			wallet_address TEXT UNIQUE NOT NULL,
			business_name TEXT NOT NULL,
			external_user_id TEXT NOT NULL,
			total INTEGER NOT NULL,
			credited INTEGER NOT NULL,
			unique_counterparties INTEGER NOT NULL,
			decision_status TEXT NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.verificationsTableName))
	if err != nil {
		return fmt.Errorf("create verifications table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			wallet_address TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			window_start TIMESTAMPTZ NOT NULL
		)`, s.rateBucketsTableName))
	if err != nil {
		return fmt.Errorf("create rate buckets table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			delivery_id TEXT PRIMARY KEY,
			verification_id TEXT NOT NULL,
			webhook_url TEXT NOT NULL,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			http_status INTEGER NOT NULL DEFAULT 0,
			response_snippet TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`, s.webhookLogTableName))
	if err != nil {
		return fmt.Errorf("create webhook deliveries table: %w", err)
	}

	return nil
}

// UpsertVerification inserts or updates the record for a wallet in a single
// statement and returns the stored row including its id.
func (s *PostgresStore) UpsertVerification(ctx context.Context, rec VerificationRecord) (VerificationRecord, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (wallet_address, business_name, external_user_id, total, credited, unique_counterparties, decision_status, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (wallet_address) DO UPDATE SET
			business_name = EXCLUDED.business_name,
			external_user_id = EXCLUDED.external_user_id,
			total = EXCLUDED.total,
			credited = EXCLUDED.credited,
			unique_counterparties = EXCLUDED.unique_counterparties,
			decision_status = EXCLUDED.decision_status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = now()
		RETURNING id, updated_at
	`, s.verificationsTableName)

	row := s.db.QueryRowContext(ctx, query,
		rec.WalletAddress, rec.BusinessName, rec.ExternalUserID,
		rec.Total, rec.Credited, rec.UniqueCounterparties,
		rec.DecisionStatus, rec.FailureReason)

	var id int64
	if err := row.Scan(&id, &rec.UpdatedAt); err != nil {
		return VerificationRecord{}, fmt.Errorf("upsert verification: %w", err)
	}
	rec.ID = fmt.Sprintf("ver_%d", id)
	return rec, nil
}

// GetVerificationByWallet retrieves a verification record by wallet address.
func (s *PostgresStore) GetVerificationByWallet(ctx context.Context, wallet string) (VerificationRecord, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, wallet_address, business_name, external_user_id, total, credited, unique_counterparties, decision_status, failure_reason, updated_at
		FROM %s WHERE wallet_address = $1
	`, s.verificationsTableName)

	var rec VerificationRecord
	var id int64
	row := s.db.QueryRowContext(ctx, query, wallet)
	err := row.Scan(&id, &rec.WalletAddress, &rec.BusinessName, &rec.ExternalUserID,
		&rec.Total, &rec.Credited, &rec.UniqueCounterparties,
		&rec.DecisionStatus, &rec.FailureReason, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return VerificationRecord{}, ErrNotFound
	}
	if err != nil {
		return VerificationRecord{}, fmt.Errorf("get verification: %w", err)
	}
	rec.ID = fmt.Sprintf("ver_%d", id)
	return rec, nil
}

// CheckRateLimit applies the sliding-window rule with a single UPSERT: the
// ON CONFLICT DO UPDATE clause takes Postgres's implicit per-row lock, so
// concurrent callers for the same wallet serialise instead of racing a
// read-then-write. A row past its window resets to count=1; otherwise the
// count is incremented only while still under max, so a wallet already at
// the limit is left unchanged (and reported as refused) rather than
// incrementing forever.
func (s *PostgresStore) CheckRateLimit(ctx context.Context, wallet string, max int, window time.Duration) (bool, int, time.Time, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %[1]s AS rb (wallet_address, count, window_start)
		VALUES ($1, 1, now())
		ON CONFLICT (wallet_address) DO UPDATE SET
			count = CASE
				WHEN now() - rb.window_start >= $2::interval THEN 1
				WHEN rb.count < $3 THEN rb.count + 1
				ELSE rb.count
			END,
			window_start = CASE
				WHEN now() - rb.window_start >= $2::interval THEN now()
				ELSE rb.window_start
			END
		WHERE now() - rb.window_start >= $2::interval OR rb.count < $3
		RETURNING count, window_start
	`, s.rateBucketsTableName)

	var count int
	var windowStart time.Time
	row := s.db.QueryRowContext(ctx, query, wallet, window.String(), max)
	err := row.Scan(&count, &windowStart)
	if err == sql.ErrNoRows {
		// The conditional update matched nothing: the wallet is at the limit
		// within its window, so read the unchanged bucket and refuse.
		sel := fmt.Sprintf(`SELECT count, window_start FROM %s WHERE wallet_address = $1`, s.rateBucketsTableName)
		if err := s.db.QueryRowContext(ctx, sel, wallet).Scan(&count, &windowStart); err != nil {
			return false, 0, time.Time{}, fmt.Errorf("check rate limit: %w", err)
		}
		return false, count, windowStart.Add(window), nil
	}
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("check rate limit: %w", err)
	}

	resetAt := windowStart.Add(window)
	allowed := count <= max
	return allowed, count, resetAt, nil
}

// CheckAllowance always permits with an unlimited remaining quota:
// PostgresStore keeps no quota ledger and calls no subscription service,
// matching the core's "subscription allowance is opaque" data model.
func (s *PostgresStore) CheckAllowance(_ context.Context, _ string) (bool, int, error) {
	return true, -1, nil
}

// IncrementUsage is a no-op: usage accounting lives with the external
// subscription service, not in this store.
func (s *PostgresStore) IncrementUsage(_ context.Context, _ string) error {
	return nil
}

// LogWebhookDelivery records a new delivery attempt row.
func (s *PostgresStore) LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (delivery_id, verification_id, webhook_url, payload, status, http_status, response_snippet, error_message, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, s.webhookLogTableName)

	_, err := s.db.ExecContext(ctx, query,
		d.DeliveryID, d.VerificationID, d.WebhookURL, d.Payload, d.Status,
		d.HTTPStatus, d.ResponseSnippet, d.ErrorMessage, d.Attempt)
	return err
}

// UpdateWebhookDelivery finalises a previously logged delivery row.
func (s *PostgresStore) UpdateWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET
			status = $2, http_status = $3, response_snippet = $4, error_message = $5, attempt = $6, completed_at = $7
		WHERE delivery_id = $1
	`, s.webhookLogTableName)

	result, err := s.db.ExecContext(ctx, query,
		d.DeliveryID, d.Status, d.HTTPStatus, d.ResponseSnippet, d.ErrorMessage, d.Attempt, d.CompletedAt)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the underlying connection pool if this store created it.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
