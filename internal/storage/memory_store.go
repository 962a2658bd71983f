package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation suitable for tests and
// single-instance deployments. State is lost on restart.
type MemoryStore struct {
	mu               sync.Mutex
	verifications    map[string]VerificationRecord // walletAddress -> record
	rateBuckets      map[string]RateBucket         // walletAddress -> bucket
	usage            map[string]int                // externalUserId -> calls made
	webhookDeliveries map[string]WebhookDelivery   // deliveryId -> entry
	defaultAllowance int
	nextID           int
}

// NewMemoryStore constructs a MemoryStore. defaultAllowance is the quota
// granted to every external user id (0 means unlimited).
func NewMemoryStore(defaultAllowance int) *MemoryStore {
	return &MemoryStore{
		verifications:     make(map[string]VerificationRecord),
		rateBuckets:       make(map[string]RateBucket),
		usage:             make(map[string]int),
		webhookDeliveries: make(map[string]WebhookDelivery),
		defaultAllowance:  defaultAllowance,
	}
}

func (m *MemoryStore) Close() error { return nil }

// UpsertVerification inserts or updates the record for a wallet.
func (m *MemoryStore) UpsertVerification(_ context.Context, rec VerificationRecord) (VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.verifications[rec.WalletAddress]
	if ok {
		rec.ID = existing.ID
	} else {
		m.nextID++
		rec.ID = fmt.Sprintf("ver_%d", m.nextID)
	}
	rec.UpdatedAt = time.Now()
	m.verifications[rec.WalletAddress] = rec
	return rec, nil
}

// GetVerificationByWallet retrieves a verification record by wallet address.
func (m *MemoryStore) GetVerificationByWallet(_ context.Context, wallet string) (VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.verifications[wallet]
	if !ok {
		return VerificationRecord{}, ErrNotFound
	}
	return rec, nil
}

// CheckRateLimit applies the sliding-window rule: if the window has elapsed
// the bucket resets to count=1; otherwise it refuses once count reaches max.
func (m *MemoryStore) CheckRateLimit(_ context.Context, wallet string, max int, window time.Duration) (bool, int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	bucket, ok := m.rateBuckets[wallet]
	if !ok || now.Sub(bucket.WindowStart) >= window {
		bucket = RateBucket{WalletAddress: wallet, Count: 1, WindowStart: now}
		m.rateBuckets[wallet] = bucket
		return true, bucket.Count, bucket.WindowStart.Add(window), nil
	}

	if bucket.Count >= max {
		return false, bucket.Count, bucket.WindowStart.Add(window), nil
	}

	bucket.Count++
	m.rateBuckets[wallet] = bucket
	return true, bucket.Count, bucket.WindowStart.Add(window), nil
}

// CheckAllowance reports whether externalUserID has remaining quota. A
// defaultAllowance of 0 means unlimited.
func (m *MemoryStore) CheckAllowance(_ context.Context, externalUserID string) (bool, int, error) {
	if m.defaultAllowance <= 0 {
		return true, -1, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.usage[externalUserID]
	remaining := m.defaultAllowance - used
	return remaining > 0, remaining, nil
}

// IncrementUsage records one more call against externalUserID's quota.
func (m *MemoryStore) IncrementUsage(_ context.Context, externalUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usage[externalUserID]++
	return nil
}

// LogWebhookDelivery records a new delivery attempt row.
func (m *MemoryStore) LogWebhookDelivery(_ context.Context, d WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhookDeliveries[d.DeliveryID] = d
	return nil
}

// UpdateWebhookDelivery finalises a previously logged delivery row.
func (m *MemoryStore) UpdateWebhookDelivery(_ context.Context, d WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.webhookDeliveries[d.DeliveryID]; !ok {
		return ErrNotFound
	}
	m.webhookDeliveries[d.DeliveryID] = d
	return nil
}
