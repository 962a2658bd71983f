package ratelimit

import (
	"context"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
)

// WalletLimit is the per-wallet sliding-window business quota: max calls per
// window, enforced atomically by the storage layer.
type WalletLimit struct {
	Max    int
	Window time.Duration
}

// DefaultWalletLimit is the spec default: 5 verification requests per wallet
// per hour.
func DefaultWalletLimit() WalletLimit {
	return WalletLimit{Max: 5, Window: time.Hour}
}

// Result carries everything the orchestrator needs to set the
// X-RateLimit-{Limit,Remaining,Reset} response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// WalletLimiter enforces WalletLimit atomically per wallet via the
// persistence layer, independent of the coarse HTTP middleware above.
type WalletLimiter struct {
	store   storage.Store
	limit   WalletLimit
	metrics *metrics.Metrics
}

// NewWalletLimiter constructs a WalletLimiter. m may be nil.
func NewWalletLimiter(store storage.Store, limit WalletLimit, m *metrics.Metrics) *WalletLimiter {
	return &WalletLimiter{store: store, limit: limit, metrics: m}
}

// Check applies the sliding-window rule for wallet and returns the outcome.
func (l *WalletLimiter) Check(ctx context.Context, wallet string) (Result, error) {
	allowed, count, resetAt, err := l.store.CheckRateLimit(ctx, wallet, l.limit.Max, l.limit.Window)
	if err != nil {
		return Result{}, err
	}

	remaining := l.limit.Max - count
	if remaining < 0 {
		remaining = 0
	}

	if !allowed && l.metrics != nil {
		l.metrics.ObserveRateLimitRefusal("wallet")
	}

	return Result{Allowed: allowed, Limit: l.limit.Max, Remaining: remaining, ResetAt: resetAt}, nil
}
