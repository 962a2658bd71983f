// Package allowance gates verification requests on a per-user subscription
// quota, separate from the per-wallet rate limiter in internal/ratelimit.
package allowance

import (
	"context"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
)

// Gate consults and updates an external user's subscription allowance. The
// core treats the allowance itself as opaque; it only needs allowed/remaining.
type Gate struct {
	store   storage.Store
	metrics *metrics.Metrics
}

// New constructs a Gate backed by store. m may be nil.
func New(store storage.Store, m *metrics.Metrics) *Gate {
	return &Gate{store: store, metrics: m}
}

// CheckAllowance reports whether externalUserID may proceed with a
// verification. Callers should refuse with QuotaExceeded when allowed=false.
func (g *Gate) CheckAllowance(ctx context.Context, externalUserID string) (allowed bool, remaining int, err error) {
	allowed, remaining, err = g.store.CheckAllowance(ctx, externalUserID)
	if err == nil && !allowed && g.metrics != nil {
		g.metrics.ObserveAllowanceRefusal("quota_exceeded")
	}
	return allowed, remaining, err
}

// IncrementUsage records one more verification against externalUserID's
// quota. It is called only after persistence succeeds, and is best-effort:
// callers should log failures without failing the request.
func (g *Gate) IncrementUsage(ctx context.Context, externalUserID string) error {
	return g.store.IncrementUsage(ctx, externalUserID)
}
