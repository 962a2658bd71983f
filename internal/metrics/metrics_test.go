package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("metrics collector should not be nil")
	}

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should be initialized")
	}
	if m.LedgerCallsTotal == nil {
		t.Error("LedgerCallsTotal should be initialized")
	}
	if m.CacheHitsTotal == nil {
		t.Error("CacheHitsTotal should be initialized")
	}
	if m.DecisionsTotal == nil {
		t.Error("DecisionsTotal should be initialized")
	}
	if m.WebhooksTotal == nil {
		t.Error("WebhooksTotal should be initialized")
	}
}

func TestObserveRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRequest("/verify-business", "200", 50*time.Millisecond)

	count := promtest.ToFloat64(m.RequestsTotal.WithLabelValues("/verify-business", "200"))
	if count != 1 {
		t.Errorf("expected 1 request, got %.0f", count)
	}
}

func TestObserveLedgerCall(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveLedgerCall("success", 100*time.Millisecond)
	m.ObserveLedgerCall("error", 30*time.Second)
	m.ObserveLedgerError("timeout")

	success := promtest.ToFloat64(m.LedgerCallsTotal.WithLabelValues("success"))
	if success != 1 {
		t.Errorf("expected 1 successful ledger call, got %.0f", success)
	}

	errors := promtest.ToFloat64(m.LedgerErrorsTotal.WithLabelValues("timeout"))
	if errors != 1 {
		t.Errorf("expected 1 ledger timeout error, got %.0f", errors)
	}
}

func TestObserveRateLimitRefusal(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRateLimitRefusal("wallet")

	hits := promtest.ToFloat64(m.RateLimitRefusalsTotal.WithLabelValues("wallet"))
	if hits != 1 {
		t.Errorf("expected 1 rate limit refusal, got %.0f", hits)
	}
}

func TestObserveCache(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveCacheHit("redis")
	m.ObserveCacheMiss("redis")

	hits := promtest.ToFloat64(m.CacheHitsTotal.WithLabelValues("redis"))
	if hits != 1 {
		t.Errorf("expected 1 cache hit, got %.0f", hits)
	}
	misses := promtest.ToFloat64(m.CacheMissesTotal.WithLabelValues("redis"))
	if misses != 1 {
		t.Errorf("expected 1 cache miss, got %.0f", misses)
	}
}

func TestObserveDecision(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveDecision("approved")
	m.ObserveDecision("rejected")
	m.ObserveDecision("rejected")

	approved := promtest.ToFloat64(m.DecisionsTotal.WithLabelValues("approved"))
	if approved != 1 {
		t.Errorf("expected 1 approved decision, got %.0f", approved)
	}
	rejected := promtest.ToFloat64(m.DecisionsTotal.WithLabelValues("rejected"))
	if rejected != 2 {
		t.Errorf("expected 2 rejected decisions, got %.0f", rejected)
	}
}

func TestObserveWebhook(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveWebhook("success", 1, 500*time.Millisecond)
	m.ObserveWebhook("failed", 3, 6*time.Second)

	success := promtest.ToFloat64(m.WebhooksTotal.WithLabelValues("success"))
	if success != 1 {
		t.Errorf("expected 1 successful webhook, got %.0f", success)
	}

	retries := promtest.ToFloat64(m.WebhookRetriesTotal.WithLabelValues("3"))
	if retries != 1 {
		t.Errorf("expected 1 retry record at attempt 3, got %.0f", retries)
	}
}

func TestObserveBatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveBatch(4, 3, 1)

	success := promtest.ToFloat64(m.BatchEntriesTotal.WithLabelValues("success"))
	if success != 3 {
		t.Errorf("expected 3 successful batch entries, got %.0f", success)
	}
	failure := promtest.ToFloat64(m.BatchEntriesTotal.WithLabelValues("failure"))
	if failure != 1 {
		t.Errorf("expected 1 failed batch entry, got %.0f", failure)
	}
}

func TestObserveDBQuery(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveDBQuery("upsert_verification", "postgres", 5*time.Millisecond)

	if m.DBQueryDuration == nil {
		t.Error("DBQueryDuration should be initialized")
	}
}
