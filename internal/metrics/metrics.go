package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification service.
type Metrics struct {
	// HTTP request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ledger client metrics
	LedgerCallsTotal   *prometheus.CounterVec
	LedgerCallDuration *prometheus.HistogramVec
	LedgerErrorsTotal  *prometheus.CounterVec
	LedgerPagesScanned prometheus.Counter

	// Rate limiter metrics
	RateLimitRefusalsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Allowance gate metrics
	AllowanceRefusalsTotal *prometheus.CounterVec

	// Decision metrics
	DecisionsTotal *prometheus.CounterVec

	// Webhook dispatcher metrics
	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDuration     *prometheus.HistogramVec

	// Batch orchestrator metrics
	BatchEntriesTotal *prometheus.CounterVec
	BatchSize         prometheus.Histogram

	// Persistence metrics
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge
}

// New creates and registers all Prometheus metrics on the given registerer.
// A nil registerer falls back to prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_requests_total",
				Help: "Total number of HTTP requests, by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_request_duration_seconds",
				Help:    "HTTP request duration by route",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"route"},
		),

		LedgerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_ledger_calls_total",
				Help: "Total number of outbound ledger API calls",
			},
			[]string{"outcome"},
		),
		LedgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_ledger_call_duration_seconds",
				Help:    "Duration of a single ledger page fetch",
				Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		LedgerErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_ledger_errors_total",
				Help: "Total number of ledger call errors by classification",
			},
			[]string{"error_type"},
		),
		LedgerPagesScanned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "verifier_ledger_pages_scanned_total",
				Help: "Total number of payment pages scanned across all wallets",
			},
		),

		RateLimitRefusalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_rate_limit_refusals_total",
				Help: "Total number of requests refused by a rate limiter",
			},
			[]string{"limiter"},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_cache_hits_total",
				Help: "Total number of verification cache hits",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_cache_misses_total",
				Help: "Total number of verification cache misses",
			},
			[]string{"backend"},
		),

		AllowanceRefusalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_allowance_refusals_total",
				Help: "Total number of requests refused by the allowance gate",
			},
			[]string{"tier"},
		),

		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_decisions_total",
				Help: "Total number of verification decisions by status",
			},
			[]string{"status"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_webhooks_total",
				Help: "Total number of webhook deliveries by final outcome",
			},
			[]string{"outcome"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_webhook_retries_total",
				Help: "Total number of webhook retry attempts, by attempt number",
			},
			[]string{"attempt"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_webhook_duration_seconds",
				Help:    "Time from first webhook attempt to final outcome",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"outcome"},
		),

		BatchEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_batch_entries_total",
				Help: "Total number of batch entries processed, by outcome",
			},
			[]string{"outcome"},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verifier_batch_size",
				Help:    "Number of entries per batch request",
				Buckets: []float64{1, 2, 3, 5, 7, 10},
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_db_query_duration_seconds",
				Help:    "Database/storage query duration by operation and backend",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		DBConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "verifier_db_connections_active",
				Help: "Number of active storage backend connections",
			},
		),
	}
}

// ObserveRequest records an HTTP request outcome.
func (m *Metrics) ObserveRequest(route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveLedgerCall records a single ledger page fetch.
func (m *Metrics) ObserveLedgerCall(outcome string, duration time.Duration) {
	m.LedgerCallsTotal.WithLabelValues(outcome).Inc()
	m.LedgerCallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveLedgerError records a classified ledger call error.
func (m *Metrics) ObserveLedgerError(errorType string) {
	m.LedgerErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRateLimitRefusal records a rate-limit refusal by the named limiter.
func (m *Metrics) ObserveRateLimitRefusal(limiter string) {
	m.RateLimitRefusalsTotal.WithLabelValues(limiter).Inc()
}

// ObserveCacheHit records a verification cache hit against the given backend ("redis" or "memory").
func (m *Metrics) ObserveCacheHit(backend string) {
	m.CacheHitsTotal.WithLabelValues(backend).Inc()
}

// ObserveCacheMiss records a verification cache miss against the given backend.
func (m *Metrics) ObserveCacheMiss(backend string) {
	m.CacheMissesTotal.WithLabelValues(backend).Inc()
}

// ObserveAllowanceRefusal records an allowance-gate refusal for the given tier.
func (m *Metrics) ObserveAllowanceRefusal(tier string) {
	m.AllowanceRefusalsTotal.WithLabelValues(tier).Inc()
}

// ObserveDecision records a verification decision outcome.
func (m *Metrics) ObserveDecision(status string) {
	m.DecisionsTotal.WithLabelValues(status).Inc()
}

// ObserveWebhook records a completed webhook delivery sequence.
func (m *Metrics) ObserveWebhook(outcome string, attempts int, duration time.Duration) {
	m.WebhooksTotal.WithLabelValues(outcome).Inc()
	m.WebhookDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if attempts > 1 {
		m.WebhookRetriesTotal.WithLabelValues(formatAttempt(attempts)).Inc()
	}
}

// ObserveBatch records the size and per-entry outcomes of a batch request.
func (m *Metrics) ObserveBatch(size int, successCount, failureCount int) {
	m.BatchSize.Observe(float64(size))
	m.BatchEntriesTotal.WithLabelValues("success").Add(float64(successCount))
	m.BatchEntriesTotal.WithLabelValues("failure").Add(float64(failureCount))
}

// ObserveDBQuery records a storage backend query duration.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

func formatAttempt(attempt int) string {
	if attempt <= 5 {
		return string(rune('0' + attempt))
	}
	return "5+"
}
