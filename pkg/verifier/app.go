// Package verifier wires the business-verification service's components
// (storage, ledger client, caches, rate limiters, webhook dispatcher, and
// the HTTP server) into a single App for embedding or standalone serving.
package verifier

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/allowance"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/cache"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/circuitbreaker"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/config"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/dbpool"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/decision"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/httpserver"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/httputil"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/idempotency"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ledger"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/lifecycle"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/logger"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ratelimit"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/verify"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/webhook"
)

// App wires the verification service's components for reuse or standalone serving.
type App struct {
	Config       *config.Config
	Store        storage.Store
	Ledger       *ledger.Client
	Orchestrator *verify.Orchestrator
	Server       *httpserver.Server

	resources        *lifecycle.Manager
	metricsCollector *metrics.Metrics
	logger           zerolog.Logger
	idempotency      idempotency.Store
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store storage.Store
	db    *dbpool.SharedPool
}

// WithStore injects a custom storage backend, bypassing config.Storage.Backend.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// WithSharedDB reuses an existing PostgreSQL pool instead of opening a new one.
func WithSharedDB(pool *dbpool.SharedPool) Option {
	return func(o *options) { o.db = pool }
}

// NewApp assembles the verification service from configuration.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("verifier: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	resources := lifecycle.NewManager()

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "avante-verifier",
		Environment: cfg.Logging.Environment,
	})

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)

	store, err := buildStore(cfg, optState, resources)
	if err != nil {
		return nil, err
	}

	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	ledgerClient := ledger.New(
		cfg.Ledger.BaseURL,
		httputil.NewClient(cfg.Ledger.Timeout.Duration),
		breakers,
		metricsCollector,
	)

	cacheLayer := cache.New(cfg.Cache.RedisAddr, cfg.Cache.IncludeThresholdsInKey, metricsCollector)
	resources.Register("cache", cacheLayer)

	walletLimiter := ratelimit.NewWalletLimiter(store, ratelimit.WalletLimit{
		Max:    cfg.RateLimit.WalletMax,
		Window: cfg.RateLimit.WalletWindow.Duration,
	}, metricsCollector)

	allowanceGate := allowance.New(store, metricsCollector)

	dispatcher := webhook.New(store, breakers, metricsCollector)
	resources.Register("webhook-dispatcher", dispatcher)

	orchestrator := verify.New(verify.Deps{
		Store:     store,
		Cache:     cacheLayer,
		Ledger:    ledgerClient,
		Limiter:   walletLimiter,
		Allowance: allowanceGate,
		Webhook:   dispatcher,
		Thresholds: decision.Thresholds{
			MinTotal:    cfg.Thresholds.MinTransactions,
			MinCredited: cfg.Thresholds.MinCreditedTransactions,
			MinUnique:   cfg.Thresholds.MinUniqueWallets,
		},
		Metrics:     metricsCollector,
		MaxEntries:  cfg.Batch.MaxEntries,
		Concurrency: cfg.Batch.Concurrency,
	})

	idempotencyStore := idempotency.NewMemoryStore()
	resources.RegisterFunc("idempotency-store", func() error {
		idempotencyStore.Stop()
		return nil
	})

	server := httpserver.New(cfg, orchestrator, metricsCollector, appLogger, idempotencyStore)

	log.Info().
		Str("storage_backend", cfg.Storage.Backend).
		Str("ledger_base", cfg.Ledger.BaseURL).
		Msg("verifier.app_initialized")

	return &App{
		Config:           cfg,
		Store:            store,
		Ledger:           ledgerClient,
		Orchestrator:     orchestrator,
		Server:           server,
		resources:        resources,
		metricsCollector: metricsCollector,
		logger:           appLogger,
		idempotency:      idempotencyStore,
	}, nil
}

func buildStore(cfg *config.Config, optState options, resources *lifecycle.Manager) (storage.Store, error) {
	if optState.store != nil {
		return optState.store, nil
	}

	storeCfg := storage.StoreConfig{
		Backend:                cfg.Storage.Backend,
		PostgresURL:            cfg.Storage.PostgresURL,
		MongoDBURL:             cfg.Storage.MongoDBURL,
		MongoDBDatabase:        cfg.Storage.MongoDBDatabase,
		PostgresPool:           cfg.Storage.PostgresPool,
		VerificationsTableName: cfg.Storage.VerificationsTableName,
		RateBucketsTableName:   cfg.Storage.RateBucketsTableName,
		WebhookLogTableName:    cfg.Storage.WebhookLogTableName,
	}

	var sharedDB *sql.DB
	if optState.db != nil {
		sharedDB = optState.db.DB()
	} else if cfg.Storage.Backend == "postgres" {
		pool, err := dbpool.NewSharedPool(cfg.Storage.PostgresURL, cfg.Storage.PostgresPool)
		if err != nil {
			return nil, err
		}
		resources.Register("db-pool", pool)
		sharedDB = pool.DB()
	}

	if sharedDB != nil {
		store, err := storage.NewStoreWithDB(storeCfg, sharedDB)
		if err != nil {
			return nil, err
		}
		resources.Register("storage", store)
		return store, nil
	}

	store, err := storage.NewStore(storeCfg)
	if err != nil {
		return nil, err
	}
	resources.Register("storage", store)

	if cfg.Storage.Backend == "memory" {
		log.Warn().Msg("verifier: using in-memory storage, records do not survive a restart")
	}

	return store, nil
}

// Router attaches the verification routes onto a caller-supplied router, for
// embedding the API into a larger chi mux.
func (a *App) Router(router chi.Router) {
	httpserver.ConfigureRouter(router, a.Config, a.Orchestrator, a.metricsCollector, a.logger, a.idempotency)
}

// Handler exposes the verification API as a standalone http.Handler.
func (a *App) Handler() http.Handler {
	router := chi.NewRouter()
	a.Router(router)
	return router
}

// Close releases resources owned by the app (storage, webhook dispatcher, etc).
func (a *App) Close() error {
	return a.resources.Close()
}

// ListenAndServe starts the HTTP server.
func (a *App) ListenAndServe() error {
	return a.Server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Server.Shutdown(ctx)
}
