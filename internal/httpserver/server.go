package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/auth"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/config"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/idempotency"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/logger"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ratelimit"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/verify"
)

var serverStartTime = time.Now()

// Server wires the handlers, middleware, and dependencies for the
// verification API into an http.Server.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg          *config.Config
	orchestrator *verify.Orchestrator
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	idempotency  idempotency.Store
}

// New builds the HTTP server with its configured router. idempotencyStore
// may be nil, in which case the Idempotency-Key header is ignored.
func New(cfg *config.Config, orchestrator *verify.Orchestrator, metricsCollector *metrics.Metrics, appLogger zerolog.Logger, idempotencyStore idempotency.Store) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:          cfg,
			orchestrator: orchestrator,
			metrics:      metricsCollector,
			logger:       appLogger,
			idempotency:  idempotencyStore,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, cfg, orchestrator, metricsCollector, appLogger, idempotencyStore)

	return s
}

// ConfigureRouter attaches the verification API's routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, orchestrator *verify.Orchestrator, metricsCollector *metrics.Metrics, appLogger zerolog.Logger, idempotencyStore idempotency.Store) {
	if router == nil {
		return
	}

	handler := handlers{
		cfg:          cfg,
		orchestrator: orchestrator,
		metrics:      metricsCollector,
		logger:       appLogger,
		idempotency:  idempotencyStore,
	}

	// CORS: reflect the request's Origin rather than a static allow-list, so
	// any caller-supplied Origin receives a matching preflight response.
	router.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"authorization", "x-client-info", "apikey", "content-type", "x-api-key"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(recoverMiddleware)

	rateLimitCfg := ratelimit.Config{
		GlobalEnabled: cfg.RateLimit.GlobalEnabled,
		GlobalLimit:   cfg.RateLimit.GlobalLimit,
		GlobalWindow:  cfg.RateLimit.GlobalWindow.Duration,
		PerIPEnabled:  cfg.RateLimit.PerIPEnabled,
		PerIPLimit:    cfg.RateLimit.PerIPLimit,
		PerIPWindow:   cfg.RateLimit.PerIPWindow.Duration,
		Metrics:       metricsCollector,
	}
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/healthz", handler.health)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle("/metrics", promhttp.Handler())
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(auth.Middleware(auth.Config{
			APIKey:           cfg.Auth.APIKey,
			InternalTrustKey: cfg.Auth.InternalTrustKey,
		}))
		if idempotencyStore != nil {
			// A caller-supplied Idempotency-Key replays the original response
			// instead of re-running the pipeline, so a retried request after a
			// dropped response doesn't double-count usage or re-queue a webhook.
			r.Use(idempotency.Middleware(idempotencyStore, idempotency.DefaultTTL))
		}

		r.Post("/verify-business", handler.handleVerify)
		r.Post("/verify-business-batch", handler.handleVerifyBatch)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
