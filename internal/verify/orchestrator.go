package verify

import (
	"context"
	"strings"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/address"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/allowance"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/cache"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/decision"
	verifyerrors "github.com/Avantemaps-pi/avante-verifier-internal/internal/errors"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ledger"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ratelimit"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/webhook"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RateLimitError carries the wallet-limiter result alongside the standard
// ServiceError so the HTTP layer can set the X-RateLimit-* response headers
// on a 429 without re-running the check.
type RateLimitError struct {
	*verifyerrors.ServiceError
	Result ratelimit.Result
}

// Unwrap exposes the embedded ServiceError itself (not its Cause), so
// errors.As(err, &serviceErr) finds it when classifying the error's HTTP status.
func (e *RateLimitError) Unwrap() error {
	return e.ServiceError
}

// Orchestrator runs the single-verify pipeline: parse and validate required
// fields, rate limit, validate wallet address format, cache lookup,
// allowance, ledger scan, decision, persist, increment usage, enqueue
// webhook. Authentication happens one layer up, in auth.Middleware.
type Orchestrator struct {
	store        storage.Store
	cache        cache.Cache
	ledger       *ledger.Client
	limiter      *ratelimit.WalletLimiter
	allowance    *allowance.Gate
	webhook      *webhook.Dispatcher
	thresholds   decision.Thresholds
	metrics      *metrics.Metrics
	maxBatchSize int
	batchWorkers int
}

// Deps bundles the Orchestrator's collaborators.
type Deps struct {
	Store      storage.Store
	Cache      cache.Cache
	Ledger     *ledger.Client
	Limiter    *ratelimit.WalletLimiter
	Allowance  *allowance.Gate
	Webhook    *webhook.Dispatcher
	Thresholds decision.Thresholds
	Metrics    *metrics.Metrics

	// MaxEntries and Concurrency govern VerifyBatch; BATCH_MAX/BATCH_CONCURRENCY
	// in config. Zero falls back to defaultMaxBatchSize/defaultBatchWorkers.
	MaxEntries  int
	Concurrency int
}

// New constructs an Orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		store:        d.Store,
		cache:        d.Cache,
		ledger:       d.Ledger,
		limiter:      d.Limiter,
		allowance:    d.Allowance,
		webhook:      d.Webhook,
		thresholds:   d.Thresholds,
		metrics:      d.Metrics,
		maxBatchSize: d.MaxEntries,
		batchWorkers: d.Concurrency,
	}
}

// Verify runs the single-verify pipeline for one request and returns the
// response body to write, or a *errors.ServiceError identifying the
// failure's HTTP status.
func (o *Orchestrator) Verify(ctx context.Context, req Request) (Response, error) {
	wallet := strings.TrimSpace(req.WalletAddress)

	if err := validateRequest(req, wallet); err != nil {
		return Response{}, err
	}

	limitResult, err := o.limiter.Check(ctx, wallet)
	if err != nil {
		return Response{}, verifyerrors.Wrap(verifyerrors.ErrCodePersistenceError, "rate limit check failed", err)
	}
	if !limitResult.Allowed {
		return Response{}, &RateLimitError{
			ServiceError: verifyerrors.New(verifyerrors.ErrCodeRateLimited, "Rate limit exceeded: maximum 5 verifications per wallet per hour"),
			Result:       limitResult,
		}
	}

	if !address.Valid(wallet) {
		return Response{}, verifyerrors.New(verifyerrors.ErrCodeBadRequest, "walletAddress is not a valid wallet address")
	}

	thresholds := req.Thresholds(o.thresholds)

	if !req.ForceRefresh {
		if entry, ok, err := o.cache.Get(ctx, wallet, cacheThresholds(thresholds)); err == nil && ok {
			return buildResponse(entry.Record, true, entry.CacheExpiresAt, false), nil
		}
	}

	allowed, _, err := o.allowance.CheckAllowance(ctx, req.ExternalUserID)
	if err != nil {
		return Response{}, verifyerrors.Wrap(verifyerrors.ErrCodePersistenceError, "allowance check failed", err)
	}
	if !allowed {
		return Response{}, verifyerrors.New(verifyerrors.ErrCodeQuotaExceeded, "Subscription quota exceeded")
	}

	counters, err := o.ledger.FetchPayments(ctx, wallet)
	if err != nil {
		return Response{}, err
	}

	verdict := decision.Decide(decision.Counters{
		Total:                counters.Total,
		Credited:             counters.Credited,
		UniqueCounterparties: counters.UniqueCounterparties,
	}, thresholds)
	o.observeDecision(verdict.Status)

	rec := storage.VerificationRecord{
		WalletAddress:        wallet,
		BusinessName:         req.BusinessName,
		ExternalUserID:       req.ExternalUserID,
		Total:                counters.Total,
		Credited:             counters.Credited,
		UniqueCounterparties: counters.UniqueCounterparties,
		DecisionStatus:       string(verdict.Status),
		FailureReason:        verdict.FailureReason,
		UpdatedAt:            time.Now().UTC(),
	}
	rec, err = o.store.UpsertVerification(ctx, rec)
	if err != nil {
		return Response{}, verifyerrors.Wrap(verifyerrors.ErrCodePersistenceError, "failed to persist verification", err)
	}

	if err := o.cache.Set(ctx, wallet, cacheThresholds(thresholds), rec); err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("verify.cache_set_failed")
	}

	if err := o.allowance.IncrementUsage(ctx, req.ExternalUserID); err != nil {
		log.Warn().Err(err).Str("external_user_id", req.ExternalUserID).Msg("verify.increment_usage_failed")
	}

	webhookQueued := o.enqueueWebhook(ctx, rec, req.WebhookURL, req.WebhookSecret, webhook.EventVerificationCompleted)

	return buildResponse(rec, false, rec.UpdatedAt.Add(cache.TTL), webhookQueued), nil
}

func validateRequest(req Request, wallet string) error {
	if wallet == "" {
		return verifyerrors.New(verifyerrors.ErrCodeBadRequest, "walletAddress is required")
	}
	if strings.TrimSpace(req.BusinessName) == "" {
		return verifyerrors.New(verifyerrors.ErrCodeBadRequest, "businessName is required")
	}
	if strings.TrimSpace(req.ExternalUserID) == "" {
		return verifyerrors.New(verifyerrors.ErrCodeBadRequest, "externalUserId is required")
	}
	if req.WebhookURL != "" && !webhook.ValidURL(req.WebhookURL) {
		return verifyerrors.New(verifyerrors.ErrCodeBadRequest, "webhookUrl must be an http or https URL")
	}
	return nil
}

func (o *Orchestrator) enqueueWebhook(ctx context.Context, rec storage.VerificationRecord, webhookURL, secret, event string) bool {
	if webhookURL == "" {
		return false
	}
	deliveryID := uuid.New().String()
	data := toData(rec)
	if err := o.webhook.Enqueue(ctx, deliveryID, rec.ID, webhookURL, secret, event, data); err != nil {
		log.Warn().Err(err).Str("verification_id", rec.ID).Msg("verify.webhook_enqueue_failed")
		return false
	}
	return true
}

func (o *Orchestrator) observeDecision(status decision.Status) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveDecision(string(status))
}

func cacheThresholds(t decision.Thresholds) cache.Thresholds {
	return cache.Thresholds{MinTotal: t.MinTotal, MinCredited: t.MinCredited, MinUnique: t.MinUnique}
}

func toData(rec storage.VerificationRecord) Data {
	return Data{
		VerificationID:     rec.ID,
		WalletAddress:      rec.WalletAddress,
		BusinessName:       rec.BusinessName,
		TotalTransactions:  rec.Total,
		UniqueWallets:      rec.UniqueCounterparties,
		MeetsRequirements:  rec.DecisionStatus == string(decision.StatusApproved),
		FailureReason:      rec.FailureReason,
		VerificationStatus: rec.DecisionStatus,
		VerifiedAt:         rec.UpdatedAt,
	}
}

func buildResponse(rec storage.VerificationRecord, cached bool, cacheExpiresAt time.Time, webhookQueued bool) Response {
	return Response{
		Success:        true,
		Cached:         cached,
		CacheExpiresAt: cacheExpiresAt,
		WebhookQueued:  webhookQueued,
		Data:           toData(rec),
	}
}
