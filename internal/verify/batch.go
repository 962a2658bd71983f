package verify

import (
	"context"
	"fmt"
	"sync"

	verifyerrors "github.com/Avantemaps-pi/avante-verifier-internal/internal/errors"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/webhook"
	"github.com/google/uuid"
)

// Fallbacks used only when Deps didn't set MaxEntries/Concurrency (e.g. in
// tests that construct an Orchestrator directly).
const (
	defaultMaxBatchSize = 10
	defaultBatchWorkers = 3
)

// VerifyBatch runs every entry in req through the single-verify pipeline,
// isolating per-entry failures so one bad wallet doesn't fail the batch.
// Up to o.batchWorkers entries run concurrently; results preserve request order.
func (o *Orchestrator) VerifyBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	if len(req.Verifications) == 0 {
		return BatchResponse{}, verifyerrors.New(verifyerrors.ErrCodeBadRequest, "verifications must contain at least one entry")
	}
	maxBatchSize := o.maxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = defaultMaxBatchSize
	}
	if len(req.Verifications) > maxBatchSize {
		return BatchResponse{}, verifyerrors.New(verifyerrors.ErrCodeBadRequest, fmt.Sprintf("verifications must not exceed %d entries", maxBatchSize))
	}

	batchWorkers := o.batchWorkers
	if batchWorkers <= 0 {
		batchWorkers = defaultBatchWorkers
	}

	results := make([]BatchEntryResult, len(req.Verifications))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				entry := req.Verifications[i]
				applyBatchDefaults(&entry, req)
				resp, err := o.Verify(ctx, entry)
				if err != nil {
					results[i] = BatchEntryResult{Success: false, Error: err.Error()}
					continue
				}
				data := resp.Data
				results[i] = BatchEntryResult{Success: true, Data: &data}
			}
		}()
	}
	for i := range req.Verifications {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	successCount, failureCount := 0, 0
	for _, r := range results {
		if r.Success {
			successCount++
		} else {
			failureCount++
		}
	}
	o.observeBatch(len(results), successCount, failureCount)

	batchID := uuid.New().String()
	if req.WebhookURL != "" {
		deliveryID := uuid.New().String()
		if err := o.webhook.Enqueue(ctx, deliveryID, batchID, req.WebhookURL, req.WebhookSecret,
			webhook.EventBatchVerificationCompleted, results); err != nil {
			// best-effort: the batch response itself is still valid.
			_ = err
		}
	}

	return BatchResponse{
		Success:         true,
		BatchID:         batchID,
		TotalRequested:  len(req.Verifications),
		TotalProcessed:  len(results),
		TotalSuccessful: successCount,
		TotalFailed:     failureCount,
		Results:         results,
	}, nil
}

// applyBatchDefaults fills an entry's threshold overrides from the batch
// envelope and suppresses any per-entry webhook: batch delivery is a single
// webhook fired once after every entry completes, not one per entry.
func applyBatchDefaults(entry *Request, req BatchRequest) {
	entry.WebhookURL = ""
	entry.WebhookSecret = ""
	if req.ForceRefresh {
		entry.ForceRefresh = true
	}
	if entry.MinTransactions == nil {
		entry.MinTransactions = req.MinTransactions
	}
	if entry.MinCreditedTransactions == nil {
		entry.MinCreditedTransactions = req.MinCreditedTransactions
	}
	if entry.MinUniqueWallets == nil {
		entry.MinUniqueWallets = req.MinUniqueWallets
	}
}

func (o *Orchestrator) observeBatch(size, success, failure int) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveBatch(size, success, failure)
}
