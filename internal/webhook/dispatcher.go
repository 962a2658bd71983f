// Package webhook delivers verification-completed notifications to
// caller-supplied URLs in the background, decoupled from the HTTP response
// that triggered them.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/circuitbreaker"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/httputil"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/metrics"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	// EventVerificationCompleted fires after a single-verify pipeline completes.
	EventVerificationCompleted = "verification.completed"
	// EventBatchVerificationCompleted fires once after every entry in a batch completes.
	EventBatchVerificationCompleted = "batch.verification.completed"

	maxAttempts        = 3
	perAttemptTimeout  = 10 * time.Second
	responseSnippetCap = 2048
)

var retryDelays = [maxAttempts]time.Duration{0, 1 * time.Second, 5 * time.Second}

// ValidURL reports whether rawURL is an http:// or https:// URL, the only
// schemes the dispatcher will enqueue.
func ValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

type payload struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Dispatcher enqueues webhook deliveries and runs them to completion on a
// background goroutine, registered with the lifecycle manager so in-flight
// deliveries survive a graceful shutdown.
type Dispatcher struct {
	http    *http.Client
	store   storage.Store
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

// New constructs a Dispatcher. breaker and m may be nil.
func New(store storage.Store, breaker *circuitbreaker.Manager, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		http:    httputil.NewClient(perAttemptTimeout),
		store:   store,
		breaker: breaker,
		metrics: m,
	}
}

// Enqueue logs the delivery and starts background delivery. It returns
// immediately; deliveryID identifies the row in the delivery log.
func (d *Dispatcher) Enqueue(ctx context.Context, deliveryID, verificationID, webhookURL, secret, event string, data interface{}) error {
	body, err := json.Marshal(payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	entry := storage.WebhookDelivery{
		DeliveryID:     deliveryID,
		VerificationID: verificationID,
		WebhookURL:     webhookURL,
		Payload:        string(body),
		Status:         storage.WebhookStatusPending,
	}
	if err := d.store.LogWebhookDelivery(ctx, entry); err != nil {
		return fmt.Errorf("log webhook delivery: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(entry, secret, event, body)
	}()

	return nil
}

// Close blocks until every in-flight delivery started via Enqueue completes.
// It implements io.Closer so it can be registered with the lifecycle manager.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) deliver(entry storage.WebhookDelivery, secret, event string, body []byte) {
	start := time.Now()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if delay := retryDelays[attempt-1]; delay > 0 {
			time.Sleep(delay)
		}

		status, snippet, err := d.attempt(entry.WebhookURL, secret, event, body)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}

		entry.Attempt = attempt
		success := err == nil && status >= 200 && status < 300
		permanentFailure := err == nil && status >= 400 && status < 500 && status != http.StatusTooManyRequests

		if success || permanentFailure || attempt == maxAttempts {
			now := time.Now()
			entry.CompletedAt = &now
			entry.HTTPStatus = status
			entry.ResponseSnippet = snippet
			entry.ErrorMessage = errMsg
			if success {
				entry.Status = storage.WebhookStatusSucceeded
			} else {
				entry.Status = storage.WebhookStatusFailed
			}

			if updateErr := d.store.UpdateWebhookDelivery(context.Background(), entry); updateErr != nil {
				log.Warn().Err(updateErr).Str("delivery_id", entry.DeliveryID).Msg("webhook.update_delivery_log_failed")
			}
			d.observe(entry.Status, attempt, time.Since(start))
			return
		}
	}
}

func (d *Dispatcher) attempt(webhookURL, secret, event string, body []byte) (status int, snippet string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), perAttemptTimeout)
	defer cancel()

	run := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Event", event)
		req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
		if secret != "" {
			req.Header.Set("X-Webhook-Signature", "sha256="+signBody(secret, body))
		}

		resp, err := d.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, responseSnippetCap))
		return attemptResult{status: resp.StatusCode, snippet: string(respBody)}, nil
	}

	var result interface{}
	if d.breaker != nil {
		result, err = d.breaker.Execute(circuitbreaker.ServiceWebhook, run)
	} else {
		result, err = run()
	}
	if err != nil {
		return 0, "", err
	}

	r := result.(attemptResult)
	return r.status, r.snippet, nil
}

type attemptResult struct {
	status  int
	snippet string
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) observe(status storage.WebhookStatus, attempts int, duration time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveWebhook(string(status), attempts, duration)
}

