package storage

import "time"

// VerificationRecord is the persisted outcome of a business verification,
// keyed by wallet address (unique).
type VerificationRecord struct {
	ID                   string
	WalletAddress        string
	BusinessName         string
	ExternalUserID       string
	Total                int
	Credited             int
	UniqueCounterparties int
	DecisionStatus       string
	FailureReason        string
	UpdatedAt            time.Time
}

// RateBucket is the per-wallet sliding-window rate-limit state.
type RateBucket struct {
	WalletAddress string
	Count         int
	WindowStart   time.Time
}

// WebhookStatus is the lifecycle state of a webhook delivery log entry.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusSucceeded WebhookStatus = "succeeded"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookDelivery is one row per enqueue, finalised when retries exhaust or
// a 2xx response arrives.
type WebhookDelivery struct {
	DeliveryID      string
	VerificationID  string
	WebhookURL      string
	Payload         string
	Status          WebhookStatus
	HTTPStatus      int
	ResponseSnippet string
	ErrorMessage    string
	Attempt         int
	CreatedAt       time.Time
	CompletedAt     *time.Time
}
