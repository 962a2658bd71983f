// Package verify wires address validation, rate limiting, caching,
// allowance, the ledger client, the decision engine, persistence, and the
// webhook dispatcher into the single-verify and batch-verify pipelines.
package verify

import (
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/decision"
)

// Request is the parsed body of POST /verify-business, and one entry of a
// batch request.
type Request struct {
	WalletAddress  string `json:"walletAddress"`
	BusinessName   string `json:"businessName"`
	ExternalUserID string `json:"externalUserId"`

	ForceRefresh  bool   `json:"forceRefresh,omitempty"`
	WebhookURL    string `json:"webhookUrl,omitempty"`
	WebhookSecret string `json:"webhookSecret,omitempty"`

	MinTransactions         *int `json:"minTransactions,omitempty"`
	MinCreditedTransactions *int `json:"minCreditedTransactions,omitempty"`
	MinUniqueWallets        *int `json:"minUniqueWallets,omitempty"`
}

// Thresholds resolves the request's threshold overrides against defaults.
func (r Request) Thresholds(defaults decision.Thresholds) decision.Thresholds {
	t := defaults
	if r.MinTransactions != nil {
		t.MinTotal = *r.MinTransactions
	}
	if r.MinCreditedTransactions != nil {
		t.MinCredited = *r.MinCreditedTransactions
	}
	if r.MinUniqueWallets != nil {
		t.MinUnique = *r.MinUniqueWallets
	}
	return t
}

// Data is the verification payload shape shared by the single and batch
// endpoints.
type Data struct {
	VerificationID     string    `json:"verificationId"`
	WalletAddress      string    `json:"walletAddress"`
	BusinessName       string    `json:"businessName"`
	TotalTransactions  int       `json:"totalTransactions"`
	UniqueWallets      int       `json:"uniqueWallets"`
	MeetsRequirements  bool      `json:"meetsRequirements"`
	FailureReason      string    `json:"failureReason,omitempty"`
	VerificationStatus string    `json:"verificationStatus"`
	VerifiedAt         time.Time `json:"verifiedAt"`
}

// Response is the body of a successful POST /verify-business.
type Response struct {
	Success        bool      `json:"success"`
	Cached         bool      `json:"cached"`
	CacheExpiresAt time.Time `json:"cacheExpiresAt,omitempty"`
	WebhookQueued  bool      `json:"webhookQueued"`
	Data           Data      `json:"data"`
}

// BatchRequest is the body of POST /verify-business-batch.
type BatchRequest struct {
	Verifications []Request `json:"verifications"`
	ForceRefresh  bool      `json:"forceRefresh,omitempty"`
	WebhookURL    string    `json:"webhookUrl,omitempty"`
	WebhookSecret string    `json:"webhookSecret,omitempty"`

	MinTransactions         *int `json:"minTransactions,omitempty"`
	MinCreditedTransactions *int `json:"minCreditedTransactions,omitempty"`
	MinUniqueWallets        *int `json:"minUniqueWallets,omitempty"`
}

// BatchEntryResult is one element of BatchResponse.Results.
type BatchEntryResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    *Data  `json:"data,omitempty"`
}

// BatchResponse is the body of a successful POST /verify-business-batch.
type BatchResponse struct {
	Success         bool               `json:"success"`
	BatchID         string             `json:"batchId"`
	TotalRequested  int                `json:"totalRequested"`
	TotalProcessed  int                `json:"totalProcessed"`
	TotalSuccessful int                `json:"totalSuccessful"`
	TotalFailed     int                `json:"totalFailed"`
	Results         []BatchEntryResult `json:"results"`
}
