package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/allowance"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/cache"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/decision"
	verifyerrors "github.com/Avantemaps-pi/avante-verifier-internal/internal/errors"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ledger"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/ratelimit"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/webhook"
)

const testWallet = "GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVW"

type ledgerPage struct {
	Embedded struct {
		Records []ledgerPayment `json:"records"`
	} `json:"_embedded"`
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

type ledgerPayment struct {
	Type        string `json:"type"`
	From        string `json:"from"`
	To          string `json:"to"`
	PagingToken string `json:"paging_token"`
}

func newTestLedgerServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := ledgerPage{}
		for i := 0; i < total; i++ {
			page.Embedded.Records = append(page.Embedded.Records, ledgerPayment{
				Type: "payment", From: "GCOUNTERPARTY000000000000000000000000000000000000001", To: testWallet,
				PagingToken: fmt.Sprintf("%d", i),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
}

func newTestOrchestrator(t *testing.T, ledgerTotal int, thresholds decision.Thresholds) (*Orchestrator, storage.Store, *httptest.Server) {
	t.Helper()
	srv := newTestLedgerServer(t, ledgerTotal)
	store := storage.NewMemoryStore(0)
	limiter := ratelimit.NewWalletLimiter(store, ratelimit.WalletLimit{Max: 5, Window: time.Hour}, nil)
	gate := allowance.New(store, nil)
	disp := webhook.New(store, nil, nil)
	lc := ledger.New(srv.URL, srv.Client(), nil, nil)
	c := cache.New("", false, nil)

	o := New(Deps{
		Store:      store,
		Cache:      c,
		Ledger:     lc,
		Limiter:    limiter,
		Allowance:  gate,
		Webhook:    disp,
		Thresholds: thresholds,
	})
	return o, store, srv
}

func TestVerify_ApprovedOnFirstCall(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	resp, err := o.Verify(context.Background(), Request{
		WalletAddress:  testWallet,
		BusinessName:   "Acme Co",
		ExternalUserID: "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Data.MeetsRequirements {
		t.Errorf("expected approval, got failure reason %q", resp.Data.FailureReason)
	}
	if resp.Cached {
		t.Error("expected first call to be uncached")
	}
}

func TestVerify_CacheHitOnSecondCall(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	ctx := context.Background()
	req := Request{WalletAddress: testWallet, BusinessName: "Acme Co", ExternalUserID: "user-1"}

	if _, err := o.Verify(ctx, req); err != nil {
		t.Fatalf("first call: unexpected error: %v", err)
	}
	resp, err := o.Verify(ctx, req)
	if err != nil {
		t.Fatalf("second call: unexpected error: %v", err)
	}
	if !resp.Cached {
		t.Error("expected second call to be a cache hit")
	}
}

func TestVerify_ForceRefreshBypassesCache(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	ctx := context.Background()
	req := Request{WalletAddress: testWallet, BusinessName: "Acme Co", ExternalUserID: "user-1"}
	if _, err := o.Verify(ctx, req); err != nil {
		t.Fatalf("first call: unexpected error: %v", err)
	}

	req.ForceRefresh = true
	resp, err := o.Verify(ctx, req)
	if err != nil {
		t.Fatalf("second call: unexpected error: %v", err)
	}
	if resp.Cached {
		t.Error("expected forceRefresh to bypass the cache")
	}
}

func TestVerify_RejectsInvalidWallet(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	_, err := o.Verify(context.Background(), Request{
		WalletAddress:  "not-a-wallet",
		BusinessName:   "Acme Co",
		ExternalUserID: "user-1",
	})
	if verifyerrors.CodeOf(err) != verifyerrors.ErrCodeBadRequest {
		t.Errorf("CodeOf(err) = %v, want bad_request", verifyerrors.CodeOf(err))
	}
}

func TestVerify_RejectsMissingBusinessName(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	_, err := o.Verify(context.Background(), Request{WalletAddress: testWallet, ExternalUserID: "user-1"})
	if verifyerrors.CodeOf(err) != verifyerrors.ErrCodeBadRequest {
		t.Errorf("CodeOf(err) = %v, want bad_request", verifyerrors.CodeOf(err))
	}
}

func TestVerify_RateLimitExceeded(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()
	o.limiter = ratelimit.NewWalletLimiter(store, ratelimit.WalletLimit{Max: 1, Window: time.Hour}, nil)

	ctx := context.Background()
	req := Request{WalletAddress: testWallet, BusinessName: "Acme Co", ExternalUserID: "user-1"}
	if _, err := o.Verify(ctx, req); err != nil {
		t.Fatalf("first call: unexpected error: %v", err)
	}

	req.ForceRefresh = true
	_, err := o.Verify(ctx, req)
	if verifyerrors.CodeOf(err) != verifyerrors.ErrCodeRateLimited {
		t.Errorf("CodeOf(err) = %v, want rate_limited", verifyerrors.CodeOf(err))
	}
}

func TestVerify_QuotaExceeded(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()
	o.allowance = allowance.New(storage.NewMemoryStore(1), nil)

	ctx := context.Background()
	req := Request{WalletAddress: testWallet, BusinessName: "Acme Co", ExternalUserID: "user-1"}
	if _, err := o.Verify(ctx, req); err != nil {
		t.Fatalf("first call: unexpected error: %v", err)
	}
	req.ForceRefresh = true
	_, err := o.Verify(ctx, req)
	if verifyerrors.CodeOf(err) != verifyerrors.ErrCodeQuotaExceeded {
		t.Errorf("CodeOf(err) = %v, want quota_exceeded", verifyerrors.CodeOf(err))
	}
}

func TestVerify_RejectedBelowThresholds(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 2, decision.Thresholds{MinTotal: 100, MinCredited: 50, MinUnique: 10})
	defer srv.Close()
	defer store.Close()

	resp, err := o.Verify(context.Background(), Request{
		WalletAddress:  testWallet,
		BusinessName:   "Acme Co",
		ExternalUserID: "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data.MeetsRequirements {
		t.Error("expected rejection")
	}
	if resp.Data.FailureReason == "" {
		t.Error("expected a failure reason")
	}
}

func TestVerify_ThresholdOverridesFromRequest(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 2, decision.Thresholds{MinTotal: 100, MinCredited: 50, MinUnique: 10})
	defer srv.Close()
	defer store.Close()

	min := 1
	resp, err := o.Verify(context.Background(), Request{
		WalletAddress:           testWallet,
		BusinessName:            "Acme Co",
		ExternalUserID:          "user-1",
		MinTransactions:         &min,
		MinCreditedTransactions: &min,
		MinUniqueWallets:        &min,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Data.MeetsRequirements {
		t.Errorf("expected override thresholds to pass, got %q", resp.Data.FailureReason)
	}
}
