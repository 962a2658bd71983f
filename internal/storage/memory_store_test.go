package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_UpsertAndGetVerification(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	rec := VerificationRecord{
		WalletAddress:  "GWALLET1",
		BusinessName:   "Acme",
		ExternalUserID: "user-1",
		Total:          150,
		Credited:       80,
		DecisionStatus: "approved",
	}

	stored, err := s.UpsertVerification(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID == "" {
		t.Error("expected a non-empty id")
	}

	got, err := s.GetVerificationByWallet(ctx, "GWALLET1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BusinessName != "Acme" || got.Total != 150 {
		t.Errorf("got %+v, want matching Acme record", got)
	}

	rec.BusinessName = "Acme Renamed"
	updated, err := s.UpsertVerification(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != stored.ID {
		t.Errorf("expected stable id across upserts, got %s then %s", stored.ID, updated.ID)
	}
}

func TestMemoryStore_GetVerification_NotFound(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	_, err := s.GetVerificationByWallet(context.Background(), "GNOSUCHWALLET")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_CheckRateLimit_AllowsUpToMax(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		allowed, count, _, err := s.CheckRateLimit(ctx, "GWALLET1", 5, time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Errorf("call %d: expected allowed", i)
		}
		if count != i {
			t.Errorf("call %d: count = %d, want %d", i, count, i)
		}
	}

	allowed, count, _, err := s.CheckRateLimit(ctx, "GWALLET1", 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected 6th call to be refused")
	}
	if count != 5 {
		t.Errorf("count = %d, want 5 (unchanged once refused)", count)
	}
}

func TestMemoryStore_CheckRateLimit_ResetsAfterWindow(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.mu.Lock()
	s.rateBuckets["GWALLET1"] = RateBucket{WalletAddress: "GWALLET1", Count: 5, WindowStart: time.Now().Add(-2 * time.Hour)}
	s.mu.Unlock()

	allowed, count, _, err := s.CheckRateLimit(ctx, "GWALLET1", 5, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected allowed after window reset")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after reset", count)
	}
}

func TestMemoryStore_Allowance_Unlimited(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	allowed, remaining, err := s.CheckAllowance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || remaining != -1 {
		t.Errorf("allowed=%v remaining=%d, want unlimited", allowed, remaining)
	}
}

func TestMemoryStore_Allowance_Bounded(t *testing.T) {
	s := NewMemoryStore(2)
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := s.CheckAllowance(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Errorf("call %d: expected allowed", i)
		}
		if err := s.IncrementUsage(ctx, "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	allowed, remaining, err := s.CheckAllowance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected quota exhausted")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestMemoryStore_WebhookDeliveryLifecycle(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	d := WebhookDelivery{
		DeliveryID:     "del-1",
		VerificationID: "ver_1",
		WebhookURL:     "https://example.com/hook",
		Payload:        `{"event":"verification.completed"}`,
		Status:         WebhookStatusPending,
	}
	if err := s.LogWebhookDelivery(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Status = WebhookStatusSucceeded
	d.HTTPStatus = 200
	now := time.Now()
	d.CompletedAt = &now
	if err := s.UpdateWebhookDelivery(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.UpdateWebhookDelivery(ctx, WebhookDelivery{DeliveryID: "no-such-delivery"}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
