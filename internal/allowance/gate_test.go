package allowance

import (
	"context"
	"testing"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/storage"
)

func TestGate_CheckAllowance_Unlimited(t *testing.T) {
	store := storage.NewMemoryStore(0)
	defer store.Close()
	g := New(store, nil)

	allowed, remaining, err := g.CheckAllowance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || remaining != -1 {
		t.Errorf("allowed=%v remaining=%d, want unlimited", allowed, remaining)
	}
}

func TestGate_CheckAllowance_RefusesWhenExhausted(t *testing.T) {
	store := storage.NewMemoryStore(1)
	defer store.Close()
	g := New(store, nil)
	ctx := context.Background()

	allowed, _, err := g.CheckAllowance(ctx, "user-1")
	if err != nil || !allowed {
		t.Fatalf("expected first call allowed, got allowed=%v err=%v", allowed, err)
	}
	if err := g.IncrementUsage(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	allowed, remaining, err := g.CheckAllowance(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected refusal once quota is exhausted")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}
