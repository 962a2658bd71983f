package verify

import (
	"context"
	"testing"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/decision"
	verifyerrors "github.com/Avantemaps-pi/avante-verifier-internal/internal/errors"
)

func TestVerifyBatch_MixedOutcomes(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	resp, err := o.VerifyBatch(context.Background(), BatchRequest{
		Verifications: []Request{
			{WalletAddress: testWallet, BusinessName: "Acme Co", ExternalUserID: "user-1"},
			{WalletAddress: "bad-wallet", BusinessName: "Acme Co", ExternalUserID: "user-1"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TotalRequested != 2 || resp.TotalProcessed != 2 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if resp.TotalSuccessful != 1 || resp.TotalFailed != 1 {
		t.Errorf("expected 1 success and 1 failure, got %+v", resp)
	}
	if !resp.Results[0].Success {
		t.Errorf("entry 0 should have succeeded: %+v", resp.Results[0])
	}
	if resp.Results[1].Success {
		t.Errorf("entry 1 should have failed")
	}
}

func TestVerifyBatch_RejectsEmpty(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	_, err := o.VerifyBatch(context.Background(), BatchRequest{})
	if verifyerrors.CodeOf(err) != verifyerrors.ErrCodeBadRequest {
		t.Errorf("CodeOf(err) = %v, want bad_request", verifyerrors.CodeOf(err))
	}
}

func TestVerifyBatch_RejectsOverMax(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	entries := make([]Request, defaultMaxBatchSize+1)
	for i := range entries {
		entries[i] = Request{WalletAddress: testWallet, BusinessName: "Acme Co", ExternalUserID: "user-1"}
	}
	_, err := o.VerifyBatch(context.Background(), BatchRequest{Verifications: entries})
	if verifyerrors.CodeOf(err) != verifyerrors.ErrCodeBadRequest {
		t.Errorf("CodeOf(err) = %v, want bad_request", verifyerrors.CodeOf(err))
	}
}

func TestVerifyBatch_PreservesOrder(t *testing.T) {
	o, store, srv := newTestOrchestrator(t, 5, decision.Thresholds{MinTotal: 1, MinCredited: 1, MinUnique: 1})
	defer srv.Close()
	defer store.Close()

	wallets := []string{
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVA",
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVB",
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVC",
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVD",
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVE",
		"GABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFGHIJKLMNOPQRSTUVF",
	}
	entries := make([]Request, len(wallets))
	for i, w := range wallets {
		entries[i] = Request{WalletAddress: w, BusinessName: "Acme Co", ExternalUserID: "user-1"}
	}
	resp, err := o.VerifyBatch(context.Background(), BatchRequest{Verifications: entries})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != len(entries) {
		t.Fatalf("results length = %d, want %d", len(resp.Results), len(entries))
	}
	for i, r := range resp.Results {
		if r.Data == nil || r.Data.WalletAddress != wallets[i] {
			t.Errorf("result %d: unexpected data %+v, want wallet %s", i, r.Data, wallets[i])
		}
	}
}
