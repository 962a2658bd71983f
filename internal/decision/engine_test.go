package decision

import (
	"strings"
	"testing"
)

func defaultThresholds() Thresholds {
	return Thresholds{MinTotal: 100, MinCredited: 50, MinUnique: 10}
}

func TestDecide_Approved(t *testing.T) {
	c := Counters{Total: 150, Credited: 80, UniqueCounterparties: 25}
	d := Decide(c, defaultThresholds())

	if d.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", d.Status)
	}
	if d.FailureReason != "" {
		t.Errorf("expected empty failure reason, got %q", d.FailureReason)
	}
}

func TestDecide_OnlyCreditedFails(t *testing.T) {
	c := Counters{Total: 120, Credited: 30, UniqueCounterparties: 15}
	d := Decide(c, defaultThresholds())

	if d.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", d.Status)
	}
	want := "Insufficient credited transactions (30/50)"
	if d.FailureReason != want {
		t.Errorf("FailureReason = %q, want %q", d.FailureReason, want)
	}
}

func TestDecide_AllThreeFail(t *testing.T) {
	c := Counters{Total: 40, Credited: 40, UniqueCounterparties: 5}
	d := Decide(c, defaultThresholds())

	if d.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", d.Status)
	}
	if !strings.Contains(d.FailureReason, "Insufficient transactions (40/100)") {
		t.Errorf("FailureReason = %q, missing total clause", d.FailureReason)
	}
	if !strings.Contains(d.FailureReason, "Insufficient unique wallets (5/10)") {
		t.Errorf("FailureReason = %q, missing unique clause", d.FailureReason)
	}
}

func TestDecide_TotalAndCreditedFailOnly(t *testing.T) {
	c := Counters{Total: 50, Credited: 20, UniqueCounterparties: 12}
	d := Decide(c, defaultThresholds())

	if d.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", d.Status)
	}
	want := "Insufficient total (50/100) and credited (20/50) transactions"
	if d.FailureReason != want {
		t.Errorf("FailureReason = %q, want %q", d.FailureReason, want)
	}
}

func TestDecide_OnlyUniqueFails(t *testing.T) {
	c := Counters{Total: 200, Credited: 100, UniqueCounterparties: 3}
	d := Decide(c, defaultThresholds())

	want := "Insufficient unique wallets (3/10)"
	if d.FailureReason != want {
		t.Errorf("FailureReason = %q, want %q", d.FailureReason, want)
	}
}

func TestDecide_ZeroCounters(t *testing.T) {
	c := Counters{Total: 0, Credited: 0, UniqueCounterparties: 0}
	d := Decide(c, defaultThresholds())

	if d.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", d.Status)
	}
	if !strings.Contains(d.FailureReason, "Insufficient transactions (0/100)") {
		t.Errorf("expected reason to mention totals, got %q", d.FailureReason)
	}
}

func TestDecide_Idempotent(t *testing.T) {
	c := Counters{Total: 150, Credited: 80, UniqueCounterparties: 25}
	thresholds := defaultThresholds()

	d1 := Decide(c, thresholds)
	d2 := Decide(c, thresholds)

	if d1.Status != d2.Status || d1.FailureReason != d2.FailureReason {
		t.Errorf("Decide is not idempotent: %+v != %+v", d1, d2)
	}
}
