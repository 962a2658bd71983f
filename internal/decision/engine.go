// Package decision implements the pure threshold rule that turns a wallet's
// ledger activity counters into an approve/reject verdict.
package decision

import "fmt"

// Status is the verdict produced by Decide.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusUnderReview Status = "under_review" // reserved; never produced by Decide
)

// Counters is the business activity measured for a wallet.
type Counters struct {
	Total                int
	Credited             int
	UniqueCounterparties int
}

// Thresholds is the minimum activity required for approval.
type Thresholds struct {
	MinTotal    int
	MinCredited int
	MinUnique   int
}

// Decision is the outcome of applying Thresholds to Counters.
type Decision struct {
	Status        Status
	FailureReason string // empty when Status == StatusApproved
}

// Decide applies the threshold rule. Approval requires all three thresholds
// to be met; rejection reasons are built in a fixed total -> credited ->
// unique order so the wording is deterministic across runs.
func Decide(c Counters, t Thresholds) Decision {
	totalOK := c.Total >= t.MinTotal
	creditedOK := c.Credited >= t.MinCredited
	uniqueOK := c.UniqueCounterparties >= t.MinUnique

	if totalOK && creditedOK && uniqueOK {
		return Decision{Status: StatusApproved}
	}

	// Exactly total+credited failing (unique satisfied) gets the contract's
	// single combined sentence; every other failing combination, including
	// all three at once, concatenates the individual per-factor clauses in
	// total -> credited -> unique order.
	if !totalOK && !creditedOK && uniqueOK {
		reason := fmt.Sprintf("Insufficient total (%d/%d) and credited (%d/%d) transactions",
			c.Total, t.MinTotal, c.Credited, t.MinCredited)
		return Decision{Status: StatusRejected, FailureReason: reason}
	}

	var parts []string
	if !totalOK {
		parts = append(parts, fmt.Sprintf("Insufficient transactions (%d/%d)", c.Total, t.MinTotal))
	}
	if !creditedOK {
		parts = append(parts, fmt.Sprintf("Insufficient credited transactions (%d/%d)", c.Credited, t.MinCredited))
	}
	if !uniqueOK {
		parts = append(parts, fmt.Sprintf("Insufficient unique wallets (%d/%d)", c.UniqueCounterparties, t.MinUnique))
	}

	reason := parts[0]
	for _, p := range parts[1:] {
		reason += "; " + p
	}

	return Decision{Status: StatusRejected, FailureReason: reason}
}
