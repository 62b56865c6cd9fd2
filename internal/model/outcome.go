package model

import "time"

// OutcomeStatus is the result class of a single tier attempt.
type OutcomeStatus string

const (
	// OutcomeOK means the fetcher returned without error (possibly with too few records).
	OutcomeOK OutcomeStatus = "ok"
	// OutcomeFailed means the fetcher errored, panicked or timed out.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeNotApplicable means the fetcher cannot serve the domain; no call was made.
	OutcomeNotApplicable OutcomeStatus = "not_applicable"
)

// FetchOutcome is produced by exactly one tier attempt and never mutated.
type FetchOutcome struct {
	Tier    TierID        `json:"tier"`
	Status  OutcomeStatus `json:"status"`
	Records []Record      `json:"-"`
	Yield   int           `json:"yield"`
	Elapsed time.Duration `json:"elapsed_ns"`
	CostUSD float64       `json:"cost_usd,omitempty"`
	Err     error         `json:"-"`
	Error   string        `json:"error,omitempty"`
}

// Failed reports whether the attempt produced no usable result at all.
func (o FetchOutcome) Failed() bool {
	return o.Status != OutcomeOK
}

// DomainResult is the final, immutable resolution of one domain.
type DomainResult struct {
	Domain   Domain         `json:"domain"`
	Query    string         `json:"query"`
	Tier     TierID         `json:"tier"`
	Count    int            `json:"count"`
	Required int            `json:"required"`
	Records  []Record       `json:"-"`
	Attempts []FetchOutcome `json:"attempts"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
	CostUSD  float64        `json:"cost_usd"`
}

// Satisfied reports whether some tier met the yield threshold.
func (d DomainResult) Satisfied() bool {
	return d.Tier != TierNone && d.Tier != ""
}

// AttemptedTiers lists tiers in the order they were attempted.
func (d DomainResult) AttemptedTiers() []TierID {
	tiers := make([]TierID, len(d.Attempts))
	for i, a := range d.Attempts {
		tiers[i] = a.Tier
	}
	return tiers
}
