package cost

import (
	"github.com/sells-group/jobscout/internal/model"
)

// TierRate holds the price of one tier attempt.
type TierRate struct {
	PerCall   float64 `yaml:"per_call" mapstructure:"per_call"`
	PerRecord float64 `yaml:"per_record" mapstructure:"per_record"`
}

// Rates holds per-tier pricing configuration.
type Rates map[model.TierID]TierRate

// Calculator estimates what tier attempts cost.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. The map is copied.
func NewCalculator(rates Rates) *Calculator {
	cp := make(Rates, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return &Calculator{rates: cp}
}

// Attempt returns the estimated cost of one call to tier that yielded
// records. Attempts that never reached the provider cost nothing; unknown
// tiers are free.
func (c *Calculator) Attempt(tier model.TierID, status model.OutcomeStatus, records int) float64 {
	if c == nil || status == model.OutcomeNotApplicable {
		return 0
	}
	rate, ok := c.rates[tier]
	if !ok {
		return 0
	}
	return rate.PerCall + float64(records)*rate.PerRecord
}

// Rate returns the configured rate for tier.
func (c *Calculator) Rate(tier model.TierID) (TierRate, bool) {
	if c == nil {
		return TierRate{}, false
	}
	r, ok := c.rates[tier]
	return r, ok
}

// DefaultRates returns list-price estimates for the built-in tiers.
func DefaultRates() Rates {
	return Rates{
		model.TierApify:         {PerCall: 0.05, PerRecord: 0.004},
		model.TierFirecrawl:     {PerCall: 0.005},
		model.TierJinaSearch:    {PerCall: 0.002},
		model.TierPerplexity:    {PerCall: 0.005},
		model.TierClaudeExtract: {PerCall: 0.012},
		model.TierDirect:        {},
	}
}
