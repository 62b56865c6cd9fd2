package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/jobscout/internal/model"
)

func TestAttempt(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Rates{
		model.TierApify:     {PerCall: 0.05, PerRecord: 0.01},
		model.TierFirecrawl: {PerCall: 0.005},
	})

	tests := []struct {
		name    string
		tier    model.TierID
		status  model.OutcomeStatus
		records int
		want    float64
	}{
		{"call plus records", model.TierApify, model.OutcomeOK, 10, 0.15},
		{"failed call still billed", model.TierApify, model.OutcomeFailed, 0, 0.05},
		{"not applicable is free", model.TierApify, model.OutcomeNotApplicable, 0, 0},
		{"flat rate", model.TierFirecrawl, model.OutcomeOK, 40, 0.005},
		{"unknown tier", model.TierDirect, model.OutcomeOK, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Attempt(tt.tier, tt.status, tt.records), 1e-9)
		})
	}
}

func TestNilCalculator(t *testing.T) {
	t.Parallel()
	var calc *Calculator
	assert.Zero(t, calc.Attempt(model.TierApify, model.OutcomeOK, 3))
	_, ok := calc.Rate(model.TierApify)
	assert.False(t, ok)
}

func TestNewCalculator_CopiesRates(t *testing.T) {
	t.Parallel()
	rates := Rates{model.TierApify: {PerCall: 1}}
	calc := NewCalculator(rates)
	rates[model.TierApify] = TierRate{PerCall: 99}

	r, ok := calc.Rate(model.TierApify)
	assert.True(t, ok)
	assert.Equal(t, 1.0, r.PerCall)
}

func TestDefaultRates_CoverBuiltInTiers(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	for _, tier := range []model.TierID{
		model.TierApify, model.TierFirecrawl, model.TierJinaSearch,
		model.TierPerplexity, model.TierClaudeExtract, model.TierDirect,
	} {
		_, ok := rates[tier]
		assert.True(t, ok, "missing rate for %s", tier)
	}
}
