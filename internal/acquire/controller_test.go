package acquire

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/model"
)

var chainABC = map[model.Domain][]model.TierID{"jobs": {"a", "b", "c"}}

func TestResolve_FallsThroughToSufficientTier(t *testing.T) {
	a := &stubFetcher{name: "a", n: 2}
	b := &stubFetcher{name: "b", n: 6}
	c := &stubFetcher{name: "c", n: 10}
	ctrl := newController(t, chainABC, time.Second, a, b, c)

	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "go", 10, nil))

	assert.Equal(t, model.TierID("b"), dr.Tier)
	assert.Equal(t, 6, dr.Count)
	assert.Len(t, dr.Records, 6)
	assert.Equal(t, 5, dr.Required)
	require.Len(t, dr.Attempts, 2)
	assert.Equal(t, []model.TierID{"a", "b"}, dr.AttemptedTiers())
	assert.Equal(t, 2, dr.Attempts[0].Yield)
	assert.Zero(t, c.calls.Load())
	assert.True(t, dr.Satisfied())
}

func TestResolve_AllFailingExhaustsChain(t *testing.T) {
	boom := errors.New("quota exceeded")
	ctrl := newController(t, chainABC, time.Second,
		&stubFetcher{name: "a", err: boom},
		&stubFetcher{name: "b", err: boom},
		&stubFetcher{name: "c", err: boom},
	)

	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 10, nil))

	assert.Equal(t, model.TierNone, dr.Tier)
	assert.Zero(t, dr.Count)
	assert.Empty(t, dr.Records)
	assert.Len(t, dr.Attempts, 3)
	assert.Equal(t, []model.TierID{"a", "b", "c"}, dr.AttemptedTiers())
	for _, a := range dr.Attempts {
		assert.Equal(t, model.OutcomeFailed, a.Status)
	}
	assert.False(t, dr.Satisfied())
}

func TestResolve_ExactCountShortCircuits(t *testing.T) {
	a := &stubFetcher{name: "a", n: 10}
	b := &stubFetcher{name: "b", n: 10}
	ctrl := newController(t, chainABC, time.Second, a, b, &stubFetcher{name: "c"})

	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 10, nil))

	assert.Equal(t, model.TierID("a"), dr.Tier)
	assert.Len(t, dr.Attempts, 1)
	assert.Zero(t, b.calls.Load())
}

func TestResolve_UnderYieldEverywhere(t *testing.T) {
	ctrl := newController(t, chainABC, time.Second,
		&stubFetcher{name: "a", n: 1},
		&stubFetcher{name: "b", n: 4},
		&stubFetcher{name: "c", n: 0},
	)
	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 10, nil))

	assert.Equal(t, model.TierNone, dr.Tier)
	assert.Zero(t, dr.Count)
	assert.Empty(t, dr.Records)
	assert.Len(t, dr.Attempts, 3)
	for _, a := range dr.Attempts {
		assert.Equal(t, model.OutcomeOK, a.Status)
	}
}

func TestResolve_ZeroCountAcceptsFirstAttempt(t *testing.T) {
	a := &stubFetcher{name: "a", n: 0}
	b := &stubFetcher{name: "b", n: 3}
	ctrl := newController(t, chainABC, time.Second, a, b, &stubFetcher{name: "c"})

	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 0, nil))

	assert.Equal(t, model.TierID("a"), dr.Tier)
	assert.Zero(t, dr.Required)
	assert.Zero(t, dr.Count)
	assert.Len(t, dr.Attempts, 1)
	assert.Zero(t, b.calls.Load())
}

func TestResolve_ZeroCountSkipsHardFailures(t *testing.T) {
	ctrl := newController(t, chainABC, time.Second,
		&stubFetcher{name: "a", err: errors.New("down")},
		&stubFetcher{name: "b", n: 3},
		&stubFetcher{name: "c"},
	)
	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 0, nil))
	assert.Equal(t, model.TierID("b"), dr.Tier)
	assert.Equal(t, 3, dr.Count)
}

func TestResolve_NotApplicableAndUnknownTiersRecorded(t *testing.T) {
	a := &stubFetcher{name: "a", n: 10, skip: map[model.Domain]bool{"jobs": true}}
	c := &stubFetcher{name: "c", n: 10}
	// "b" is never registered.
	ctrl := newController(t, chainABC, time.Second, a, c)

	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 10, nil))

	require.Len(t, dr.Attempts, 3)
	assert.Equal(t, model.OutcomeNotApplicable, dr.Attempts[0].Status)
	assert.ErrorIs(t, dr.Attempts[0].Err, ErrNotApplicable)
	assert.Equal(t, model.OutcomeNotApplicable, dr.Attempts[1].Status)
	assert.ErrorIs(t, dr.Attempts[1].Err, ErrUnknownTier)
	assert.Equal(t, model.TierID("c"), dr.Tier)
	assert.Zero(t, a.calls.Load())
}

func TestResolve_UnknownDomainUsesFallback(t *testing.T) {
	fb := &stubFetcher{name: "fallback", n: 4}
	ctrl := newController(t, chainABC, time.Second, fb)

	dr := ctrl.Resolve(context.Background(), model.NewRequest("wellfound", "", 4, nil))
	assert.Equal(t, model.TierID("fallback"), dr.Tier)
	assert.Equal(t, []model.TierID{"fallback"}, dr.AttemptedTiers())
}

func TestResolve_TimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := &stubFetcher{name: "a", fetchFn: func(context.Context, model.Domain) ([]model.Record, error) {
		<-release
		return nil, nil
	}}
	ctrl := newController(t, chainABC, 20*time.Millisecond, a, &stubFetcher{name: "b", n: 5}, &stubFetcher{name: "c"})

	dr := ctrl.Resolve(context.Background(), model.NewRequest("jobs", "", 5, nil))
	assert.Equal(t, model.TierID("b"), dr.Tier)
	assert.ErrorIs(t, dr.Attempts[0].Err, ErrTierTimeout)
}

func TestResolve_AcceptedCountMeetsThreshold(t *testing.T) {
	for _, threshold := range []float64{0.3, 0.5, 0.7, 1} {
		for count := 1; count <= 20; count++ {
			for yield := 0; yield <= count; yield++ {
				ctrl := NewController(
					newTable(t, map[model.Domain][]model.TierID{"d": {"a"}}),
					NewRegistry(&stubFetcher{name: "a", n: yield}),
					NewExecutor(time.Second, nil),
					threshold,
				)
				dr := ctrl.Resolve(context.Background(), model.NewRequest("d", "", count, nil))
				want := int(math.Ceil(float64(count)*threshold - 1e-9))
				if dr.Satisfied() {
					assert.GreaterOrEqual(t, dr.Count, want, "threshold=%v count=%d yield=%d", threshold, count, yield)
				} else {
					assert.Less(t, yield, want, "threshold=%v count=%d yield=%d", threshold, count, yield)
				}
			}
		}
	}
}

func TestController_Required(t *testing.T) {
	ctrl := NewController(nil, nil, nil, 0.5)
	assert.Equal(t, 5, ctrl.Required(10))
	assert.Equal(t, 2, ctrl.Required(3))
	assert.Equal(t, 0, ctrl.Required(0))

	assert.Equal(t, 7, NewController(nil, nil, nil, 0.7).Required(10))
	assert.Equal(t, 10, NewController(nil, nil, nil, 1).Required(10))

	assert.Equal(t, DefaultYieldThreshold, NewController(nil, nil, nil, 0).Threshold())
	assert.Equal(t, DefaultYieldThreshold, NewController(nil, nil, nil, 1.5).Threshold())
}
