package acquire

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/routing"
)

// DefaultYieldThreshold is the fraction of the requested count a tier must
// return to be accepted.
const DefaultYieldThreshold = 0.5

// Controller resolves one domain by walking its tier chain in order until an
// outcome meets the yield threshold.
type Controller struct {
	routes    *routing.Table
	fetchers  *Registry
	exec      *Executor
	threshold float64
}

// NewController creates a Controller. Thresholds outside (0, 1] fall back to
// DefaultYieldThreshold.
func NewController(routes *routing.Table, fetchers *Registry, exec *Executor, threshold float64) *Controller {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultYieldThreshold
	}
	return &Controller{
		routes:    routes,
		fetchers:  fetchers,
		exec:      exec,
		threshold: threshold,
	}
}

// Threshold returns the configured yield threshold.
func (c *Controller) Threshold() float64 { return c.threshold }

// Required returns the minimum yield accepted for count.
func (c *Controller) Required(count int) int {
	if count <= 0 {
		return 0
	}
	// Subtract a hair so 10*0.7 does not round up to 8.
	return int(math.Ceil(float64(count)*c.threshold - 1e-9))
}

// Resolve attempts the domain's tiers sequentially. Exhaustion is reported
// as a result with tier "none", not as an error.
func (c *Controller) Resolve(ctx context.Context, req model.AcquisitionRequest) model.DomainResult {
	start := time.Now()
	chain := c.routes.TiersFor(req.Domain)
	required := c.Required(req.Count)

	result := model.DomainResult{
		Domain:   req.Domain,
		Query:    req.Query,
		Tier:     model.TierNone,
		Required: required,
		Attempts: make([]model.FetchOutcome, 0, len(chain)),
	}

	for _, tier := range chain {
		outcome := c.attempt(ctx, tier, req)
		result.Attempts = append(result.Attempts, outcome)
		result.CostUSD += outcome.CostUSD

		if c.accept(outcome, required) {
			result.Tier = tier
			result.Records = outcome.Records
			result.Count = len(outcome.Records)
			break
		}

		if outcome.Status == model.OutcomeOK {
			zap.L().Info("acquire: insufficient yield, falling back",
				zap.String("domain", string(req.Domain)),
				zap.String("tier", string(tier)),
				zap.Int("yield", outcome.Yield),
				zap.Int("required", required),
			)
		}
	}

	result.Elapsed = time.Since(start)
	if !result.Satisfied() {
		zap.L().Warn("acquire: domain exhausted",
			zap.String("domain", string(req.Domain)),
			zap.Int("attempts", len(result.Attempts)),
		)
	}
	return result
}

func (c *Controller) attempt(ctx context.Context, tier model.TierID, req model.AcquisitionRequest) model.FetchOutcome {
	f := c.fetchers.Get(tier)
	if f == nil {
		zap.L().Warn("acquire: routing names unregistered tier",
			zap.String("domain", string(req.Domain)),
			zap.String("tier", string(tier)),
		)
		return model.FetchOutcome{
			Tier:   tier,
			Status: model.OutcomeNotApplicable,
			Err:    ErrUnknownTier,
			Error:  ErrUnknownTier.Error(),
		}
	}
	return c.exec.Attempt(ctx, f, req)
}

// accept reports whether outcome satisfies the domain. With a zero count the
// first tier that returns at all is accepted.
func (c *Controller) accept(outcome model.FetchOutcome, required int) bool {
	if outcome.Status != model.OutcomeOK {
		return false
	}
	return len(outcome.Records) >= required
}
