package acquire

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/cost"
	"github.com/sells-group/jobscout/internal/model"
)

// DefaultTierTimeout bounds a single tier attempt when none is configured.
const DefaultTierTimeout = 90 * time.Second

// Executor performs one tier attempt with a hard timeout and converts every
// failure, including panics, into a FetchOutcome.
type Executor struct {
	timeout time.Duration
	costs   *cost.Calculator
	nowFunc func() time.Time
}

// NewExecutor creates an Executor. A nil calculator records zero cost.
func NewExecutor(timeout time.Duration, costs *cost.Calculator) *Executor {
	if timeout <= 0 {
		timeout = DefaultTierTimeout
	}
	return &Executor{timeout: timeout, costs: costs, nowFunc: time.Now}
}

// Timeout returns the per-attempt timeout.
func (e *Executor) Timeout() time.Duration { return e.timeout }

type fetchResult struct {
	records []model.Record
	err     error
}

// Attempt runs f for req and never returns an error: failures are carried in
// the outcome.
func (e *Executor) Attempt(ctx context.Context, f Fetcher, req model.AcquisitionRequest) model.FetchOutcome {
	tier := model.TierID(f.Name())
	start := time.Now()
	log := zap.L().With(
		zap.String("domain", string(req.Domain)),
		zap.String("tier", string(tier)),
	)

	if !f.Supports(req.Domain) {
		log.Info("acquire: tier not applicable, skipping")
		return model.FetchOutcome{
			Tier:    tier,
			Status:  model.OutcomeNotApplicable,
			Elapsed: time.Since(start),
			Err:     ErrNotApplicable,
			Error:   ErrNotApplicable.Error(),
		}
	}

	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Buffered so the goroutine can finish after we stop listening.
	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		records, err := f.Fetch(actx, req.Domain, req.Query, req.Count, cloneFilters(req.Filters))
		ch <- fetchResult{records: records, err: err}
	}()

	var res fetchResult
	select {
	case res = <-ch:
	case <-actx.Done():
		res.err = actx.Err()
	}
	elapsed := time.Since(start)

	// A deadline hit by this attempt (not the caller) is a tier timeout.
	if res.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		res.err = ErrTierTimeout
	}

	if res.err != nil {
		fe := newFetchError(tier, req.Domain, res.err)
		out := model.FetchOutcome{
			Tier:    tier,
			Status:  model.OutcomeFailed,
			Elapsed: elapsed,
			CostUSD: e.costs.Attempt(tier, model.OutcomeFailed, 0),
			Err:     fe,
			Error:   fe.Error(),
		}
		var pe *PanicError
		if errors.As(res.err, &pe) {
			log.Error("acquire: fetcher panicked",
				zap.Any("panic", pe.Value),
				zap.ByteString("stack", pe.Stack),
			)
		} else {
			log.Warn("acquire: tier attempt failed",
				zap.String("kind", string(fe.Kind)),
				zap.Duration("elapsed", elapsed),
				zap.Error(res.err),
			)
		}
		return out
	}

	records := res.records
	if req.Count > 0 && len(records) > req.Count {
		records = records[:req.Count]
	}

	prov := model.Provenance{
		Tier:      tier,
		Domain:    req.Domain,
		Query:     req.Query,
		FetchedAt: e.nowFunc().UTC(),
	}
	stamped := make([]model.Record, len(records))
	for i, r := range records {
		stamped[i] = r.WithProvenance(prov)
	}

	log.Debug("acquire: tier attempt complete",
		zap.Int("yield", len(stamped)),
		zap.Int("requested", req.Count),
		zap.Duration("elapsed", elapsed),
	)

	return model.FetchOutcome{
		Tier:    tier,
		Status:  model.OutcomeOK,
		Records: stamped,
		Yield:   len(stamped),
		Elapsed: elapsed,
		CostUSD: e.costs.Attempt(tier, model.OutcomeOK, len(stamped)),
	}
}

func cloneFilters(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
