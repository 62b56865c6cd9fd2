package acquire

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobscout/internal/model"
)

// Resolver resolves a single domain request.
type Resolver interface {
	Resolve(ctx context.Context, req model.AcquisitionRequest) model.DomainResult
}

// Orchestrator resolves every requested domain concurrently and assembles
// the run report once all of them have finished.
type Orchestrator struct {
	resolver      Resolver
	maxConcurrent int
	onComplete    func(model.DomainResult)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxConcurrentDomains caps how many domains resolve at once. Zero means
// no cap.
func WithMaxConcurrentDomains(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxConcurrent = n }
}

// WithDomainObserver registers fn to be called as each domain finishes.
// fn is called from multiple goroutines.
func WithDomainObserver(fn func(model.DomainResult)) OrchestratorOption {
	return func(o *Orchestrator) { o.onComplete = fn }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(resolver Resolver, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{resolver: resolver}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run resolves requests and returns the report. Domain results keep the
// order of requests regardless of completion order. A failing domain never
// cancels the others.
func (o *Orchestrator) Run(ctx context.Context, runID string, requests []model.AcquisitionRequest) *model.RunReport {
	start := time.Now()
	results := make([]model.DomainResult, len(requests))

	// Plain group: no shared cancellation between domains.
	var g errgroup.Group
	if o.maxConcurrent > 0 {
		g.SetLimit(o.maxConcurrent)
	}

	for i, req := range requests {
		g.Go(func() error {
			dr := o.resolver.Resolve(ctx, req)
			results[i] = dr

			zap.L().Info("acquire: domain resolved",
				zap.String("run_id", runID),
				zap.String("domain", string(dr.Domain)),
				zap.String("tier", string(dr.Tier)),
				zap.Int("count", dr.Count),
				zap.Int("attempts", len(dr.Attempts)),
				zap.Duration("elapsed", dr.Elapsed),
			)
			if o.onComplete != nil {
				o.onComplete(dr)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := model.NewRunReport(runID, start.UTC(), time.Since(start), results)
	zap.L().Info("acquire: run complete",
		zap.String("run_id", runID),
		zap.Int("domains", len(results)),
		zap.Int("records", report.TotalRecords),
		zap.Int("exhausted", len(report.Exhausted())),
		zap.Duration("duration", report.Duration),
	)
	return report
}
