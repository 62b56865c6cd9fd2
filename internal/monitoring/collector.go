package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/store"
)

// MetricsSnapshot holds a point-in-time view of acquisition health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`
	CostUSD      float64 `json:"cost_usd"`
	Records      int     `json:"records"`

	// Domain metrics over finished runs that carry a report.
	DomainsAttempted int                  `json:"domains_attempted"`
	DomainsExhausted int                  `json:"domains_exhausted"`
	ExhaustedRate    float64              `json:"exhausted_rate"`
	ByTier           map[model.TierID]int `json:"by_tier"`

	// Retry queue depth.
	RetryDepth int `json:"retry_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the subset of store.Store the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	CountRetries(ctx context.Context) (int, error)
}

const collectPageSize = 500

// Collector gathers metrics from the run store.
type Collector struct {
	store RunSource
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunSource) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		ByTier:        make(map[model.TierID]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Runs are listed newest first; stop paging at the first one outside the window.
	for offset := 0; ; offset += collectPageSize {
		runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: collectPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}

		done := len(runs) < collectPageSize
		for _, r := range runs {
			if r.CreatedAt.Before(cutoff) {
				done = true
				break
			}
			snap.add(r)
		}
		if done {
			break
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.DomainsAttempted > 0 {
		snap.ExhaustedRate = float64(snap.DomainsExhausted) / float64(snap.DomainsAttempted)
	}

	depth, err := c.store.CountRetries(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count retries")
	}
	snap.RetryDepth = depth

	return snap, nil
}

func (s *MetricsSnapshot) add(r model.Run) {
	s.RunsTotal++
	switch r.Status {
	case model.RunStatusComplete:
		s.RunsComplete++
	case model.RunStatusFailed:
		s.RunsFailed++
	case model.RunStatusRunning:
		s.RunsRunning++
	}

	if r.Report == nil {
		return
	}
	s.CostUSD += r.Report.CostUSD
	s.Records += r.Report.UniqueRecords
	for _, d := range r.Report.Domains {
		s.DomainsAttempted++
		if !d.Satisfied() {
			s.DomainsExhausted++
		}
	}
	for tier, n := range r.Report.ByTier {
		s.ByTier[tier] += n
	}
}
