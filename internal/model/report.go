package model

import (
	"sort"
	"time"
)

// RunReport aggregates every DomainResult of one orchestrator invocation.
type RunReport struct {
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	Duration      time.Duration  `json:"duration_ns"`
	Domains       []DomainResult `json:"domains"`
	TotalRecords  int            `json:"total_records"`
	UniqueRecords int            `json:"unique_records"`
	ByDomain      map[Domain]int `json:"by_domain"`
	ByTier        map[TierID]int `json:"by_tier"`
	CostUSD       float64        `json:"cost_usd"`
}

// NewRunReport assembles a report from completed domain results.
func NewRunReport(runID string, startedAt time.Time, duration time.Duration, results []DomainResult) *RunReport {
	r := &RunReport{
		RunID:     runID,
		StartedAt: startedAt,
		Duration:  duration,
		Domains:   results,
		ByDomain:  make(map[Domain]int, len(results)),
		ByTier:    make(map[TierID]int),
	}
	for _, d := range results {
		r.TotalRecords += d.Count
		r.ByDomain[d.Domain] += d.Count
		r.ByTier[d.Tier] += d.Count
		r.CostUSD += d.CostUSD
	}
	r.UniqueRecords = r.TotalRecords
	return r
}

// Records concatenates accepted records in domain order.
func (r *RunReport) Records() []Record {
	out := make([]Record, 0, r.TotalRecords)
	for _, d := range r.Domains {
		out = append(out, d.Records...)
	}
	return out
}

// Exhausted returns domains whose chain produced no acceptable result.
func (r *RunReport) Exhausted() []DomainResult {
	var out []DomainResult
	for _, d := range r.Domains {
		if !d.Satisfied() {
			out = append(out, d)
		}
	}
	return out
}

// Domain returns the result for a domain, if present.
func (r *RunReport) Domain(d Domain) (DomainResult, bool) {
	for _, dr := range r.Domains {
		if dr.Domain == d {
			return dr, true
		}
	}
	return DomainResult{}, false
}

// ReportRow is the flattened, persisted form of one DomainResult.
type ReportRow struct {
	RunID    string  `json:"run_id"`
	Domain   Domain  `json:"domain"`
	Tier     TierID  `json:"tier"`
	Yielded  int     `json:"yielded"`
	Required int     `json:"required"`
	Attempts int     `json:"attempts"`
	Tiers    string  `json:"tiers"`
	CostUSD  float64 `json:"cost_usd"`
}

// Rows serializes the report into the persisted per-domain layout.
func (r *RunReport) Rows() []ReportRow {
	rows := make([]ReportRow, 0, len(r.Domains))
	for _, d := range r.Domains {
		tiers := ""
		for i, t := range d.AttemptedTiers() {
			if i > 0 {
				tiers += ">"
			}
			tiers += string(t)
		}
		rows = append(rows, ReportRow{
			RunID:    r.RunID,
			Domain:   d.Domain,
			Tier:     d.Tier,
			Yielded:  d.Count,
			Required: d.Required,
			Attempts: len(d.Attempts),
			Tiers:    tiers,
			CostUSD:  d.CostUSD,
		})
	}
	return rows
}

// SortedTiers returns the tiers present in ByTier in a stable order.
func (r *RunReport) SortedTiers() []TierID {
	tiers := make([]TierID, 0, len(r.ByTier))
	for t := range r.ByTier {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}
