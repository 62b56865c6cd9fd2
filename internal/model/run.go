package model

import "time"

// RunStatus represents the current state of an acquisition run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Invocation is the caller-facing request: target domains, a query, a desired
// per-domain count and optional filters.
type Invocation struct {
	Domains []Domain          `json:"domains"`
	Query   string            `json:"query"`
	Count   int               `json:"count"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Requests expands the invocation into one request per domain.
func (inv Invocation) Requests() []AcquisitionRequest {
	reqs := make([]AcquisitionRequest, 0, len(inv.Domains))
	for _, d := range inv.Domains {
		reqs = append(reqs, NewRequest(d, inv.Query, inv.Count, inv.Filters))
	}
	return reqs
}

// Run is a persisted acquisition run.
type Run struct {
	ID         string     `json:"id"`
	Invocation Invocation `json:"invocation"`
	Status     RunStatus  `json:"status"`
	Report     *RunReport `json:"report,omitempty"`
	Location   string     `json:"location,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
