package resilience

import (
	"strings"
	"time"

	"github.com/sells-group/jobscout/internal/model"
)

// RetryEntry is an exhausted domain request parked for a later run. The
// fallback controller never loops; re-running exhausted domains is the
// caller's decision and this queue records it.
type RetryEntry struct {
	ID           string                   `json:"id"`
	Request      model.AcquisitionRequest `json:"request"`
	Error        string                   `json:"error"`
	ErrorType    string                   `json:"error_type"` // "transient" or "permanent"
	RetryCount   int                      `json:"retry_count"`
	MaxRetries   int                      `json:"max_retries"`
	NextRetryAt  time.Time                `json:"next_retry_at"`
	CreatedAt    time.Time                `json:"created_at"`
	LastFailedAt time.Time                `json:"last_failed_at"`
}

// RetryFilter specifies criteria for querying the retry queue.
type RetryFilter struct {
	DueBefore time.Time `json:"due_before,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *RetryEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// NewRetryEntry parks an exhausted domain result.
func NewRetryEntry(req model.AcquisitionRequest, dr model.DomainResult, maxRetries int, cfg RetryConfig, now time.Time) RetryEntry {
	errType := "permanent"
	for _, a := range dr.Attempts {
		if a.Err != nil && IsTransient(a.Err) {
			errType = "transient"
			break
		}
	}
	return RetryEntry{
		Request:      req,
		Error:        SummarizeAttempts(dr),
		ErrorType:    errType,
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(Backoff(0, cfg)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// Reschedule records another failed retry and pushes NextRetryAt back.
func (e *RetryEntry) Reschedule(dr model.DomainResult, cfg RetryConfig, now time.Time) {
	e.RetryCount++
	e.Error = SummarizeAttempts(dr)
	e.LastFailedAt = now
	e.NextRetryAt = now.Add(Backoff(e.RetryCount, cfg))
}

// SummarizeAttempts renders "tier: status (error)" for each attempt.
func SummarizeAttempts(dr model.DomainResult) string {
	parts := make([]string, 0, len(dr.Attempts))
	for _, a := range dr.Attempts {
		s := string(a.Tier) + ": " + string(a.Status)
		if a.Error != "" {
			s += " (" + a.Error + ")"
		} else if a.Status == model.OutcomeOK {
			s += " (insufficient yield)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
