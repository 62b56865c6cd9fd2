// Package store persists run history, acquired records and the retry queue
// of exhausted domains.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

// ErrNotFound is returned when a run or retry entry does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for acquisition runs. It
// satisfies acquire.RunStore.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, id string, report *model.RunReport, location string) error
	FailRun(ctx context.Context, id string, report *model.RunReport, errMsg string) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	ReportRows(ctx context.Context, runID string) ([]model.ReportRow, error)

	// Records
	SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error)
	ListRecords(ctx context.Context, runID string) ([]model.Record, error)

	// Retry queue
	EnqueueRetry(ctx context.Context, entry resilience.RetryEntry) error
	ListRetries(ctx context.Context, filter resilience.RetryFilter) ([]resilience.RetryEntry, error)
	UpdateRetry(ctx context.Context, entry resilience.RetryEntry) error
	RemoveRetry(ctx context.Context, id string) error
	CountRetries(ctx context.Context) (int, error)

	// Lifecycle
	Driver() string
	Migrate(ctx context.Context) error
	Close() error
}

// recordColumns is the column order shared by both backends.
var recordColumns = []string{
	"run_id", "seq", "domain", "tier", "query", "title", "organization",
	"location", "url", "fields", "fetched_at",
}

func recordRow(runID string, seq int, r model.Record) ([]any, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal record fields")
	}
	return []any{
		runID, seq,
		string(r.Provenance.Domain), string(r.Provenance.Tier), r.Provenance.Query,
		r.Field(model.FieldTitle), r.Field(model.FieldOrganization),
		r.Field(model.FieldLocation), r.Field(model.FieldURL),
		string(fields), r.Provenance.FetchedAt.UTC(),
	}, nil
}

func decodeRecord(domain, tier, query string, fields []byte, fetchedAt time.Time) (model.Record, error) {
	var r model.Record
	if err := json.Unmarshal(fields, &r.Fields); err != nil {
		return r, eris.Wrap(err, "store: unmarshal record fields")
	}
	r.Provenance = model.Provenance{
		Tier:      model.TierID(tier),
		Domain:    model.Domain(domain),
		Query:     query,
		FetchedAt: fetchedAt.UTC(),
	}
	return r, nil
}

func marshalReport(report *model.RunReport) ([]byte, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	return data, eris.Wrap(err, "store: marshal report")
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
