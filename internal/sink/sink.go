// Package sink persists the deduplicated records of a run. Every sink
// implements acquire.Sink and returns a location string describing where
// the records went.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/model"
)

// Sink mirrors acquire.Sink so the package can compose sinks without
// importing the orchestrator.
type Sink interface {
	Persist(ctx context.Context, report *model.RunReport, records []model.Record) (string, error)
}

// Multi fans out to several sinks in order. It stops at the first failure.
type Multi []Sink

// Persist implements Sink. The returned location joins each sink's location
// with ", ".
func (m Multi) Persist(ctx context.Context, report *model.RunReport, records []model.Record) (string, error) {
	locs := make([]string, 0, len(m))
	for i, s := range m {
		loc, err := s.Persist(ctx, report, records)
		if err != nil {
			return strings.Join(locs, ", "), eris.Wrapf(err, "sink: %d of %d", i+1, len(m))
		}
		if loc != "" {
			locs = append(locs, loc)
		}
	}
	return strings.Join(locs, ", "), nil
}

// fileName builds "<prefix>_<YYYYmmdd_HHMMSS>.<ext>".
func fileName(prefix string, at time.Time, ext string) string {
	if prefix == "" {
		prefix = "jobs"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, at.UTC().Format("20060102_150405"), ext)
}

// reportTime picks the report start, falling back to now.
func reportTime(report *model.RunReport, now func() time.Time) time.Time {
	if report != nil && !report.StartedAt.IsZero() {
		return report.StartedAt
	}
	return now()
}
