package sink

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/model"
)

// RecordStore is the subset of store.Store the StoreSink writes through.
type RecordStore interface {
	SaveRecords(ctx context.Context, runID string, records []model.Record) (int64, error)
	Driver() string
}

// StoreSink saves records to the run database.
type StoreSink struct {
	store RecordStore
}

// NewStore creates a StoreSink.
func NewStore(st RecordStore) *StoreSink {
	return &StoreSink{store: st}
}

// Persist implements Sink.
func (s *StoreSink) Persist(ctx context.Context, report *model.RunReport, records []model.Record) (string, error) {
	if report == nil || report.RunID == "" {
		return "", eris.New("sink: store sink requires a run id")
	}
	n, err := s.store.SaveRecords(ctx, report.RunID, records)
	if err != nil {
		return "", eris.Wrap(err, "sink: save records")
	}
	loc := fmt.Sprintf("store://%s/runs/%s", s.store.Driver(), report.RunID)
	zap.L().Info("sink: records saved",
		zap.String("run_id", report.RunID),
		zap.Int64("rows", n),
		zap.String("location", loc),
	)
	return loc, nil
}
