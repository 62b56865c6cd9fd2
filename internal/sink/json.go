package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/model"
)

// jsonDocument is the layout of an exported results file.
type jsonDocument struct {
	RunID     string            `json:"run_id"`
	Generated time.Time         `json:"generated_at"`
	Rows      []model.ReportRow `json:"domains"`
	Records   []jsonRecord      `json:"records"`
}

type jsonRecord struct {
	Fields     map[string]any   `json:"fields"`
	Provenance model.Provenance `json:"provenance"`
}

// JSONSink writes a run's records to a timestamped JSON file.
type JSONSink struct {
	dir     string
	prefix  string
	nowFunc func() time.Time
}

// NewJSON creates a JSONSink writing into dir. An empty dir means ".tmp".
func NewJSON(dir, prefix string) *JSONSink {
	if dir == "" {
		dir = ".tmp"
	}
	return &JSONSink{dir: dir, prefix: prefix, nowFunc: time.Now}
}

// Persist implements Sink.
func (s *JSONSink) Persist(_ context.Context, report *model.RunReport, records []model.Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "sink: create json dir %s", s.dir)
	}

	doc := jsonDocument{
		Generated: s.nowFunc().UTC(),
		Records:   make([]jsonRecord, 0, len(records)),
	}
	if report != nil {
		doc.RunID = report.RunID
		doc.Rows = report.Rows()
	}
	for _, r := range records {
		doc.Records = append(doc.Records, jsonRecord{Fields: r.Fields, Provenance: r.Provenance})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "sink: marshal json")
	}

	path := filepath.Join(s.dir, fileName(s.prefix, reportTime(report, s.nowFunc), "json"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "sink: write %s", path)
	}
	zap.L().Info("sink: json written", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}
