package sink

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/model"
)

// Sheet names of an exported workbook.
const (
	SheetRecords = "records"
	SheetDomains = "domains"
)

// recordHeader lists the record columns written to the records sheet.
var recordHeader = []string{
	"domain", "tier", model.FieldTitle, model.FieldOrganization, model.FieldLocation,
	model.FieldURL, model.FieldPostedAt, model.FieldBudget, model.FieldJobType,
	model.FieldSkills, "fetched_at",
}

var domainHeader = []string{"run_id", "domain", "tier", "yielded", "required", "attempts", "tiers", "cost_usd"}

// XLSXSink writes a workbook with one sheet of records and one sheet of
// per-domain report rows.
type XLSXSink struct {
	dir     string
	prefix  string
	nowFunc func() time.Time
}

// NewXLSX creates an XLSXSink writing into dir. An empty dir means ".tmp".
func NewXLSX(dir, prefix string) *XLSXSink {
	if dir == "" {
		dir = ".tmp"
	}
	return &XLSXSink{dir: dir, prefix: prefix, nowFunc: time.Now}
}

// Persist implements Sink.
func (s *XLSXSink) Persist(_ context.Context, report *model.RunReport, records []model.Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "sink: create xlsx dir %s", s.dir)
	}

	f := xlsx.NewFile()
	recSheet, err := f.AddSheet(SheetRecords)
	if err != nil {
		return "", eris.Wrap(err, "sink: add records sheet")
	}
	addRow(recSheet, recordHeader)
	for _, r := range records {
		row := recSheet.AddRow()
		row.AddCell().SetString(string(r.Provenance.Domain))
		row.AddCell().SetString(string(r.Provenance.Tier))
		for _, key := range recordHeader[2 : len(recordHeader)-1] {
			row.AddCell().SetString(r.Field(key))
		}
		fetched := ""
		if !r.Provenance.FetchedAt.IsZero() {
			fetched = r.Provenance.FetchedAt.UTC().Format(time.RFC3339)
		}
		row.AddCell().SetString(fetched)
	}

	domSheet, err := f.AddSheet(SheetDomains)
	if err != nil {
		return "", eris.Wrap(err, "sink: add domains sheet")
	}
	addRow(domSheet, domainHeader)
	if report != nil {
		for _, dr := range report.Rows() {
			row := domSheet.AddRow()
			row.AddCell().SetString(dr.RunID)
			row.AddCell().SetString(string(dr.Domain))
			row.AddCell().SetString(string(dr.Tier))
			row.AddCell().SetInt(dr.Yielded)
			row.AddCell().SetInt(dr.Required)
			row.AddCell().SetInt(dr.Attempts)
			row.AddCell().SetString(dr.Tiers)
			row.AddCell().SetFloat(dr.CostUSD)
		}
	}

	path := filepath.Join(s.dir, fileName(s.prefix, reportTime(report, s.nowFunc), "xlsx"))
	if err := f.Save(path); err != nil {
		return "", eris.Wrapf(err, "sink: save %s", path)
	}
	zap.L().Info("sink: workbook written", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
