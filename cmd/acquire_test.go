package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/acquire"
	"github.com/sells-group/jobscout/internal/dedupe"
	"github.com/sells-group/jobscout/internal/model"
)

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"keyword=golang", " location = Remote ", "min_hourly=40"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"keyword": "golang", "location": "Remote", "min_hourly": "40"}, got)

	got, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseFilters_Invalid(t *testing.T) {
	_, err := parseFilters([]string{"keyword"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	_, err = parseFilters([]string{"=value"})
	require.Error(t, err)
}

func TestBuildInvocation(t *testing.T) {
	inv := buildInvocation([]string{" Upwork", "linkedin", ""}, "go developer", 10, map[string]string{"keyword": "api"})
	assert.Equal(t, []model.Domain{model.DomainUpwork, model.DomainLinkedIn}, inv.Domains)
	assert.Equal(t, "go developer", inv.Query)
	assert.Equal(t, 10, inv.Count)
	assert.Equal(t, "api", inv.Filters["keyword"])
}

func testResult() *acquire.Result {
	rec := model.NewRecord(map[string]any{model.FieldTitle: "Go Engineer", model.FieldURL: "https://example.com/1"})
	report := model.NewRunReport("abcdef12-3456", time.Now(), 1500*time.Millisecond, []model.DomainResult{
		{Domain: model.DomainUpwork, Tier: model.TierApify, Count: 1, Required: 1, Records: []model.Record{rec}, CostUSD: 0.0123,
			Attempts: []model.FetchOutcome{{Tier: model.TierApify, Status: model.OutcomeOK, Yield: 1}}},
		{Domain: model.DomainLinkedIn, Tier: model.TierNone, Required: 1,
			Attempts: []model.FetchOutcome{{Tier: model.TierApify, Status: model.OutcomeFailed, Error: "timeout"}}},
	})
	return &acquire.Result{
		RunID:    report.RunID,
		Report:   report,
		Records:  []model.Record{rec},
		Dedupe:   dedupe.Stats{Total: 1, Unique: 1},
		Location: "store://sqlite/runs/abcdef12-3456",
	}
}

func TestFormatReport(t *testing.T) {
	var buf bytes.Buffer
	formatReport(&buf, testResult())

	out := buf.String()
	assert.Contains(t, out, "DOMAIN")
	assert.Contains(t, out, "upwork")
	assert.Contains(t, out, "apify")
	assert.Contains(t, out, "linkedin")
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "$0.0123")
	assert.Contains(t, out, "Run abcdef12")
	assert.Contains(t, out, "Exhausted: linkedin")
	assert.Contains(t, out, "Saved to: store://sqlite/runs/abcdef12-3456")
}

func TestWriteResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, testResult(), "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "abcdef12-3456", decoded["run_id"])
	assert.Equal(t, "store://sqlite/runs/abcdef12-3456", decoded["location"])
}

func TestWriteResult_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := writeResult(&buf, testResult(), "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestFormatRetrySummary(t *testing.T) {
	var buf bytes.Buffer
	formatRetrySummary(&buf, &acquire.RetrySummary{})
	assert.Equal(t, "No retries due.\n", buf.String())

	buf.Reset()
	formatRetrySummary(&buf, &acquire.RetrySummary{
		Attempted:   3,
		Recovered:   1,
		Rescheduled: 2,
		Results:     []*acquire.Result{testResult(), testResult()},
	})
	assert.Equal(t, "Retried 3 domains in 2 runs: 1 recovered, 2 rescheduled\n", buf.String())
}
