package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSink_Persist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewJSON(dir, "jobs")

	path, err := s.Persist(context.Background(), testReport(), testRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "jobs_20260501_080000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		RunID   string `json:"run_id"`
		Domains []struct {
			Domain string `json:"domain"`
			Tier   string `json:"tier"`
		} `json:"domains"`
		Records []struct {
			Fields     map[string]any `json:"fields"`
			Provenance struct {
				Tier   string `json:"tier"`
				Domain string `json:"domain"`
			} `json:"provenance"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc.RunID)
	require.Len(t, doc.Domains, 2)
	assert.Equal(t, "upwork", doc.Domains[0].Domain)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "Go Engineer", doc.Records[0].Fields["title"])
	assert.Equal(t, "apify", doc.Records[0].Provenance.Tier)
	assert.Equal(t, "lever", doc.Records[1].Provenance.Domain)
}

func TestJSONSink_EmptyRecords(t *testing.T) {
	s := NewJSON(t.TempDir(), "")

	path, err := s.Persist(context.Background(), nil, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"records": []`)
}
