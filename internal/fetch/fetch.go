// Package fetch implements the acquisition tiers on top of the provider
// clients in pkg/. Every fetcher satisfies acquire.Fetcher.
package fetch

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

// guard runs fn through the breaker when one is configured.
func guard(ctx context.Context, cb *resilience.CircuitBreaker, fn func(ctx context.Context) ([]model.Record, error)) ([]model.Record, error) {
	if cb == nil {
		return fn(ctx)
	}
	var records []model.Record
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		records, err = fn(ctx)
		return err
	})
	return records, err
}

// jobSchema is the structured-output schema shared by the LLM-backed tiers.
var jobSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"jobs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":        map[string]any{"type": "string"},
					"organization": map[string]any{"type": "string"},
					"location":     map[string]any{"type": "string"},
					"url":          map[string]any{"type": "string"},
					"posted_at":    map[string]any{"type": "string"},
					"description":  map[string]any{"type": "string"},
					"budget":       map[string]any{"type": "string"},
					"job_type":     map[string]any{"type": "string"},
					"skills":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"title", "url"},
			},
		},
	},
	"required": []string{"jobs"},
}

type extractedJob struct {
	Title        string   `json:"title"`
	Organization string   `json:"organization"`
	Location     string   `json:"location"`
	URL          string   `json:"url"`
	PostedAt     string   `json:"posted_at"`
	Description  string   `json:"description"`
	Budget       string   `json:"budget"`
	JobType      string   `json:"job_type"`
	Skills       []string `json:"skills"`
}

func (j extractedJob) record() model.Record {
	fields := map[string]any{
		model.FieldTitle:        strings.TrimSpace(j.Title),
		model.FieldOrganization: strings.TrimSpace(j.Organization),
		model.FieldLocation:     strings.TrimSpace(j.Location),
		model.FieldURL:          strings.TrimSpace(j.URL),
	}
	setIf(fields, model.FieldPostedAt, j.PostedAt)
	setIf(fields, model.FieldDescription, j.Description)
	setIf(fields, model.FieldBudget, j.Budget)
	setIf(fields, model.FieldJobType, j.JobType)
	if len(j.Skills) > 0 {
		fields[model.FieldSkills] = j.Skills
	}
	return model.NewRecord(fields)
}

// parseJobs decodes LLM output holding either {"jobs": [...]} or a bare
// array, tolerating markdown code fences. Entries without a title are
// dropped.
func parseJobs(raw string) ([]model.Record, error) {
	s := stripFences(raw)
	if s == "" {
		return nil, nil
	}

	var jobs []extractedJob
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &jobs); err != nil {
			return nil, eris.Wrap(err, "fetch: decode job array")
		}
	} else {
		var wrapped struct {
			Jobs []extractedJob `json:"jobs"`
		}
		if err := json.Unmarshal([]byte(s), &wrapped); err != nil {
			return nil, eris.Wrap(err, "fetch: decode jobs object")
		}
		jobs = wrapped.Jobs
	}

	records := make([]model.Record, 0, len(jobs))
	for _, j := range jobs {
		if strings.TrimSpace(j.Title) == "" {
			continue
		}
		records = append(records, j.record())
	}
	return records, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// matchesKeyword implements the "keyword" filter: a case-insensitive
// substring match against title and description.
func matchesKeyword(r model.Record, filters map[string]string) bool {
	kw := strings.ToLower(strings.TrimSpace(filters["keyword"]))
	if kw == "" {
		return true
	}
	text := strings.ToLower(r.Field(model.FieldTitle) + " " + r.Field(model.FieldDescription))
	return strings.Contains(text, kw)
}

func filterKeyword(records []model.Record, filters map[string]string) []model.Record {
	if filters["keyword"] == "" {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if matchesKeyword(r, filters) {
			out = append(out, r)
		}
	}
	return out
}

func limit(records []model.Record, count int) []model.Record {
	if count > 0 && len(records) > count {
		return records[:count]
	}
	return records
}

func setIf(fields map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fields[key] = v
	}
}

// expand substitutes the escaped query into a search URL template.
func expand(template, query string) string {
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(query))
}

// formatFilters renders filters as "k=v, k=v" in key order.
func formatFilters(filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+filters[k])
	}
	return strings.Join(parts, ", ")
}
