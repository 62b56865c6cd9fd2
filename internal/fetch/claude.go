package fetch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/pkg/anthropic"
	"github.com/sells-group/jobscout/pkg/jina"
)

const (
	defaultClaudeModel     = "claude-haiku-4-5-20251001"
	defaultClaudeMaxTokens = 8192
	maxPageChars           = 60000
)

const claudeSystem = `You extract job postings from the markdown of a job board page.
Answer with a JSON object {"jobs": [...]} and nothing else. Each job has
title, organization, location, url, posted_at, description (one sentence),
budget, job_type and skills. Use empty strings for missing values.`

// ClaudeExtract reads a domain's search results page through Jina Reader
// and has Claude extract the listings.
type ClaudeExtract struct {
	reader     jina.Client
	llm        anthropic.Client
	searchURLs map[model.Domain]string
	model      string
	maxTokens  int64
	breaker    *resilience.CircuitBreaker
}

// NewClaudeExtract creates the claude_extract tier.
func NewClaudeExtract(reader jina.Client, llm anthropic.Client, searchURLs map[model.Domain]string, modelName string, maxTokens int64, breaker *resilience.CircuitBreaker) *ClaudeExtract {
	if modelName == "" {
		modelName = defaultClaudeModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &ClaudeExtract{
		reader:     reader,
		llm:        llm,
		searchURLs: copyTemplates(searchURLs),
		model:      modelName,
		maxTokens:  maxTokens,
		breaker:    breaker,
	}
}

// Name implements acquire.Fetcher.
func (c *ClaudeExtract) Name() string { return string(model.TierClaudeExtract) }

// Supports implements acquire.Fetcher.
func (c *ClaudeExtract) Supports(domain model.Domain) bool {
	_, ok := c.searchURLs[domain]
	return ok
}

// Fetch implements acquire.Fetcher.
func (c *ClaudeExtract) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	tmpl, ok := c.searchURLs[domain]
	if !ok {
		return nil, eris.Errorf("fetch: no search url for domain %s", domain)
	}

	return guard(ctx, c.breaker, func(ctx context.Context) ([]model.Record, error) {
		page, err := c.reader.Read(ctx, expand(tmpl, query))
		if err != nil {
			return nil, eris.Wrap(err, "fetch: read results page")
		}
		content := page.Data.Content
		if len(content) > maxPageChars {
			content = content[:maxPageChars]
		}
		if content == "" {
			return nil, nil
		}

		resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    []anthropic.SystemBlock{{Text: claudeSystem, Cache: true}},
			Messages: []anthropic.Message{{
				Role:    "user",
				Content: listingPrompt(domain, query, count, filters) + "\n\n" + content,
			}},
		})
		if err != nil {
			return nil, err
		}
		resp.Usage.Log(c.model, string(domain))

		records, err := parseJobs(resp.Text())
		if err != nil {
			return nil, err
		}
		zap.L().Debug("fetch: claude extracted listings",
			zap.String("domain", string(domain)),
			zap.Int("records", len(records)),
		)
		return limit(filterKeyword(records, filters), count), nil
	})
}
