package fetch

import (
	"context"
	"fmt"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/pkg/perplexity"
)

const perplexitySystem = "You find current job postings on the web and answer only with JSON matching the given schema."

// Perplexity asks an online LLM to list postings, restricted to the
// domain's site when one is known.
type Perplexity struct {
	client  perplexity.Client
	sites   map[model.Domain]string
	breaker *resilience.CircuitBreaker
}

// NewPerplexity creates the perplexity tier.
func NewPerplexity(client perplexity.Client, sites map[model.Domain]string, breaker *resilience.CircuitBreaker) *Perplexity {
	return &Perplexity{client: client, sites: copyTemplates(sites), breaker: breaker}
}

// Name implements acquire.Fetcher.
func (p *Perplexity) Name() string { return string(model.TierPerplexity) }

// Supports implements acquire.Fetcher.
func (p *Perplexity) Supports(model.Domain) bool { return true }

// Fetch implements acquire.Fetcher.
func (p *Perplexity) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	req := perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystem},
			{Role: "user", Content: searchPrompt(domain, query, count, filters)},
		},
		ResponseFormat: &perplexity.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: perplexity.JSONSchema{Schema: jobSchema},
		},
	}
	if site := p.sites[domain]; site != "" {
		req.SearchDomainFilter = []string{site}
	}

	return guard(ctx, p.breaker, func(ctx context.Context) ([]model.Record, error) {
		resp, err := p.client.ChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		records, err := parseJobs(resp.Content())
		if err != nil {
			return nil, err
		}
		return limit(filterKeyword(records, filters), count), nil
	})
}

func searchPrompt(domain model.Domain, query string, count int, filters map[string]string) string {
	n := count
	if n <= 0 {
		n = defaultSearchNum
	}
	p := fmt.Sprintf("List up to %d open job postings on %s matching %q.", n, domain, query)
	if len(filters) > 0 {
		p += " Constraints: " + formatFilters(filters) + "."
	}
	return p + " Include the direct posting URL for each."
}
