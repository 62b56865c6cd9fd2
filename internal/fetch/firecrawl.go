package fetch

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/pkg/firecrawl"
)

// Firecrawl scrapes a domain's search results page and has Firecrawl
// extract the listings against jobSchema.
type Firecrawl struct {
	client     firecrawl.Client
	searchURLs map[model.Domain]string
	breaker    *resilience.CircuitBreaker
}

// NewFirecrawl creates the firecrawl tier. searchURLs maps a domain to a
// results page template containing "{query}".
func NewFirecrawl(client firecrawl.Client, searchURLs map[model.Domain]string, breaker *resilience.CircuitBreaker) *Firecrawl {
	return &Firecrawl{client: client, searchURLs: copyTemplates(searchURLs), breaker: breaker}
}

// Name implements acquire.Fetcher.
func (f *Firecrawl) Name() string { return string(model.TierFirecrawl) }

// Supports implements acquire.Fetcher.
func (f *Firecrawl) Supports(domain model.Domain) bool {
	_, ok := f.searchURLs[domain]
	return ok
}

// Fetch implements acquire.Fetcher.
func (f *Firecrawl) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	tmpl, ok := f.searchURLs[domain]
	if !ok {
		return nil, eris.Errorf("fetch: no firecrawl search url for domain %s", domain)
	}

	return guard(ctx, f.breaker, func(ctx context.Context) ([]model.Record, error) {
		resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             expand(tmpl, query),
			Formats:         []string{"json"},
			OnlyMainContent: true,
			WaitFor:         2000,
			JSONOptions: &firecrawl.JSONOptions{
				Schema: jobSchema,
				Prompt: listingPrompt(domain, query, count, filters),
			},
		})
		if err != nil {
			return nil, err
		}

		records, err := parseJobs(string(resp.Data.JSON))
		if err != nil {
			return nil, err
		}
		return limit(filterKeyword(records, filters), count), nil
	})
}

// listingPrompt is the extraction instruction shared by LLM-backed tiers.
func listingPrompt(domain model.Domain, query string, count int, filters map[string]string) string {
	p := fmt.Sprintf("Extract the job postings listed on this %s page that match %q.", domain, query)
	if count > 0 {
		p += fmt.Sprintf(" Return at most %d postings.", count)
	}
	if len(filters) > 0 {
		p += " Only include postings matching: " + formatFilters(filters) + "."
	}
	return p + " Use absolute URLs. Leave a field empty when the page does not show it."
}

func copyTemplates(in map[model.Domain]string) map[model.Domain]string {
	out := make(map[model.Domain]string, len(in))
	for d, t := range in {
		if t != "" {
			out[d] = t
		}
	}
	return out
}
