package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/pkg/jina"
)

const defaultSearchNum = 10

// JinaSearch is the universal tier: a web search restricted to the
// domain's site when one is known. Each result page becomes a record.
type JinaSearch struct {
	client  jina.Client
	sites   map[model.Domain]string
	breaker *resilience.CircuitBreaker
}

// NewJinaSearch creates the jina_search tier.
func NewJinaSearch(client jina.Client, sites map[model.Domain]string, breaker *resilience.CircuitBreaker) *JinaSearch {
	return &JinaSearch{client: client, sites: copyTemplates(sites), breaker: breaker}
}

// Name implements acquire.Fetcher.
func (j *JinaSearch) Name() string { return string(model.TierJinaSearch) }

// Supports implements acquire.Fetcher. Search can be attempted for any
// domain.
func (j *JinaSearch) Supports(model.Domain) bool { return true }

// Fetch implements acquire.Fetcher.
func (j *JinaSearch) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	site := j.sites[domain]

	q := query + " jobs"
	if site == "" {
		// Unknown platform: let the search engine find it by name.
		q = query + " " + string(domain) + " jobs"
	}
	if loc := filters["location"]; loc != "" {
		q += " " + loc
	}

	num := count
	if num <= 0 {
		num = defaultSearchNum
	}
	opts := []jina.SearchOption{jina.WithNum(num)}
	if site != "" {
		opts = append(opts, jina.WithSiteFilter(site))
	}

	return guard(ctx, j.breaker, func(ctx context.Context) ([]model.Record, error) {
		resp, err := j.client.Search(ctx, q, opts...)
		if err != nil {
			return nil, err
		}

		records := make([]model.Record, 0, len(resp.Data))
		for _, r := range resp.Data {
			if r.URL == "" || strings.TrimSpace(r.Title) == "" {
				continue
			}
			if site != "" && !onSite(r.URL, site) {
				continue
			}
			title, org := splitTitle(r.Title)
			fields := map[string]any{
				model.FieldTitle:        title,
				model.FieldOrganization: org,
				model.FieldLocation:     "",
				model.FieldURL:          r.URL,
			}
			setIf(fields, model.FieldDescription, first(r.Description, r.Content))
			setIf(fields, model.FieldPostedAt, r.Date)
			records = append(records, model.NewRecord(fields))
		}
		return limit(filterKeyword(records, filters), count), nil
	})
}

func onSite(raw, site string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	site = strings.ToLower(site)
	return host == site || strings.HasSuffix(host, "."+site)
}

// splitTitle separates "Role at Company" and "Role - Company" page titles,
// dropping a trailing " | Site" suffix.
func splitTitle(title string) (role, org string) {
	title = strings.TrimSpace(title)
	if i := strings.LastIndex(title, " | "); i > 0 {
		title = title[:i]
	}
	for _, sep := range []string{" at ", " - "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+len(sep):])
		}
	}
	return title, ""
}
