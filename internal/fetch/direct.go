package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

// Public job-board API endpoints used by the direct tier.
const (
	GreenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"
	LeverBaseURL      = "https://api.lever.co/v0/postings"
	RemoteOKURL       = "https://remoteok.com/api"
)

// DirectOption configures the direct tier.
type DirectOption func(*Direct)

// WithDirectBaseURLs overrides the API endpoints.
func WithDirectBaseURLs(greenhouse, lever, remoteok string) DirectOption {
	return func(d *Direct) {
		if greenhouse != "" {
			d.greenhouseURL = greenhouse
		}
		if lever != "" {
			d.leverURL = lever
		}
		if remoteok != "" {
			d.remoteOKURL = remoteok
		}
	}
}

// WithDirectHTTPClient sets a custom *http.Client.
func WithDirectHTTPClient(hc *http.Client) DirectOption {
	return func(d *Direct) {
		d.http = hc
	}
}

// WithDirectRetry overrides the retry policy.
func WithDirectRetry(cfg resilience.RetryConfig) DirectOption {
	return func(d *Direct) {
		d.retry = cfg
	}
}

// Direct queries the free public APIs of Greenhouse and Lever boards and
// RemoteOK, matching postings against the query locally.
type Direct struct {
	boards        map[model.Domain][]string
	http          *http.Client
	limiter       *rate.Limiter
	retry         resilience.RetryConfig
	breaker       *resilience.CircuitBreaker
	greenhouseURL string
	leverURL      string
	remoteOKURL   string
}

// NewDirect creates the direct tier. boards lists the company board tokens
// queried for greenhouse and lever.
func NewDirect(boards map[model.Domain][]string, breaker *resilience.CircuitBreaker, opts ...DirectOption) *Direct {
	cp := make(map[model.Domain][]string, len(boards))
	for d, b := range boards {
		if len(b) > 0 {
			cp[d] = append([]string(nil), b...)
		}
	}
	d := &Direct{
		boards:        cp,
		http:          &http.Client{Timeout: 30 * time.Second},
		limiter:       rate.NewLimiter(5, 5),
		retry:         resilience.DefaultRetryConfig(),
		breaker:       breaker,
		greenhouseURL: GreenhouseBaseURL,
		leverURL:      LeverBaseURL,
		remoteOKURL:   RemoteOKURL,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.retry.OnRetry == nil {
		d.retry.OnRetry = resilience.RetryLogger("direct", "get")
	}
	return d
}

// Name implements acquire.Fetcher.
func (d *Direct) Name() string { return string(model.TierDirect) }

// Supports implements acquire.Fetcher.
func (d *Direct) Supports(domain model.Domain) bool {
	switch domain {
	case model.DomainRemoteOK:
		return true
	case model.DomainGreenhouse, model.DomainLever:
		return len(d.boards[domain]) > 0
	}
	return false
}

// Fetch implements acquire.Fetcher.
func (d *Direct) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	return guard(ctx, d.breaker, func(ctx context.Context) ([]model.Record, error) {
		var (
			records []model.Record
			err     error
		)
		switch domain {
		case model.DomainGreenhouse:
			records, err = d.eachBoard(ctx, domain, d.greenhouse)
		case model.DomainLever:
			records, err = d.eachBoard(ctx, domain, d.lever)
		case model.DomainRemoteOK:
			records, err = d.remoteOK(ctx)
		default:
			return nil, eris.Errorf("fetch: direct tier does not serve %s", domain)
		}
		if err != nil {
			return nil, err
		}

		matched := records[:0]
		for _, r := range records {
			if matchesQuery(r, query) && matchesKeyword(r, filters) && matchesLocation(r, filters) {
				matched = append(matched, r)
			}
		}
		return limit(matched, count), nil
	})
}

// eachBoard fetches every configured board. A failing board is skipped
// unless all of them fail.
func (d *Direct) eachBoard(ctx context.Context, domain model.Domain, fetch func(context.Context, string) ([]model.Record, error)) ([]model.Record, error) {
	var (
		all     []model.Record
		lastErr error
		ok      int
	)
	for _, board := range d.boards[domain] {
		recs, err := fetch(ctx, board)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			zap.L().Warn("fetch: board request failed",
				zap.String("domain", string(domain)),
				zap.String("board", board),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		ok++
		all = append(all, recs...)
	}
	if ok == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

type greenhouseJobs struct {
	Jobs []struct {
		Title       string `json:"title"`
		AbsoluteURL string `json:"absolute_url"`
		UpdatedAt   string `json:"updated_at"`
		CompanyName string `json:"company_name"`
		Location    struct {
			Name string `json:"name"`
		} `json:"location"`
	} `json:"jobs"`
}

func (d *Direct) greenhouse(ctx context.Context, board string) ([]model.Record, error) {
	var resp greenhouseJobs
	if err := d.getJSON(ctx, d.greenhouseURL+"/"+url.PathEscape(board)+"/jobs", &resp); err != nil {
		return nil, eris.Wrapf(err, "fetch: greenhouse board %s", board)
	}
	records := make([]model.Record, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		records = append(records, model.NewRecord(map[string]any{
			model.FieldTitle:        j.Title,
			model.FieldOrganization: first(j.CompanyName, board),
			model.FieldLocation:     j.Location.Name,
			model.FieldURL:          j.AbsoluteURL,
			model.FieldPostedAt:     j.UpdatedAt,
		}))
	}
	return records, nil
}

type leverPosting struct {
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	CreatedAt        int64  `json:"createdAt"`
	DescriptionPlain string `json:"descriptionPlain"`
	Categories       struct {
		Location   string `json:"location"`
		Commitment string `json:"commitment"`
		Team       string `json:"team"`
	} `json:"categories"`
}

func (d *Direct) lever(ctx context.Context, company string) ([]model.Record, error) {
	var postings []leverPosting
	if err := d.getJSON(ctx, d.leverURL+"/"+url.PathEscape(company)+"?mode=json", &postings); err != nil {
		return nil, eris.Wrapf(err, "fetch: lever company %s", company)
	}
	records := make([]model.Record, 0, len(postings))
	for _, p := range postings {
		fields := map[string]any{
			model.FieldTitle:        p.Text,
			model.FieldOrganization: company,
			model.FieldLocation:     p.Categories.Location,
			model.FieldURL:          p.HostedURL,
		}
		if p.CreatedAt > 0 {
			fields[model.FieldPostedAt] = time.UnixMilli(p.CreatedAt).UTC().Format(time.RFC3339)
		}
		setIf(fields, model.FieldJobType, p.Categories.Commitment)
		setIf(fields, model.FieldDescription, p.DescriptionPlain)
		records = append(records, model.NewRecord(fields))
	}
	return records, nil
}

type remoteOKJob struct {
	ID          json.RawMessage `json:"id"`
	Position    string          `json:"position"`
	Company     string          `json:"company"`
	Location    string          `json:"location"`
	URL         string          `json:"url"`
	Date        string          `json:"date"`
	Tags        []string        `json:"tags"`
	Description string          `json:"description"`
}

func (d *Direct) remoteOK(ctx context.Context) ([]model.Record, error) {
	var jobs []remoteOKJob
	if err := d.getJSON(ctx, d.remoteOKURL, &jobs); err != nil {
		return nil, eris.Wrap(err, "fetch: remoteok")
	}
	records := make([]model.Record, 0, len(jobs))
	for _, j := range jobs {
		// The feed starts with a legal notice that has no position.
		if j.Position == "" {
			continue
		}
		fields := map[string]any{
			model.FieldTitle:        j.Position,
			model.FieldOrganization: j.Company,
			model.FieldLocation:     first(j.Location, "Remote"),
			model.FieldURL:          j.URL,
		}
		setIf(fields, model.FieldPostedAt, j.Date)
		if len(j.Tags) > 0 {
			fields[model.FieldSkills] = j.Tags
		}
		records = append(records, model.NewRecord(fields))
	}
	return records, nil
}

func (d *Direct) getJSON(ctx context.Context, reqURL string, out any) error {
	body, err := resilience.DoVal(ctx, d.retry, func(ctx context.Context) ([]byte, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "jobscout/1.0")

		resp, err := d.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "read response body")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.NewStatusError("direct", resp.StatusCode, data)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

// matchesQuery requires every query term to appear in the title, skills or
// description.
func matchesQuery(r model.Record, query string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}
	text := strings.ToLower(r.Field(model.FieldTitle) + " " + r.Field(model.FieldSkills) + " " + r.Field(model.FieldDescription))
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func matchesLocation(r model.Record, filters map[string]string) bool {
	loc := strings.ToLower(strings.TrimSpace(filters["location"]))
	if loc == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Field(model.FieldLocation)), loc)
}
