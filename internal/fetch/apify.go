package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/pkg/apify"
)

const defaultUpworkLimit = 50

// Apify runs a per-domain scraping actor and normalizes its dataset.
type Apify struct {
	client  apify.Client
	actors  map[model.Domain]string
	breaker *resilience.CircuitBreaker
	poll    []apify.PollOption
}

// NewApify creates the apify tier. Domains without an actor are not
// supported.
func NewApify(client apify.Client, actors map[model.Domain]string, breaker *resilience.CircuitBreaker, poll ...apify.PollOption) *Apify {
	cp := make(map[model.Domain]string, len(actors))
	for d, a := range actors {
		if a != "" {
			cp[d] = a
		}
	}
	return &Apify{client: client, actors: cp, breaker: breaker, poll: poll}
}

// Name implements acquire.Fetcher.
func (a *Apify) Name() string { return string(model.TierApify) }

// Supports implements acquire.Fetcher.
func (a *Apify) Supports(domain model.Domain) bool {
	_, ok := a.actors[domain]
	return ok
}

// Fetch implements acquire.Fetcher.
func (a *Apify) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	actor, ok := a.actors[domain]
	if !ok {
		return nil, eris.Errorf("fetch: no apify actor for domain %s", domain)
	}

	return guard(ctx, a.breaker, func(ctx context.Context) ([]model.Record, error) {
		input := actorInput(domain, query, count, filters)
		items, err := apify.RunActor(ctx, a.client, actor, input, 0, a.poll...)
		if err != nil {
			return nil, err
		}

		records := make([]model.Record, 0, len(items))
		for _, item := range items {
			rec, keep, err := normalizeItem(domain, item, filters)
			if err != nil {
				zap.L().Debug("fetch: skipping malformed apify item",
					zap.String("domain", string(domain)),
					zap.Error(err),
				)
				continue
			}
			if keep {
				records = append(records, rec)
			}
		}
		records = filterKeyword(records, filters)

		zap.L().Debug("fetch: apify dataset normalized",
			zap.String("domain", string(domain)),
			zap.String("actor", actor),
			zap.Int("items", len(items)),
			zap.Int("records", len(records)),
		)
		return limit(records, count), nil
	})
}

// actorInput builds the input document for the domain's actor.
func actorInput(domain model.Domain, query string, count int, filters map[string]string) map[string]any {
	input := map[string]any{}
	switch domain {
	case model.DomainUpwork:
		// Upwork results are post-filtered, so ask for more than needed.
		n := count * 2
		if n == 0 {
			n = defaultUpworkLimit
		}
		input["limit"] = n
		if query != "" {
			input["query"] = query
		}
		if v := filters["from_date"]; v != "" {
			input["fromDate"] = v
		}
		if v := filters["to_date"]; v != "" {
			input["toDate"] = v
		}
	case model.DomainLinkedIn:
		input["title"] = query
		input["rows"] = count
		if v := filters["location"]; v != "" {
			input["location"] = v
		}
	case model.DomainIndeed:
		input["position"] = query
		input["maxItems"] = count
		input["country"] = "US"
		if v := filters["location"]; v != "" {
			input["location"] = v
		}
		if v := filters["country"]; v != "" {
			input["country"] = v
		}
	default:
		input["query"] = query
		input["limit"] = count
	}
	return input
}

func normalizeItem(domain model.Domain, item map[string]any, filters map[string]string) (model.Record, bool, error) {
	switch domain {
	case model.DomainUpwork:
		var job upworkJob
		if err := decodeItem(item, &job); err != nil {
			return model.Record{}, false, err
		}
		if !job.matches(filters) {
			return model.Record{}, false, nil
		}
		return job.record(), true, nil
	case model.DomainLinkedIn:
		return model.NewRecord(map[string]any{
			model.FieldTitle:        str(item, "title"),
			model.FieldOrganization: str(item, "companyName"),
			model.FieldLocation:     str(item, "location"),
			model.FieldURL:          first(str(item, "jobUrl"), str(item, "link")),
			model.FieldPostedAt:     first(str(item, "publishedAt"), str(item, "postedTime")),
			model.FieldDescription:  str(item, "description"),
			model.FieldJobType:      str(item, "contractType"),
		}), str(item, "title") != "", nil
	case model.DomainIndeed:
		return model.NewRecord(map[string]any{
			model.FieldTitle:        str(item, "positionName"),
			model.FieldOrganization: str(item, "company"),
			model.FieldLocation:     str(item, "location"),
			model.FieldURL:          first(str(item, "url"), str(item, "externalApplyLink")),
			model.FieldPostedAt:     first(str(item, "postingDateParsed"), str(item, "postedAt")),
			model.FieldDescription:  str(item, "description"),
			model.FieldBudget:       str(item, "salary"),
		}), str(item, "positionName") != "", nil
	default:
		return model.NewRecord(map[string]any{
			model.FieldTitle:        str(item, "title"),
			model.FieldOrganization: first(str(item, "company"), str(item, "companyName")),
			model.FieldLocation:     str(item, "location"),
			model.FieldURL:          str(item, "url"),
		}), str(item, "title") != "", nil
	}
}

// upworkJob is the dataset item shape of the Upwork actor.
type upworkJob struct {
	UID          string   `json:"uid"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ExternalLink string   `json:"externalLink"`
	Category     string   `json:"category"`
	Skills       []string `json:"skills"`
	CreatedAt    string   `json:"createdAt"`
	Budget       struct {
		FixedBudget float64 `json:"fixedBudget"`
		HourlyRate  struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"hourlyRate"`
	} `json:"budget"`
	Vendor struct {
		ExperienceLevel string `json:"experienceLevel"`
	} `json:"vendor"`
	Client struct {
		CountryCode           string `json:"countryCode"`
		PaymentMethodVerified bool   `json:"paymentMethodVerified"`
		Stats                 struct {
			TotalSpent float64 `json:"totalSpent"`
			TotalHires int     `json:"totalHires"`
		} `json:"stats"`
	} `json:"client"`
}

func (j upworkJob) hourly() (lo, hi float64) {
	lo = j.Budget.HourlyRate.Min
	hi = j.Budget.HourlyRate.Max
	if hi == 0 {
		hi = lo
	}
	return lo, hi
}

func (j upworkJob) budget() (text, kind string) {
	if j.Budget.FixedBudget > 0 {
		return "$" + formatAmount(j.Budget.FixedBudget) + " fixed", "fixed"
	}
	if lo, hi := j.hourly(); hi > 0 {
		return fmt.Sprintf("$%s-$%s/hr", formatAmount(lo), formatAmount(hi)), "hourly"
	}
	return "Not specified", ""
}

// matches applies the post-scrape budget, experience and client filters.
func (j upworkJob) matches(filters map[string]string) bool {
	minHourly, maxHourly := num(filters, "min_hourly"), num(filters, "max_hourly")
	if minHourly > 0 || maxHourly > 0 {
		lo, hi := j.hourly()
		switch {
		case hi == 0 && j.Budget.FixedBudget > 0:
			// fixed-price job, hourly bounds do not apply
		case hi == 0:
			return false
		case minHourly > 0 && hi < minHourly:
			return false
		case maxHourly > 0 && lo > maxHourly:
			return false
		}
	}

	minFixed, maxFixed := num(filters, "min_fixed"), num(filters, "max_fixed")
	if minFixed > 0 || maxFixed > 0 {
		fixed := j.Budget.FixedBudget
		if fixed == 0 {
			return false
		}
		if (minFixed > 0 && fixed < minFixed) || (maxFixed > 0 && fixed > maxFixed) {
			return false
		}
	}

	if levels := filters["experience"]; levels != "" {
		level := strings.ToUpper(j.Vendor.ExperienceLevel)
		ok := false
		for _, l := range strings.Split(levels, ",") {
			l = strings.ToUpper(strings.TrimSpace(l))
			if l != "" && (strings.Contains(level, l) || (level != "" && strings.Contains(l, level))) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if v, _ := strconv.ParseBool(filters["verified_payment"]); v && !j.Client.PaymentMethodVerified {
		return false
	}
	if floor := num(filters, "min_client_spent"); floor > 0 && j.Client.Stats.TotalSpent < floor {
		return false
	}
	if floor := num(filters, "min_client_hires"); floor > 0 && float64(j.Client.Stats.TotalHires) < floor {
		return false
	}
	return true
}

func (j upworkJob) record() model.Record {
	budget, kind := j.budget()
	fields := map[string]any{
		model.FieldTitle:        j.Title,
		model.FieldOrganization: "",
		model.FieldLocation:     j.Client.CountryCode,
		model.FieldURL:          j.ExternalLink,
		model.FieldBudget:       budget,
	}
	setIf(fields, model.FieldDescription, j.Description)
	setIf(fields, model.FieldPostedAt, j.CreatedAt)
	setIf(fields, model.FieldJobType, kind)
	setIf(fields, "category", j.Category)
	setIf(fields, "experience_level", j.Vendor.ExperienceLevel)
	setIf(fields, model.FieldExternalID, j.UID)
	if len(j.Skills) > 0 {
		fields[model.FieldSkills] = j.Skills
	}
	return model.NewRecord(fields)
}

func decodeItem(item map[string]any, out any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return eris.Wrap(err, "fetch: encode dataset item")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "fetch: decode dataset item")
	}
	return nil
}

func str(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func num(filters map[string]string, key string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(filters[key]), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
