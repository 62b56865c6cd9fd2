package sink

import (
	"context"
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobscout/internal/dedupe"
	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/pkg/notion"
)

// defaultNotionWorkers bounds concurrent page creations; the client's
// limiter still caps the request rate.
const defaultNotionWorkers = 3

// NotionSink creates one database page per record, skipping URLs the
// database already holds. Records without a URL are matched by identity
// against pages the same run wrote earlier, so persisting a run twice does
// not duplicate them.
type NotionSink struct {
	client  notion.Client
	dbID    string
	workers int
}

// NewNotion creates a NotionSink for database dbID.
func NewNotion(client notion.Client, dbID string) *NotionSink {
	return &NotionSink{client: client, dbID: dbID, workers: defaultNotionWorkers}
}

// Persist implements Sink.
func (s *NotionSink) Persist(ctx context.Context, report *model.RunReport, records []model.Record) (string, error) {
	if s.dbID == "" {
		return "", eris.New("sink: notion database id is required")
	}

	existing, err := notion.ExistingURLs(ctx, s.client, s.dbID, notion.PropURL)
	if err != nil {
		return "", eris.Wrap(err, "sink: load existing notion urls")
	}

	runID := ""
	if report != nil {
		runID = report.RunID
	}

	written, err := s.writtenWithoutURL(ctx, runID, records)
	if err != nil {
		return "", err
	}

	var pages []notion.JobPage
	for _, r := range records {
		u := r.Field(model.FieldURL)
		if u != "" && existing[u] {
			continue
		}
		if u == "" {
			key := pageKey(r.Field(model.FieldTitle), r.Field(model.FieldOrganization), r.Field(model.FieldLocation))
			if written[key] > 0 {
				written[key]--
				continue
			}
		}
		pages = append(pages, notion.JobPage{
			Title:        r.Field(model.FieldTitle),
			Organization: r.Field(model.FieldOrganization),
			Location:     r.Field(model.FieldLocation),
			URL:          u,
			Domain:       string(r.Provenance.Domain),
			Tier:         string(r.Provenance.Tier),
			RunID:        runID,
			FetchedAt:    r.Provenance.FetchedAt,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range pages {
		g.Go(func() error {
			if _, err := s.client.CreatePage(gctx, notion.NewJobPageRequest(s.dbID, p)); err != nil {
				return eris.Wrapf(err, "sink: create notion page %q", p.Title)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	zap.L().Info("sink: notion pages created",
		zap.String("database", s.dbID),
		zap.Int("created", len(pages)),
		zap.Int("skipped", len(records)-len(pages)),
	)
	return fmt.Sprintf("notion://%s", s.dbID), nil
}

// writtenWithoutURL counts the URL-less pages runID already holds, by
// identity key. It skips the query when no record needs it.
func (s *NotionSink) writtenWithoutURL(ctx context.Context, runID string, records []model.Record) (map[string]int, error) {
	if runID == "" || !slices.ContainsFunc(records, func(r model.Record) bool { return r.Field(model.FieldURL) == "" }) {
		return nil, nil
	}
	pages, err := notion.RunPages(ctx, s.client, s.dbID, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sink: load notion pages of run %s", runID)
	}
	counts := make(map[string]int)
	for _, p := range pages {
		if p.URL == "" {
			counts[pageKey(p.Title, p.Organization, p.Location)]++
		}
	}
	return counts, nil
}

func pageKey(title, org, loc string) string {
	return dedupe.IdentityKey(model.NewRecord(map[string]any{
		model.FieldTitle:        title,
		model.FieldOrganization: org,
		model.FieldLocation:     loc,
	}))
}
