package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database, following cursors.
func QueryAll(ctx context.Context, c Client, dbID string, filter notionapi.Filter) ([]notionapi.Page, error) {
	var all []notionapi.Page
	req := &notionapi.DatabaseQueryRequest{Filter: filter, PageSize: 100}
	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		req = &notionapi.DatabaseQueryRequest{
			Filter:      filter,
			PageSize:    100,
			StartCursor: resp.NextCursor,
		}
	}
}

// ExistingURLs returns the set of values held in the url property of every
// page in the database. Empty values are skipped.
func ExistingURLs(ctx context.Context, c Client, dbID, property string) (map[string]bool, error) {
	pages, err := QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]bool, len(pages))
	for _, p := range pages {
		prop, ok := p.Properties[property]
		if !ok {
			continue
		}
		var u string
		switch v := prop.(type) {
		case *notionapi.URLProperty:
			u = v.URL
		case notionapi.URLProperty:
			u = v.URL
		}
		if u = strings.TrimSpace(u); u != "" {
			urls[u] = true
		}
	}
	return urls, nil
}

// RunPages returns the postings a run already wrote, read back from the
// title, organization, location and url properties.
func RunPages(ctx context.Context, c Client, dbID, runID string) ([]JobPage, error) {
	pages, err := QueryAll(ctx, c, dbID, notionapi.PropertyFilter{
		Property: PropRunID,
		RichText: &notionapi.TextFilterCondition{Equals: runID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]JobPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, JobPage{
			Title:        propText(p.Properties[PropTitle]),
			Organization: propText(p.Properties[PropOrganization]),
			Location:     propText(p.Properties[PropLocation]),
			URL:          strings.TrimSpace(propText(p.Properties[PropURL])),
			RunID:        runID,
		})
	}
	return out, nil
}

func propText(prop notionapi.Property) string {
	switch v := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.URLProperty:
		return v.URL
	case notionapi.URLProperty:
		return v.URL
	}
	return ""
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return b.String()
}
