package notion

import (
	"time"

	"github.com/jomei/notionapi"
)

// Property names of the postings database.
const (
	PropTitle        = "Name"
	PropOrganization = "Organization"
	PropLocation     = "Location"
	PropURL          = "URL"
	PropDomain       = "Domain"
	PropTier         = "Tier"
	PropRunID        = "Run"
	PropFetchedAt    = "Fetched"
)

// JobPage is one posting row in the Notion database.
type JobPage struct {
	Title        string
	Organization string
	Location     string
	URL          string
	Domain       string
	Tier         string
	RunID        string
	FetchedAt    time.Time
}

// NewJobPageRequest builds the create request for p in database dbID.
func NewJobPageRequest(dbID string, p JobPage) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		PropTitle: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(p.Title),
		},
		PropOrganization: textProperty(p.Organization),
		PropLocation:     textProperty(p.Location),
		PropRunID:        textProperty(p.RunID),
		PropDomain: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: p.Domain},
		},
		PropTier: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: p.Tier},
		},
	}
	if p.URL != "" {
		props[PropURL] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: p.URL}
	}
	if !p.FetchedAt.IsZero() {
		d := notionapi.Date(p.FetchedAt)
		props[PropFetchedAt] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	}
}

func textProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(s),
	}
}

// richText truncates to Notion's 2000 character limit per text object.
func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > 2000 {
		s = string(r[:2000])
	}
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}
