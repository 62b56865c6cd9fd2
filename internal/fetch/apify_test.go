package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/pkg/apify"
	apifymocks "github.com/sells-group/jobscout/pkg/apify/mocks"
)

const upworkActor = "upwork-vibe~upwork-job-scraper"

func upworkItems() []map[string]any {
	return []map[string]any{
		{
			"uid":          "1",
			"title":        "Build n8n automation",
			"description":  "Automate our CRM",
			"externalLink": "https://www.upwork.com/jobs/1",
			"createdAt":    "2026-01-10T12:00:00Z",
			"skills":       []any{"n8n", "zapier"},
			"budget":       map[string]any{"fixedBudget": 500},
			"vendor":       map[string]any{"experienceLevel": "EXPERT"},
			"client": map[string]any{
				"countryCode":           "US",
				"paymentMethodVerified": true,
				"stats":                 map[string]any{"totalSpent": 12000, "totalHires": 8},
			},
		},
		{
			"uid":          "2",
			"title":        "Go backend developer",
			"description":  "Hourly contract",
			"externalLink": "https://www.upwork.com/jobs/2",
			"budget":       map[string]any{"hourlyRate": map[string]any{"min": 40, "max": 60}},
			"vendor":       map[string]any{"experienceLevel": "INTERMEDIATE"},
			"client":       map[string]any{"countryCode": "DE"},
		},
		{
			"uid":   "3",
			"title": "Logo design",
		},
	}
}

func expectRun(m *apifymocks.MockClient, actor string, items []map[string]any) {
	m.On("StartRun", mock.Anything, actor, mock.Anything).
		Return(&apify.Run{ID: "run-1", Status: apify.StatusSucceeded, DefaultDatasetID: "ds-1"}, nil).Once()
	m.On("DatasetItems", mock.Anything, "ds-1", 0).Return(items, nil).Once()
}

func TestApify_Supports(t *testing.T) {
	t.Parallel()
	a := NewApify(apifymocks.NewMockClient(t), map[model.Domain]string{
		model.DomainUpwork: upworkActor,
		model.DomainIndeed: "",
	}, nil)

	assert.Equal(t, "apify", a.Name())
	assert.True(t, a.Supports(model.DomainUpwork))
	assert.False(t, a.Supports(model.DomainIndeed))
	assert.False(t, a.Supports(model.DomainLever))
}

func TestApify_FetchUpwork(t *testing.T) {
	t.Parallel()
	m := apifymocks.NewMockClient(t)
	expectRun(m, upworkActor, upworkItems())
	a := NewApify(m, map[model.Domain]string{model.DomainUpwork: upworkActor}, nil)

	records, err := a.Fetch(context.Background(), model.DomainUpwork, "automation", 10, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "Build n8n automation", first.Field(model.FieldTitle))
	assert.Equal(t, "https://www.upwork.com/jobs/1", first.Field(model.FieldURL))
	assert.Equal(t, "$500 fixed", first.Field(model.FieldBudget))
	assert.Equal(t, "fixed", first.Field(model.FieldJobType))
	assert.Equal(t, "US", first.Field(model.FieldLocation))
	assert.Equal(t, "n8n, zapier", first.Field(model.FieldSkills))
	assert.Equal(t, "2026-01-10T12:00:00Z", first.Field(model.FieldPostedAt))

	assert.Equal(t, "$40-$60/hr", records[1].Field(model.FieldBudget))
	assert.Equal(t, "Not specified", records[2].Field(model.FieldBudget))

	input := m.Calls[0].Arguments.Get(2).(map[string]any)
	assert.Equal(t, 20, input["limit"])
	assert.Equal(t, "automation", input["query"])
}

func TestApify_UpworkFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		filters map[string]string
		want    []string
	}{
		{name: "keyword", filters: map[string]string{"keyword": "AUTOMATE"}, want: []string{"1"}},
		{name: "min hourly keeps fixed", filters: map[string]string{"min_hourly": "50"}, want: []string{"1", "2"}},
		{name: "min hourly too high", filters: map[string]string{"min_hourly": "80"}, want: []string{"1"}},
		{name: "fixed range", filters: map[string]string{"min_fixed": "100", "max_fixed": "400"}, want: nil},
		{name: "experience", filters: map[string]string{"experience": "intermediate, entry"}, want: []string{"2"}},
		{name: "verified client", filters: map[string]string{"verified_payment": "true"}, want: []string{"1"}},
		{name: "client history", filters: map[string]string{"min_client_spent": "5000", "min_client_hires": "5"}, want: []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := apifymocks.NewMockClient(t)
			expectRun(m, upworkActor, upworkItems())
			a := NewApify(m, map[model.Domain]string{model.DomainUpwork: upworkActor}, nil)

			records, err := a.Fetch(context.Background(), model.DomainUpwork, "", 0, tt.filters)
			require.NoError(t, err)
			var ids []string
			for _, r := range records {
				ids = append(ids, r.Field("external_id"))
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestApify_FetchLinkedIn(t *testing.T) {
	t.Parallel()
	m := apifymocks.NewMockClient(t)
	expectRun(m, "bebity~linkedin-jobs-scraper", []map[string]any{
		{"title": "Platform Engineer", "companyName": "Globex", "location": "Berlin", "link": "https://linkedin.com/jobs/view/9"},
		{"companyName": "no title"},
	})
	a := NewApify(m, map[model.Domain]string{model.DomainLinkedIn: "bebity~linkedin-jobs-scraper"}, nil)

	records, err := a.Fetch(context.Background(), model.DomainLinkedIn, "platform engineer", 5, map[string]string{"location": "Berlin"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Globex", records[0].Field(model.FieldOrganization))
	assert.Equal(t, "https://linkedin.com/jobs/view/9", records[0].Field(model.FieldURL))

	input := m.Calls[0].Arguments.Get(2).(map[string]any)
	assert.Equal(t, "platform engineer", input["title"])
	assert.Equal(t, 5, input["rows"])
	assert.Equal(t, "Berlin", input["location"])
}

func TestApify_FetchIndeedTrimsToCount(t *testing.T) {
	t.Parallel()
	m := apifymocks.NewMockClient(t)
	expectRun(m, "misceres~indeed-scraper", []map[string]any{
		{"positionName": "Analyst", "company": "Initech", "location": "Austin, TX", "url": "https://indeed.com/1", "salary": "$80k"},
		{"positionName": "Analyst II", "company": "Initech", "url": "https://indeed.com/2"},
	})
	a := NewApify(m, map[model.Domain]string{model.DomainIndeed: "misceres~indeed-scraper"}, nil)

	records, err := a.Fetch(context.Background(), model.DomainIndeed, "analyst", 1, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "$80k", records[0].Field(model.FieldBudget))
}

func TestApify_StartError(t *testing.T) {
	t.Parallel()
	m := apifymocks.NewMockClient(t)
	m.On("StartRun", mock.Anything, upworkActor, mock.Anything).Return(nil, errors.New("quota exceeded"))
	a := NewApify(m, map[model.Domain]string{model.DomainUpwork: upworkActor}, nil)

	_, err := a.Fetch(context.Background(), model.DomainUpwork, "q", 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestApify_UnsupportedDomain(t *testing.T) {
	t.Parallel()
	a := NewApify(apifymocks.NewMockClient(t), nil, nil)
	_, err := a.Fetch(context.Background(), model.DomainLever, "q", 5, nil)
	require.Error(t, err)
}
