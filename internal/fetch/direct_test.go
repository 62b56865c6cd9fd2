package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

func newBoardsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /greenhouse/acme/jobs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jobs":[
			{"title":"Senior Go Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/1","updated_at":"2026-02-01T00:00:00Z","company_name":"Acme Corp","location":{"name":"Remote - US"}},
			{"title":"Office Manager","absolute_url":"https://boards.greenhouse.io/acme/jobs/2","location":{"name":"NYC"}}
		]}`))
	})
	mux.HandleFunc("GET /greenhouse/broken/jobs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /lever/globex", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("mode"))
		_, _ = w.Write([]byte(`[
			{"text":"Go Engineer, Payments","hostedUrl":"https://jobs.lever.co/globex/1","createdAt":1767225600000,"categories":{"location":"London","commitment":"Full-time"}},
			{"text":"Recruiter","hostedUrl":"https://jobs.lever.co/globex/2","categories":{"location":"London"}}
		]`))
	})
	mux.HandleFunc("GET /remoteok", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[
			{"last_updated":1767225600,"legal":"API terms"},
			{"id":"101","position":"Golang Developer","company":"Initech","location":"","url":"https://remoteok.com/remote-jobs/101","tags":["go","golang"],"date":"2026-01-01T00:00:00+00:00"},
			{"id":"102","position":"Marketing Lead","company":"Initech","url":"https://remoteok.com/remote-jobs/102"}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDirect(srv *httptest.Server, boards map[model.Domain][]string) *Direct {
	return NewDirect(boards, nil,
		WithDirectBaseURLs(srv.URL+"/greenhouse", srv.URL+"/lever", srv.URL+"/remoteok"),
		WithDirectRetry(resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)
}

func TestDirect_Supports(t *testing.T) {
	t.Parallel()
	d := NewDirect(map[model.Domain][]string{model.DomainGreenhouse: {"acme"}}, nil)
	assert.Equal(t, "direct", d.Name())
	assert.True(t, d.Supports(model.DomainGreenhouse))
	assert.False(t, d.Supports(model.DomainLever))
	assert.True(t, d.Supports(model.DomainRemoteOK))
	assert.False(t, d.Supports(model.DomainUpwork))
}

func TestDirect_Greenhouse(t *testing.T) {
	t.Parallel()
	srv := newBoardsServer(t)
	d := newTestDirect(srv, map[model.Domain][]string{model.DomainGreenhouse: {"broken", "acme"}})

	records, err := d.Fetch(context.Background(), model.DomainGreenhouse, "go engineer", 10, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme Corp", records[0].Field(model.FieldOrganization))
	assert.Equal(t, "Remote - US", records[0].Field(model.FieldLocation))
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/1", records[0].Field(model.FieldURL))
}

func TestDirect_GreenhouseAllBoardsFail(t *testing.T) {
	t.Parallel()
	srv := newBoardsServer(t)
	d := newTestDirect(srv, map[model.Domain][]string{model.DomainGreenhouse: {"broken"}})

	_, err := d.Fetch(context.Background(), model.DomainGreenhouse, "go", 10, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestDirect_Lever(t *testing.T) {
	t.Parallel()
	srv := newBoardsServer(t)
	d := newTestDirect(srv, map[model.Domain][]string{model.DomainLever: {"globex"}})

	records, err := d.Fetch(context.Background(), model.DomainLever, "go", 0, map[string]string{"location": "london"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "globex", records[0].Field(model.FieldOrganization))
	assert.Equal(t, "Full-time", records[0].Field(model.FieldJobType))
	assert.Equal(t, "2026-01-01T00:00:00Z", records[0].Field(model.FieldPostedAt))
}

func TestDirect_RemoteOK(t *testing.T) {
	t.Parallel()
	srv := newBoardsServer(t)
	d := newTestDirect(srv, nil)

	records, err := d.Fetch(context.Background(), model.DomainRemoteOK, "golang", 5, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Golang Developer", records[0].Field(model.FieldTitle))
	assert.Equal(t, "Remote", records[0].Field(model.FieldLocation))
	assert.Equal(t, "go, golang", records[0].Field(model.FieldSkills))
}

func TestDirect_EmptyQueryReturnsAll(t *testing.T) {
	t.Parallel()
	srv := newBoardsServer(t)
	d := newTestDirect(srv, nil)

	records, err := d.Fetch(context.Background(), model.DomainRemoteOK, "", 0, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDirect_UnsupportedDomain(t *testing.T) {
	t.Parallel()
	d := NewDirect(nil, nil)
	_, err := d.Fetch(context.Background(), model.DomainUpwork, "go", 5, nil)
	require.Error(t, err)
}

func TestMatchesQuery(t *testing.T) {
	t.Parallel()
	r := model.NewRecord(map[string]any{model.FieldTitle: "Senior Go Engineer", model.FieldSkills: []string{"kubernetes"}})
	assert.True(t, matchesQuery(r, "go engineer"))
	assert.True(t, matchesQuery(r, "Kubernetes"))
	assert.False(t, matchesQuery(r, "rust engineer"))
	assert.True(t, matchesQuery(r, "  "))
}
