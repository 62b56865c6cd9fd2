package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/resilience"
)

func newTestClient(url string) Client {
	return NewClient("apify-token",
		WithBaseURL(url),
		WithRateLimit(0),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)
}

// fakeApify serves one actor whose run succeeds after polls GETs.
func fakeApify(t *testing.T, polls int32, finalStatus string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var gets atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /acts/{actor}/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upwork-vibe~upwork-job-scraper", r.PathValue("actor"))
		assert.Equal(t, "Bearer apify-token", r.Header.Get("Authorization"))
		var input map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.EqualValues(t, 20, input["limit"])
		_, _ = w.Write([]byte(`{"data":{"id":"run-1","status":"RUNNING","defaultDatasetId":"ds-1"}}`))
	})
	mux.HandleFunc("GET /actor-runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "run-1", r.PathValue("id"))
		status := StatusRunning
		if gets.Add(1) > polls {
			status = finalStatus
		}
		_ = json.NewEncoder(w).Encode(runEnvelope{Data: Run{ID: "run-1", Status: status, DefaultDatasetID: "ds-1"}})
	})
	mux.HandleFunc("GET /datasets/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ds-1", r.PathValue("id"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "true", r.URL.Query().Get("clean"))
		_, _ = w.Write([]byte(`[{"title":"Go developer","externalLink":"https://upwork.com/jobs/1"},{"title":"Rust dev"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &gets
}

func TestRunActor_Succeeds(t *testing.T) {
	t.Parallel()
	srv, gets := fakeApify(t, 2, StatusSucceeded)

	items, err := RunActor(context.Background(), newTestClient(srv.URL),
		"upwork-vibe~upwork-job-scraper", map[string]any{"limit": 20}, 20,
		WithPollInterval(time.Millisecond), WithPollCap(2*time.Millisecond))

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Go developer", items[0]["title"])
	assert.Equal(t, int32(3), gets.Load())
}

func TestRunActor_FailedRun(t *testing.T) {
	t.Parallel()
	for _, status := range []string{StatusFailed, StatusAborted, StatusTimedOut} {
		srv, _ := fakeApify(t, 0, status)
		_, err := RunActor(context.Background(), newTestClient(srv.URL),
			"upwork-vibe~upwork-job-scraper", map[string]any{"limit": 20}, 20,
			WithPollInterval(time.Millisecond))
		require.Error(t, err)
		assert.Contains(t, err.Error(), status)
	}
}

func TestWaitForRun_ContextCanceled(t *testing.T) {
	t.Parallel()
	srv, _ := fakeApify(t, 1000, StatusSucceeded)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WaitForRun(ctx, newTestClient(srv.URL), "run-1", WithPollInterval(5*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartRun_AuthError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"token-not-valid"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).StartRun(context.Background(), "actor", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, resilience.KindAuth, resilience.Classify(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDatasetItems_Malformed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).DatasetItems(context.Background(), "ds", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode dataset items")
}

func TestRun_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, (&Run{Status: StatusRunning}).Terminal())
	assert.False(t, (&Run{Status: StatusReady}).Terminal())
	assert.True(t, (&Run{Status: StatusSucceeded}).Terminal())
	assert.True(t, (&Run{Status: StatusTimedOut}).Terminal())
}
