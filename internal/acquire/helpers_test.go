package acquire

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/internal/routing"
)

// stubFetcher returns n records per call, or err, and counts calls.
type stubFetcher struct {
	name     string
	n        int
	err      error
	skip     map[model.Domain]bool
	calls    atomic.Int32
	fetchFn  func(ctx context.Context, domain model.Domain) ([]model.Record, error)
	lastSeen atomic.Value // map[string]string
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Supports(d model.Domain) bool { return !s.skip[d] }

func (s *stubFetcher) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	s.calls.Add(1)
	if filters != nil {
		s.lastSeen.Store(filters)
	}
	if s.fetchFn != nil {
		return s.fetchFn(ctx, domain)
	}
	if s.err != nil {
		return nil, s.err
	}
	return makeRecords(s.name, s.n), nil
}

func makeRecords(prefix string, n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.NewRecord(map[string]any{
			model.FieldTitle:        fmt.Sprintf("%s job %d", prefix, i),
			model.FieldOrganization: "acme",
			model.FieldLocation:     "remote",
		})
	}
	return out
}

func newTable(t *testing.T, chains map[model.Domain][]model.TierID) *routing.Table {
	t.Helper()
	tbl, err := routing.New(chains, "fallback")
	require.NoError(t, err)
	return tbl
}

func newController(t *testing.T, chains map[model.Domain][]model.TierID, timeout time.Duration, fetchers ...Fetcher) *Controller {
	t.Helper()
	return NewController(newTable(t, chains), NewRegistry(fetchers...), NewExecutor(timeout, nil), 0.5)
}

// memStore is an in-memory RunStore.
type memStore struct {
	mu      sync.Mutex
	runs    map[string]*model.Run
	retries map[string]resilience.RetryEntry
	failNew error
}

func newMemStore() *memStore {
	return &memStore{
		runs:    make(map[string]*model.Run),
		retries: make(map[string]resilience.RetryEntry),
	}
}

func (m *memStore) CreateRun(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNew != nil {
		return m.failNew
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memStore) CompleteRun(_ context.Context, id string, report *model.RunReport, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	r.Status = model.RunStatusComplete
	r.Report = report
	r.Location = location
	r.Error = ""
	return nil
}

func (m *memStore) FailRun(_ context.Context, id string, report *model.RunReport, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	r.Status = model.RunStatusFailed
	r.Report = report
	r.Error = errMsg
	return nil
}

func (m *memStore) EnqueueRetry(_ context.Context, e resilience.RetryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[e.ID] = e
	return nil
}

func (m *memStore) ListRetries(_ context.Context, f resilience.RetryFilter) ([]resilience.RetryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []resilience.RetryEntry
	for _, e := range m.retries {
		if !e.CanRetry() {
			continue
		}
		if !f.DueBefore.IsZero() && e.NextRetryAt.After(f.DueBefore) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdateRetry(_ context.Context, e resilience.RetryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[e.ID] = e
	return nil
}

func (m *memStore) RemoveRetry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retries, id)
	return nil
}

func (m *memStore) run(id string) model.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}
