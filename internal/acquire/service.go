package acquire

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/dedupe"
	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
)

// Sink persists the deduplicated records of a run and returns where they
// were stored. Sinks do not retry.
type Sink interface {
	Persist(ctx context.Context, report *model.RunReport, records []model.Record) (string, error)
}

// RunStore records run history and the retry queue of exhausted domains.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, id string, report *model.RunReport, location string) error
	FailRun(ctx context.Context, id string, report *model.RunReport, errMsg string) error
	EnqueueRetry(ctx context.Context, entry resilience.RetryEntry) error
	ListRetries(ctx context.Context, filter resilience.RetryFilter) ([]resilience.RetryEntry, error)
	UpdateRetry(ctx context.Context, entry resilience.RetryEntry) error
	RemoveRetry(ctx context.Context, id string) error
}

// Result is everything one invocation produced. It survives a sink failure
// so persistence can be retried without acquiring again.
type Result struct {
	RunID    string           `json:"run_id"`
	Report   *model.RunReport `json:"report"`
	Records  []model.Record   `json:"records"`
	Dedupe   dedupe.Stats     `json:"dedupe"`
	Location string           `json:"location,omitempty"`
}

// RetrySummary reports a pass over the retry queue.
type RetrySummary struct {
	Attempted   int       `json:"attempted"`
	Recovered   int       `json:"recovered"`
	Rescheduled int       `json:"rescheduled"`
	Results     []*Result `json:"results,omitempty"`
}

// Service is the invocation surface: orchestrate, dedupe, then persist.
type Service struct {
	orch     *Orchestrator
	sink     Sink
	store    RunStore
	retryMax int
	retryCfg resilience.RetryConfig
	newID    func() string
	nowFunc  func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSink sets where results are persisted.
func WithSink(s Sink) ServiceOption {
	return func(svc *Service) { svc.sink = s }
}

// WithRunStore enables run history and the retry queue.
func WithRunStore(st RunStore) ServiceOption {
	return func(svc *Service) { svc.store = st }
}

// WithRetryPolicy parks exhausted domains for up to maxRetries later
// attempts, spaced by cfg's backoff. maxRetries <= 0 disables the queue.
func WithRetryPolicy(maxRetries int, cfg resilience.RetryConfig) ServiceOption {
	return func(svc *Service) {
		svc.retryMax = maxRetries
		svc.retryCfg = cfg
	}
}

// NewService creates a Service around orch.
func NewService(orch *Orchestrator, opts ...ServiceOption) *Service {
	s := &Service{
		orch:     orch,
		retryCfg: resilience.DefaultRetryConfig(),
		newID:    uuid.NewString,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks an invocation without running it.
func (s *Service) Validate(inv model.Invocation) error {
	if len(inv.Domains) == 0 {
		return ErrNoDomains
	}
	seen := make(map[model.Domain]bool, len(inv.Domains))
	for _, d := range inv.Domains {
		if seen[d] {
			return eris.Wrapf(ErrDuplicateDomain, "acquire: domain %q", d)
		}
		seen[d] = true
	}
	for _, req := range inv.Requests() {
		if err := req.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Start validates inv and records a running run, returning its ID. Use it
// with Execute when the caller needs the ID before acquisition finishes.
func (s *Service) Start(ctx context.Context, inv model.Invocation) (string, error) {
	if err := s.Validate(inv); err != nil {
		return "", err
	}
	id := s.newID()
	if s.store != nil {
		now := s.nowFunc().UTC()
		run := &model.Run{
			ID:         id,
			Invocation: inv,
			Status:     model.RunStatusRunning,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			return "", eris.Wrap(err, "acquire: create run")
		}
	}
	return id, nil
}

// Run acquires records for every domain of inv and persists them. On a sink
// failure the Result is still returned alongside the error.
func (s *Service) Run(ctx context.Context, inv model.Invocation) (*Result, error) {
	id, err := s.Start(ctx, inv)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, id, inv)
}

// Execute runs a started invocation. If ctx is cancelled mid-run the partial
// result is returned with ctx's error and the run is marked failed; nothing is
// persisted or queued for retry.
func (s *Service) Execute(ctx context.Context, runID string, inv model.Invocation) (*Result, error) {
	requests := inv.Requests()
	report := s.orch.Run(ctx, runID, requests)
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, report, err)
	}
	s.enqueueExhausted(ctx, requests, report)
	return s.finish(ctx, report)
}

// Persist retries persistence of a result whose sink previously failed.
func (s *Service) Persist(ctx context.Context, res *Result) (string, error) {
	if res == nil || res.Report == nil {
		return "", eris.New("acquire: nothing to persist")
	}
	if err := s.persist(ctx, res); err != nil {
		return "", err
	}
	return res.Location, nil
}

// RetryExhausted re-runs up to limit due entries from the retry queue.
// Entries are grouped by query, count and filters into one run per group,
// and each run asks every domain once. Recovered entries are removed; the
// rest are rescheduled with backoff. A failed group does not stop the others;
// the first error is returned with the summary.
func (s *Service) RetryExhausted(ctx context.Context, limit int) (*RetrySummary, error) {
	if s.store == nil {
		return nil, eris.New("acquire: retry queue requires a run store")
	}

	entries, err := s.store.ListRetries(ctx, resilience.RetryFilter{
		DueBefore: s.nowFunc().UTC(),
		Limit:     limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "acquire: list retries")
	}
	summary := &RetrySummary{Attempted: len(entries)}

	var firstErr error
	for _, g := range groupRetries(entries) {
		res, err := s.runRetryGroup(ctx, g, summary)
		if res != nil {
			summary.Results = append(summary.Results, res)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return summary, firstErr
}

// runRetryGroup runs one retry run for g and settles every entry in it.
func (s *Service) runRetryGroup(ctx context.Context, g *retryGroup, summary *RetrySummary) (*Result, error) {
	if err := s.Validate(g.inv); err != nil {
		return nil, eris.Wrap(err, "acquire: retry invocation")
	}

	runID := s.newID()
	now := s.nowFunc().UTC()
	if err := s.store.CreateRun(ctx, &model.Run{
		ID:         runID,
		Invocation: g.inv,
		Status:     model.RunStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return nil, eris.Wrap(err, "acquire: create retry run")
	}

	report := s.orch.Run(ctx, runID, g.inv.Requests())
	for i, dr := range report.Domains {
		for _, e := range g.entries[g.inv.Domains[i]] {
			if dr.Satisfied() {
				summary.Recovered++
				if err := s.store.RemoveRetry(ctx, e.ID); err != nil {
					zap.L().Warn("acquire: remove recovered retry entry", zap.String("id", e.ID), zap.Error(err))
				}
				continue
			}
			e.Reschedule(dr, s.retryCfg, s.nowFunc().UTC())
			summary.Rescheduled++
			if err := s.store.UpdateRetry(ctx, e); err != nil {
				zap.L().Warn("acquire: reschedule retry entry", zap.String("id", e.ID), zap.Error(err))
			}
		}
	}

	return s.finish(ctx, report)
}

type retryGroup struct {
	inv     model.Invocation
	entries map[model.Domain][]resilience.RetryEntry
}

// groupRetries buckets entries by request signature, keeping the order in
// which signatures and domains first appear.
func groupRetries(entries []resilience.RetryEntry) []*retryGroup {
	var groups []*retryGroup
	bySig := make(map[string]*retryGroup)
	for _, e := range entries {
		sig := requestSignature(e.Request, false)
		g, ok := bySig[sig]
		if !ok {
			g = &retryGroup{
				inv: model.Invocation{
					Query:   e.Request.Query,
					Count:   e.Request.Count,
					Filters: e.Request.Filters,
				},
				entries: make(map[model.Domain][]resilience.RetryEntry),
			}
			bySig[sig] = g
			groups = append(groups, g)
		}
		if _, seen := g.entries[e.Request.Domain]; !seen {
			g.inv.Domains = append(g.inv.Domains, e.Request.Domain)
		}
		g.entries[e.Request.Domain] = append(g.entries[e.Request.Domain], e)
	}
	return groups
}

// requestSignature is a stable key for query, count and filters, optionally
// prefixed with the domain.
func requestSignature(req model.AcquisitionRequest, withDomain bool) string {
	var b strings.Builder
	if withDomain {
		b.WriteString(string(req.Domain))
		b.WriteByte(0)
	}
	b.WriteString(req.Query)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(req.Count))
	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(req.Filters[k])
	}
	return b.String()
}

// retryEntryID derives the queue ID from the request so a domain exhausted
// again with the same query replaces its pending entry.
func retryEntryID(req model.AcquisitionRequest) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(requestSignature(req, true))).String()
}

func (s *Service) finish(ctx context.Context, report *model.RunReport) (*Result, error) {
	records, stats := dedupe.DedupeWithStats(report.Records())
	report.UniqueRecords = stats.Unique
	zap.L().Info("acquire: deduplicated records",
		zap.String("run_id", report.RunID),
		zap.Int("total", stats.Total),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("unique", stats.Unique),
	)

	res := &Result{
		RunID:   report.RunID,
		Report:  report,
		Records: records,
		Dedupe:  stats,
	}

	if err := s.persist(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) persist(ctx context.Context, res *Result) error {
	if s.sink != nil {
		loc, err := s.sink.Persist(ctx, res.Report, res.Records)
		if err != nil {
			err = eris.Wrap(err, "acquire: persist results")
			s.failRun(ctx, res.RunID, res.Report, err)
			return err
		}
		res.Location = loc
	}

	if s.store != nil {
		sctx, cancel := settleContext(ctx)
		defer cancel()
		if err := s.store.CompleteRun(sctx, res.RunID, res.Report, res.Location); err != nil {
			return eris.Wrap(err, "acquire: complete run")
		}
	}
	return nil
}

// abort settles a run whose context was cancelled during acquisition.
func (s *Service) abort(ctx context.Context, report *model.RunReport, cause error) (*Result, error) {
	records, stats := dedupe.DedupeWithStats(report.Records())
	report.UniqueRecords = stats.Unique
	err := eris.Wrap(cause, "acquire: run interrupted")
	zap.L().Warn("acquire: run interrupted",
		zap.String("run_id", report.RunID),
		zap.Int("unique", stats.Unique),
		zap.Error(cause),
	)
	s.failRun(ctx, report.RunID, report, err)
	return &Result{RunID: report.RunID, Report: report, Records: records, Dedupe: stats}, err
}

// failRun records cause on the run. It still runs when ctx is cancelled.
func (s *Service) failRun(ctx context.Context, runID string, report *model.RunReport, cause error) {
	if s.store == nil {
		return
	}
	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := s.store.FailRun(sctx, runID, report, cause.Error()); err != nil {
		zap.L().Warn("acquire: mark run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// settleTimeout bounds run status writes made after ctx may have ended.
const settleTimeout = 10 * time.Second

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (s *Service) enqueueExhausted(ctx context.Context, requests []model.AcquisitionRequest, report *model.RunReport) {
	if s.store == nil || s.retryMax <= 0 {
		return
	}
	for i, dr := range report.Domains {
		if dr.Satisfied() {
			continue
		}
		entry := resilience.NewRetryEntry(requests[i], dr, s.retryMax, s.retryCfg, s.nowFunc().UTC())
		entry.ID = retryEntryID(requests[i])
		if err := s.store.EnqueueRetry(ctx, entry); err != nil {
			zap.L().Warn("acquire: enqueue exhausted domain",
				zap.String("domain", string(dr.Domain)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("acquire: exhausted domain queued for retry",
			zap.String("domain", string(dr.Domain)),
			zap.Time("next_retry_at", entry.NextRetryAt),
		)
	}
}
