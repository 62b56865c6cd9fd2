// Package acquire walks each domain's tier chain and aggregates the results
// of a run.
package acquire

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/jobscout/internal/model"
)

// Fetcher retrieves up to count records for one domain using one tier's
// strategy. Implementations own their rate-limit discipline.
type Fetcher interface {
	// Name returns the tier identifier (matches the routing table).
	Name() string
	// Supports reports whether the fetcher can serve domain at all.
	Supports(domain model.Domain) bool
	// Fetch returns the records it could get. Any unrecoverable problem is
	// returned as an error.
	Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error)
}

// Registry maps tier identifiers to fetchers.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[model.TierID]Fetcher
}

// NewRegistry creates a registry holding fetchers.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[model.TierID]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds a fetcher, replacing any previous one with the same name.
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[model.TierID(f.Name())] = f
}

// Get returns the fetcher for tier, or nil if none is registered.
func (r *Registry) Get(tier model.TierID) Fetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchers[tier]
}

// List returns registered tiers in sorted order.
func (r *Registry) List() []model.TierID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tiers := make([]model.TierID, 0, len(r.fetchers))
	for t := range r.fetchers {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// FetcherFunc adapts a function to the Fetcher interface. It supports every
// domain unless SupportsFn is set.
type FetcherFunc struct {
	TierName   string
	SupportsFn func(model.Domain) bool
	FetchFn    func(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error)
}

// Name implements Fetcher.
func (f FetcherFunc) Name() string { return f.TierName }

// Supports implements Fetcher.
func (f FetcherFunc) Supports(domain model.Domain) bool {
	if f.SupportsFn == nil {
		return true
	}
	return f.SupportsFn(domain)
}

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, domain model.Domain, query string, count int, filters map[string]string) ([]model.Record, error) {
	return f.FetchFn(ctx, domain, query, count, filters)
}
