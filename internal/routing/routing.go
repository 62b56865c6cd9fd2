// Package routing maps each domain to its ranked chain of acquisition tiers.
package routing

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/jobscout/internal/model"
)

// Table is an immutable domain -> tier chain mapping. It is safe for
// concurrent use; nothing mutates it after construction.
type Table struct {
	chains   map[model.Domain][]model.TierID
	fallback model.TierID
}

// New builds a Table from chains, copying the input. Unknown domains resolve
// to a single-element chain containing fallback.
func New(chains map[model.Domain][]model.TierID, fallback model.TierID) (*Table, error) {
	if fallback == "" {
		return nil, eris.New("routing: fallback tier is required")
	}

	t := &Table{
		chains:   make(map[model.Domain][]model.TierID, len(chains)),
		fallback: fallback,
	}
	for domain, chain := range chains {
		if domain == "" {
			return nil, eris.New("routing: empty domain name")
		}
		if len(chain) == 0 {
			return nil, eris.Errorf("routing: domain %q has an empty chain", domain)
		}
		seen := make(map[model.TierID]bool, len(chain))
		for _, tier := range chain {
			if tier == "" {
				return nil, eris.Errorf("routing: domain %q has an empty tier", domain)
			}
			if seen[tier] {
				return nil, eris.Errorf("routing: domain %q lists tier %q twice", domain, tier)
			}
			seen[tier] = true
		}
		t.chains[domain] = append([]model.TierID(nil), chain...)
	}
	return t, nil
}

// Default returns the built-in chains, ranked by observed reliability and
// cost for each platform.
func Default() *Table {
	t, err := New(map[model.Domain][]model.TierID{
		model.DomainUpwork:     {model.TierApify, model.TierFirecrawl, model.TierClaudeExtract},
		model.DomainLinkedIn:   {model.TierApify, model.TierFirecrawl, model.TierPerplexity},
		model.DomainIndeed:     {model.TierFirecrawl, model.TierApify, model.TierClaudeExtract},
		model.DomainGreenhouse: {model.TierDirect, model.TierJinaSearch},
		model.DomainLever:      {model.TierDirect, model.TierJinaSearch},
		model.DomainRemoteOK:   {model.TierDirect, model.TierFirecrawl},
	}, model.TierJinaSearch)
	if err != nil {
		panic(err)
	}
	return t
}

// TiersFor returns a copy of the chain for domain.
func (t *Table) TiersFor(domain model.Domain) []model.TierID {
	if chain, ok := t.chains[domain]; ok {
		return append([]model.TierID(nil), chain...)
	}
	return []model.TierID{t.fallback}
}

// Fallback returns the universal fallback tier.
func (t *Table) Fallback() model.TierID {
	return t.fallback
}

// Domains returns the explicitly configured domains in sorted order.
func (t *Table) Domains() []model.Domain {
	out := make([]model.Domain, 0, len(t.chains))
	for d := range t.chains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tiers returns every tier referenced by the table, sorted.
func (t *Table) Tiers() []model.TierID {
	seen := map[model.TierID]bool{t.fallback: true}
	for _, chain := range t.chains {
		for _, tier := range chain {
			seen[tier] = true
		}
	}
	out := make([]model.TierID, 0, len(seen))
	for tier := range seen {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FileConfig is the on-disk routing layout.
type FileConfig struct {
	Fallback string              `yaml:"fallback"`
	Chains   map[string][]string `yaml:"chains"`
	// Inherit keeps the built-in chains for domains the file does not list.
	Inherit bool `yaml:"inherit"`
}

// Load reads a routing table from a YAML file with a top-level "routing" key.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "routing: read %s", path)
	}

	var wrapper struct {
		Routing FileConfig `yaml:"routing"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "routing: parse config")
	}
	fc := wrapper.Routing

	chains := make(map[model.Domain][]model.TierID)
	fallback := model.TierID(fc.Fallback)
	if fc.Inherit {
		def := Default()
		for d, chain := range def.chains {
			chains[d] = chain
		}
		if fallback == "" {
			fallback = def.fallback
		}
	}
	for name, tiers := range fc.Chains {
		chain := make([]model.TierID, len(tiers))
		for i, tier := range tiers {
			chain[i] = model.TierID(tier)
		}
		chains[model.ParseDomain(name)] = chain
	}

	return New(chains, fallback)
}
