package routing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/model"
)

func TestDefault_Chains(t *testing.T) {
	tbl := Default()

	assert.Equal(t, []model.TierID{model.TierApify, model.TierFirecrawl, model.TierClaudeExtract},
		tbl.TiersFor(model.DomainUpwork))
	assert.Equal(t, []model.TierID{model.TierFirecrawl, model.TierApify, model.TierClaudeExtract},
		tbl.TiersFor(model.DomainIndeed))
	assert.Equal(t, []model.TierID{model.TierDirect, model.TierJinaSearch},
		tbl.TiersFor(model.DomainGreenhouse))
}

func TestTiersFor_UnknownDomainUsesFallback(t *testing.T) {
	tbl := Default()
	assert.Equal(t, []model.TierID{model.TierJinaSearch}, tbl.TiersFor("wellfound"))
	assert.Equal(t, model.TierJinaSearch, tbl.Fallback())
}

func TestTiersFor_ReturnsCopy(t *testing.T) {
	tbl := Default()
	chain := tbl.TiersFor(model.DomainUpwork)
	chain[0] = "mutated"
	assert.Equal(t, model.TierApify, tbl.TiersFor(model.DomainUpwork)[0])
}

func TestNew_CopiesInput(t *testing.T) {
	in := map[model.Domain][]model.TierID{"x": {"a", "b"}}
	tbl, err := New(in, "c")
	require.NoError(t, err)

	in["x"][0] = "z"
	in["y"] = []model.TierID{"q"}

	assert.Equal(t, []model.TierID{"a", "b"}, tbl.TiersFor("x"))
	assert.Equal(t, []model.TierID{"c"}, tbl.TiersFor("y"))
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		chains   map[model.Domain][]model.TierID
		fallback model.TierID
	}{
		{"no fallback", map[model.Domain][]model.TierID{"x": {"a"}}, ""},
		{"empty chain", map[model.Domain][]model.TierID{"x": {}}, "f"},
		{"duplicate tier", map[model.Domain][]model.TierID{"x": {"a", "b", "a"}}, "f"},
		{"empty tier", map[model.Domain][]model.TierID{"x": {""}}, "f"},
		{"empty domain", map[model.Domain][]model.TierID{"": {"a"}}, "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chains, tt.fallback)
			assert.Error(t, err)
		})
	}
}

func TestDomainsAndTiers_Sorted(t *testing.T) {
	tbl := Default()
	assert.Equal(t, []model.Domain{
		model.DomainGreenhouse, model.DomainIndeed, model.DomainLever,
		model.DomainLinkedIn, model.DomainRemoteOK, model.DomainUpwork,
	}, tbl.Domains())
	assert.Equal(t, []model.TierID{
		model.TierApify, model.TierClaudeExtract, model.TierDirect,
		model.TierFirecrawl, model.TierJinaSearch, model.TierPerplexity,
	}, tbl.Tiers())
}

func TestLoad(t *testing.T) {
	content := `
routing:
  fallback: perplexity
  chains:
    Upwork: [firecrawl, apify]
    wellfound: [jina_search]
`
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []model.TierID{model.TierFirecrawl, model.TierApify}, tbl.TiersFor(model.DomainUpwork))
	assert.Equal(t, []model.TierID{model.TierJinaSearch}, tbl.TiersFor("wellfound"))
	assert.Equal(t, []model.TierID{model.TierPerplexity}, tbl.TiersFor(model.DomainLinkedIn))
}

func TestLoad_Inherit(t *testing.T) {
	content := `
routing:
  inherit: true
  chains:
    upwork: [firecrawl]
`
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []model.TierID{model.TierFirecrawl}, tbl.TiersFor(model.DomainUpwork))
	assert.Equal(t, Default().TiersFor(model.DomainLinkedIn), tbl.TiersFor(model.DomainLinkedIn))
	assert.Equal(t, model.TierJinaSearch, tbl.Fallback())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/routing.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	// Missing fallback without inherit.
	path = filepath.Join(t.TempDir(), "nofallback.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  chains:\n    x: [a]\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestTable_ConcurrentReads(t *testing.T) {
	tbl := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tbl.TiersFor(model.DomainUpwork)
				_ = tbl.TiersFor("unknown")
			}
		}()
	}
	wg.Wait()
}
