package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobscout/internal/config"
	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/routing"
)

func TestFormatRoutes(t *testing.T) {
	var buf bytes.Buffer
	formatRoutes(&buf, routing.Default())

	out := buf.String()
	assert.Contains(t, out, "upwork")
	assert.Contains(t, out, "apify > firecrawl > claude_extract")
	assert.Contains(t, out, "greenhouse")
	assert.Contains(t, out, "Unlisted domains fall back to jina_search.")
}

func TestInitRoutes_Default(t *testing.T) {
	routes, err := initRoutes(config.AcquireConfig{})
	require.NoError(t, err)
	assert.Equal(t, model.TierJinaSearch, routes.Fallback())
}

func TestInitRoutes_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routing:
  fallback: perplexity
  chains:
    upwork: [firecrawl, apify]
`), 0o644))

	routes, err := initRoutes(config.AcquireConfig{RoutingFile: path})
	require.NoError(t, err)
	assert.Equal(t, model.TierPerplexity, routes.Fallback())
	assert.Equal(t, []model.TierID{model.TierFirecrawl, model.TierApify}, routes.TiersFor(model.DomainUpwork))
}

func TestInitRoutes_MissingFile(t *testing.T) {
	_, err := initRoutes(config.AcquireConfig{RoutingFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load routing table")
}
