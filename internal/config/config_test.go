package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no stray config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "jobscout.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.5, cfg.Acquire.YieldThreshold, 0.001)
	assert.Equal(t, 90, cfg.Acquire.TierTimeoutSecs)
	assert.Equal(t, 90*time.Second, cfg.Acquire.TierTimeout())
	assert.Equal(t, 25, cfg.Acquire.DefaultCount)
	assert.Equal(t, 3, cfg.Acquire.RetryMax)
	assert.Equal(t, "store", cfg.Sink.Kind)
	assert.Equal(t, "https://api.apify.com/v2", cfg.Apify.BaseURL)
	assert.Equal(t, "upwork-vibe~upwork-job-scraper", cfg.Apify.Actors["upwork"])
	assert.Equal(t, "https://api.firecrawl.dev/v1", cfg.Firecrawl.BaseURL)
	assert.Contains(t, cfg.Firecrawl.SearchURLs["indeed"], "{query}")
	assert.Equal(t, "jobs.lever.co", cfg.Jina.Sites["lever"])
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.InDelta(t, 0.005, cfg.Pricing.Tiers["perplexity"].PerCall, 1e-9)
	assert.InDelta(t, 0.001, cfg.Pricing.Tiers["apify"].PerRecord, 1e-9)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 1e-9)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/jobs
log:
  level: debug
  format: console
acquire:
  yield_threshold: 0.8
  tier_timeout_secs: 30
direct:
  boards:
    greenhouse: [stripe, airbnb]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.8, cfg.Acquire.YieldThreshold, 0.001)
	assert.Equal(t, 30, cfg.Acquire.TierTimeoutSecs)
	assert.Equal(t, []string{"stripe", "airbnb"}, cfg.Direct.Boards["greenhouse"])
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("JOBSCOUT_STORE_DRIVER", "postgres")
	t.Setenv("JOBSCOUT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JOBSCOUT_SERVER_PORT", "3000")
	t.Setenv("JOBSCOUT_ACQUIRE_TIER_TIMEOUT_SECS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Acquire.TierTimeout())
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Acquire.YieldThreshold = 0.5
	cfg.Acquire.TierTimeoutSecs = 90
	cfg.Sink.Kind = "store"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero threshold", mutate: func(c *Config) { c.Acquire.YieldThreshold = 0 }, wantErr: "yield_threshold"},
		{name: "threshold above one", mutate: func(c *Config) { c.Acquire.YieldThreshold = 1.5 }, wantErr: "yield_threshold"},
		{name: "zero timeout", mutate: func(c *Config) { c.Acquire.TierTimeoutSecs = 0 }, wantErr: "tier_timeout_secs"},
		{name: "bad driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "store.driver"},
		{name: "postgres without url", mutate: func(c *Config) { c.Store.Driver = "postgres" }, wantErr: "database_url"},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink.Kind = "sheets" }, wantErr: "unknown sink"},
		{name: "notion without token", mutate: func(c *Config) { c.Sink.Kind = "notion" }, wantErr: "notion sink"},
		{name: "multiple sinks", mutate: func(c *Config) { c.Sink.Kind = "store, xlsx,json" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
