package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Direct     DirectConfig     `yaml:"direct" mapstructure:"direct"`
	Acquire    AcquireConfig    `yaml:"acquire" mapstructure:"acquire"`
	Sink       SinkConfig       `yaml:"sink" mapstructure:"sink"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ApifyConfig holds Apify API settings. Actors maps a domain to the actor
// that scrapes it; domains without an actor are not served by the apify tier.
type ApifyConfig struct {
	Token        string            `yaml:"token" mapstructure:"token"`
	BaseURL      string            `yaml:"base_url" mapstructure:"base_url"`
	Actors       map[string]string `yaml:"actors" mapstructure:"actors"`
	PollSecs     int               `yaml:"poll_secs" mapstructure:"poll_secs"`
	RateLimitRPS float64           `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key          string            `yaml:"key" mapstructure:"key"`
	BaseURL      string            `yaml:"base_url" mapstructure:"base_url"`
	SearchURLs   map[string]string `yaml:"search_urls" mapstructure:"search_urls"`
	RateLimitRPS float64           `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string            `yaml:"key" mapstructure:"key"`
	BaseURL       string            `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string            `yaml:"search_base_url" mapstructure:"search_base_url"`
	Sites         map[string]string `yaml:"sites" mapstructure:"sites"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings for the extraction tier.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds Notion API credentials for the notion sink.
type NotionConfig struct {
	Token        string  `yaml:"token" mapstructure:"token"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// DirectConfig configures the free public-API tier.
type DirectConfig struct {
	// Boards lists the company board tokens queried on greenhouse/lever,
	// keyed by domain.
	Boards map[string][]string `yaml:"boards" mapstructure:"boards"`
}

// AcquireConfig controls the fallback controller and orchestrator.
type AcquireConfig struct {
	YieldThreshold       float64 `yaml:"yield_threshold" mapstructure:"yield_threshold"`
	TierTimeoutSecs      int     `yaml:"tier_timeout_secs" mapstructure:"tier_timeout_secs"`
	MaxConcurrentDomains int     `yaml:"max_concurrent_domains" mapstructure:"max_concurrent_domains"`
	RoutingFile          string  `yaml:"routing_file" mapstructure:"routing_file"`
	DefaultCount         int     `yaml:"default_count" mapstructure:"default_count"`
	RetryMax             int     `yaml:"retry_max" mapstructure:"retry_max"`
	RetryBackoffSecs     int     `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
}

// TierTimeout returns the per-attempt timeout as a duration.
func (a AcquireConfig) TierTimeout() time.Duration {
	return time.Duration(a.TierTimeoutSecs) * time.Second
}

// SinkConfig selects where deduplicated records are persisted.
type SinkConfig struct {
	Kind     string `yaml:"kind" mapstructure:"kind"`
	XLSXDir  string `yaml:"xlsx_dir" mapstructure:"xlsx_dir"`
	JSONDir  string `yaml:"json_dir" mapstructure:"json_dir"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
	NotionDB string `yaml:"notion_db" mapstructure:"notion_db"`
}

// PricingConfig holds per-tier pricing used for cost auditing.
type PricingConfig struct {
	Tiers map[string]TierPricing `yaml:"tiers" mapstructure:"tiers"`
}

// TierPricing holds the cost of one call and of each returned record.
type TierPricing struct {
	PerCall   float64 `yaml:"per_call" mapstructure:"per_call"`
	PerRecord float64 `yaml:"per_record" mapstructure:"per_record"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures run health alerting.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ExhaustedRateThreshold float64 `yaml:"exhausted_rate_threshold" mapstructure:"exhausted_rate_threshold"`
	CostThresholdUSD       float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	RetryBacklogThreshold  int     `yaml:"retry_backlog_threshold" mapstructure:"retry_backlog_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "jobscout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.exhausted_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.retry_backlog_threshold", 100)
	v.SetDefault("acquire.yield_threshold", 0.5)
	v.SetDefault("acquire.tier_timeout_secs", 90)
	v.SetDefault("acquire.max_concurrent_domains", 0)
	v.SetDefault("acquire.default_count", 25)
	v.SetDefault("acquire.retry_max", 3)
	v.SetDefault("acquire.retry_backoff_secs", 900)
	v.SetDefault("sink.kind", "store")
	v.SetDefault("sink.xlsx_dir", ".tmp")
	v.SetDefault("sink.json_dir", ".tmp")
	v.SetDefault("sink.prefix", "jobs")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.poll_secs", 3)
	v.SetDefault("apify.rate_limit_rps", 2.0)
	v.SetDefault("apify.actors", map[string]string{
		"upwork":   "upwork-vibe~upwork-job-scraper",
		"linkedin": "bebity~linkedin-jobs-scraper",
		"indeed":   "misceres~indeed-scraper",
	})
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.rate_limit_rps", 1.0)
	v.SetDefault("firecrawl.search_urls", map[string]string{
		"upwork":   "https://www.upwork.com/nx/search/jobs/?q={query}",
		"linkedin": "https://www.linkedin.com/jobs/search/?keywords={query}",
		"indeed":   "https://www.indeed.com/jobs?q={query}",
		"remoteok": "https://remoteok.com/remote-{query}-jobs",
	})
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.sites", map[string]string{
		"upwork":     "upwork.com",
		"linkedin":   "linkedin.com",
		"indeed":     "indeed.com",
		"greenhouse": "boards.greenhouse.io",
		"lever":      "jobs.lever.co",
		"remoteok":   "remoteok.com",
	})
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("notion.rate_limit_rps", 3.0)
	v.SetDefault("pricing.tiers", map[string]any{
		"apify":          map[string]any{"per_call": 0.0, "per_record": 0.001},
		"firecrawl":      map[string]any{"per_call": 0.0063, "per_record": 0.0},
		"jina_search":    map[string]any{"per_call": 0.002, "per_record": 0.0},
		"perplexity":     map[string]any{"per_call": 0.005, "per_record": 0.0},
		"claude_extract": map[string]any{"per_call": 0.02, "per_record": 0.0},
		"direct":         map[string]any{"per_call": 0.0, "per_record": 0.0},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings the acquisition commands depend on.
func (c *Config) Validate() error {
	var problems []string

	if c.Acquire.YieldThreshold <= 0 || c.Acquire.YieldThreshold > 1 {
		problems = append(problems, "acquire.yield_threshold must be in (0, 1]")
	}
	if c.Acquire.TierTimeoutSecs <= 0 {
		problems = append(problems, "acquire.tier_timeout_secs must be > 0")
	}
	if c.Acquire.MaxConcurrentDomains < 0 {
		problems = append(problems, "acquire.max_concurrent_domains must be >= 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for postgres")
	}
	for _, kind := range strings.Split(c.Sink.Kind, ",") {
		switch strings.TrimSpace(kind) {
		case "store", "xlsx", "json":
		case "notion":
			if c.Notion.Token == "" || c.Sink.NotionDB == "" {
				problems = append(problems, "notion sink requires notion.token and sink.notion_db")
			}
		default:
			problems = append(problems, "sink.kind has unknown sink "+kind)
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
