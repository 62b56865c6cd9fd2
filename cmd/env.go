package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobscout/internal/acquire"
	"github.com/sells-group/jobscout/internal/config"
	"github.com/sells-group/jobscout/internal/cost"
	"github.com/sells-group/jobscout/internal/fetch"
	"github.com/sells-group/jobscout/internal/model"
	"github.com/sells-group/jobscout/internal/resilience"
	"github.com/sells-group/jobscout/internal/routing"
	"github.com/sells-group/jobscout/internal/sink"
	"github.com/sells-group/jobscout/internal/store"
	anthropicpkg "github.com/sells-group/jobscout/pkg/anthropic"
	"github.com/sells-group/jobscout/pkg/apify"
	"github.com/sells-group/jobscout/pkg/firecrawl"
	"github.com/sells-group/jobscout/pkg/jina"
	"github.com/sells-group/jobscout/pkg/notion"
	"github.com/sells-group/jobscout/pkg/perplexity"
)

// acquireEnv holds the store, routing table and service needed by the
// acquire/retry/serve commands.
type acquireEnv struct {
	Store    store.Store
	Routes   *routing.Table
	Registry *acquire.Registry
	Breakers *resilience.Breakers
	Service  *acquire.Service
}

// Close releases resources held by the environment.
func (e *acquireEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initAcquire validates config, opens and migrates the store, registers the
// configured tiers and builds the Service. sinkKinds overrides sink.kind
// when non-empty. Callers should defer env.Close().
func initAcquire(ctx context.Context, sinkKinds string) (*acquireEnv, error) {
	if sinkKinds != "" {
		cfg.Sink.Kind = sinkKinds
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	routes, err := initRoutes(cfg.Acquire)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	out, err := initSink(st, cfg.Sink)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	breakers := resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	registry := initFetchers(cfg, breakers)
	zap.L().Info("acquisition tiers registered",
		zap.Any("tiers", registry.List()),
		zap.String("fallback", string(routes.Fallback())),
	)

	exec := acquire.NewExecutor(cfg.Acquire.TierTimeout(), cost.NewCalculator(costRates(cfg.Pricing)))
	ctrl := acquire.NewController(routes, registry, exec, cfg.Acquire.YieldThreshold)
	orch := acquire.NewOrchestrator(ctrl, acquire.WithMaxConcurrentDomains(cfg.Acquire.MaxConcurrentDomains))

	retryCfg := resilience.FromRetryConfig(0, time.Duration(cfg.Acquire.RetryBackoffSecs)*time.Second)
	svc := acquire.NewService(orch,
		acquire.WithSink(out),
		acquire.WithRunStore(st),
		acquire.WithRetryPolicy(cfg.Acquire.RetryMax, retryCfg),
	)

	return &acquireEnv{
		Store:    st,
		Routes:   routes,
		Registry: registry,
		Breakers: breakers,
		Service:  svc,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "jobscout.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRoutes loads the routing file when configured, else the built-in table.
func initRoutes(ac config.AcquireConfig) (*routing.Table, error) {
	if ac.RoutingFile == "" {
		return routing.Default(), nil
	}
	t, err := routing.Load(ac.RoutingFile)
	if err != nil {
		return nil, eris.Wrap(err, "load routing table")
	}
	return t, nil
}

// initFetchers registers a fetcher for every tier whose credentials are
// configured. The direct tier needs none and is always available.
func initFetchers(c *config.Config, breakers *resilience.Breakers) *acquire.Registry {
	reg := acquire.NewRegistry()

	jinaOpts := []jina.Option{}
	if c.Jina.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(c.Jina.BaseURL))
	}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(c.Jina.Key, jinaOpts...)
	sites := domainMap(c.Jina.Sites)

	if c.Apify.Token != "" {
		client := apify.NewClient(c.Apify.Token,
			apify.WithBaseURL(c.Apify.BaseURL),
			apify.WithRateLimit(c.Apify.RateLimitRPS),
		)
		var poll []apify.PollOption
		if c.Apify.PollSecs > 0 {
			poll = append(poll, apify.WithPollInterval(time.Duration(c.Apify.PollSecs)*time.Second))
		}
		reg.Register(fetch.NewApify(client, domainMap(c.Apify.Actors), breakers.Get("apify"), poll...))
	} else {
		zap.L().Debug("JOBSCOUT_APIFY_TOKEN not set, apify tier disabled")
	}

	if c.Firecrawl.Key != "" {
		client := firecrawl.NewClient(c.Firecrawl.Key,
			firecrawl.WithBaseURL(c.Firecrawl.BaseURL),
			firecrawl.WithRateLimit(c.Firecrawl.RateLimitRPS),
		)
		reg.Register(fetch.NewFirecrawl(client, domainMap(c.Firecrawl.SearchURLs), breakers.Get("firecrawl")))
	} else {
		zap.L().Debug("JOBSCOUT_FIRECRAWL_KEY not set, firecrawl tier disabled")
	}

	if c.Jina.Key != "" {
		reg.Register(fetch.NewJinaSearch(jinaClient, sites, breakers.Get("jina")))
	} else {
		zap.L().Debug("JOBSCOUT_JINA_KEY not set, jina_search tier disabled")
	}

	if c.Perplexity.Key != "" {
		client := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		reg.Register(fetch.NewPerplexity(client, sites, breakers.Get("perplexity")))
	} else {
		zap.L().Debug("JOBSCOUT_PERPLEXITY_KEY not set, perplexity tier disabled")
	}

	if c.Anthropic.Key != "" {
		llm := anthropicpkg.NewClient(c.Anthropic.Key)
		reg.Register(fetch.NewClaudeExtract(jinaClient, llm, domainMap(c.Firecrawl.SearchURLs),
			c.Anthropic.Model, c.Anthropic.MaxTokens, breakers.Get("anthropic")))
	} else {
		zap.L().Debug("JOBSCOUT_ANTHROPIC_KEY not set, claude_extract tier disabled")
	}

	boards := make(map[model.Domain][]string, len(c.Direct.Boards))
	for d, b := range c.Direct.Boards {
		boards[model.ParseDomain(d)] = b
	}
	reg.Register(fetch.NewDirect(boards, breakers.Get("direct")))

	return reg
}

// initSink builds the sink chain named by sc.Kind, a comma-separated list.
func initSink(st store.Store, sc config.SinkConfig) (acquire.Sink, error) {
	var sinks sink.Multi
	for _, kind := range strings.Split(sc.Kind, ",") {
		switch strings.TrimSpace(kind) {
		case "store":
			sinks = append(sinks, sink.NewStore(st))
		case "xlsx":
			sinks = append(sinks, sink.NewXLSX(sc.XLSXDir, sc.Prefix))
		case "json":
			sinks = append(sinks, sink.NewJSON(sc.JSONDir, sc.Prefix))
		case "notion":
			client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimitRPS))
			sinks = append(sinks, sink.NewNotion(client, sc.NotionDB))
		case "":
		default:
			return nil, eris.Errorf("unknown sink %q", kind)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// costRates overlays configured pricing on the built-in rates.
func costRates(pc config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for tier, p := range pc.Tiers {
		rates[model.TierID(tier)] = cost.TierRate{PerCall: p.PerCall, PerRecord: p.PerRecord}
	}
	return rates
}

func domainMap(in map[string]string) map[model.Domain]string {
	out := make(map[model.Domain]string, len(in))
	for k, v := range in {
		out[model.ParseDomain(k)] = v
	}
	return out
}
