package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	domsvc "FuturesCast/internal/domain/service"
	"FuturesCast/internal/handler/api"
	"FuturesCast/internal/repository"
	icache "FuturesCast/internal/service/cache"
	imetrics "FuturesCast/internal/service/metrics"
	"FuturesCast/internal/service/ratelimit"
	"FuturesCast/internal/services/analytics"
	"FuturesCast/internal/services/contracts"
	"FuturesCast/internal/services/curve"
	"FuturesCast/internal/services/quotes"
	"FuturesCast/internal/services/risk"
	"FuturesCast/internal/usecase"
	pkgcache "FuturesCast/pkg/cache"
	pkgch "FuturesCast/pkg/clickhouse"
	"FuturesCast/pkg/config"
	pkgkafka "FuturesCast/pkg/kafka"
	applogger "FuturesCast/pkg/logger"
	"FuturesCast/pkg/metrics"
	"FuturesCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegisterer picks where collectors are registered. With metrics disabled they
// go to a private registry that is never scraped.
func ProvideRegisterer(cfg *config.Config) prometheus.Registerer {
	if !cfg.Metrics.Enabled {
		return prometheus.NewRegistry()
	}
	return prometheus.DefaultRegisterer
}

// ProvideMetrics creates the Prometheus recorder used by the forecast use case.
func ProvideMetrics(reg prometheus.Registerer) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideAPIMetrics creates the HTTP API collectors on the same registerer.
func ProvideAPIMetrics(reg prometheus.Registerer) *imetrics.APIMetrics {
	return imetrics.NewAPIMetrics(reg)
}

// ProvideCacheBackend creates the key-value store behind the market cache.
func ProvideCacheBackend(cfg *config.Config) (pkgcache.Service, error) {
	c := cfg.Cache
	switch c.Backend {
	case "redis", "layered":
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisEndpoint(c.Redis.Addr, c.Redis.Password, c.Redis.DB),
			pkgcache.WithRedisPool(c.Redis.PoolSize, c.Redis.MinIdleConns, c.Redis.PoolTimeout),
			pkgcache.WithRedisPrefix(c.Redis.Prefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		if c.Backend == "redis" {
			return rc, nil
		}
		return pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(c.MemoryMaxSize),
			pkgcache.WithLayeredMemoryTTL(c.LocalTTL),
		), nil
	default:
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(c.MemoryMaxSize),
			pkgcache.WithMemoryCleanup(c.CleanupInterval),
		), nil
	}
}

// ProvideTTLPolicy maps configured TTLs onto cache data classes.
func ProvideTTLPolicy(cfg *config.Config) icache.TTLPolicy {
	ttl := cfg.Cache.TTL
	return icache.TTLPolicy{
		icache.ClassSpot:       ttl.Spot,
		icache.ClassFrontMonth: ttl.FrontMonth,
		icache.ClassNearTerm:   ttl.NearTerm,
		icache.ClassMedium:     ttl.Medium,
		icache.ClassLongTerm:   ttl.LongTerm,
		icache.ClassCurve:      ttl.Curve,
	}
}

// ProvideMarketCache creates the TTL-classed market data cache.
func ProvideMarketCache(backend pkgcache.Service, policy icache.TTLPolicy, l *applogger.Logger) *icache.MarketCache {
	return icache.NewMarketCache(backend, policy, l)
}

// ProvideClickHouseClient creates a ClickHouse client when the quote source needs one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.UsesClickHouse() {
		return nil, nil
	}
	c := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithServer(c.Host, c.Port, c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithPool(c.MaxOpenConns, c.MaxIdleConns),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout, c.MaxExecutionTime),
		pkgch.WithHTTP(c.UseHTTP),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideQuoteStore creates the ClickHouse quote archive and initializes its schema.
func ProvideQuoteStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (*repository.CHQuoteStore, error) {
	if ch == nil {
		return nil, nil
	}
	store, err := repository.NewCHQuoteStore(ch, cfg.ClickHouse.QuoteTable, l)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, store.Schema()); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideQuoteProvider builds the quote chain for the configured source. Every chain is
// fronted by the market cache.
func ProvideQuoteProvider(cfg *config.Config, store *repository.CHQuoteStore, mc *icache.MarketCache, l *applogger.Logger) (domrepo.QuoteProvider, error) {
	q := cfg.Quotes
	live := func() domrepo.QuoteProvider {
		return quotes.NewHTTPProvider(quotes.HTTPConfig{
			BaseURL:         q.HTTP.BaseURL,
			APIKey:          q.HTTP.APIKey,
			APIKeyHeader:    q.HTTP.APIKeyHeader,
			QuotePath:       q.HTTP.QuotePath,
			Timeout:         q.HTTP.Timeout,
			RateLimit:       q.HTTP.RateLimit,
			Burst:           q.HTTP.Burst,
			BreakerFailures: q.HTTP.BreakerFailures,
			BreakerCooldown: q.HTTP.BreakerCooldown,
		}, l)
	}

	var base domrepo.QuoteProvider
	switch q.Source {
	case "http":
		base = live()
	case "clickhouse":
		if store == nil {
			return nil, fmt.Errorf("quote source %q: clickhouse store not configured", q.Source)
		}
		base = store
	case "failover":
		if store == nil {
			return nil, fmt.Errorf("quote source %q: clickhouse store not configured", q.Source)
		}
		base = quotes.NewFailoverProvider(live(), store, l)
	default:
		return nil, fmt.Errorf("unknown quote source %q", q.Source)
	}
	return quotes.NewCachedProvider(base, mc), nil
}

// ProvideCurveAssembler creates the futures curve assembler.
func ProvideCurveAssembler(qp domrepo.QuoteProvider, mc *icache.MarketCache, cfg *config.Config, l *applogger.Logger) *curve.Assembler {
	cv := cfg.Forecast.Curve
	return curve.NewAssembler(qp,
		curve.WithCache(mc),
		curve.WithConcurrency(cv.Concurrency),
		curve.WithValidation(curve.ValidationConfig{
			MinPoints:        cv.MinPoints,
			MaxSpreadRatio:   cv.MaxSpreadRatio,
			MinVolume:        cv.MinVolume,
			MaxIlliquidRatio: cv.MaxIlliquidRatio,
			MaxStepJump:      cv.MaxStepJump,
		}),
		curve.WithLogger(l),
	)
}

// ProvideCurveSource exposes the assembler through its domain interface.
func ProvideCurveSource(a *curve.Assembler) domsvc.CurveSource { return a }

func ProvideMapper() *contracts.Mapper {
	return contracts.NewMapper()
}

// ProvideCombiner builds the risk combination policy. Configured categories replace the
// defaults one by one; configured correlations replace the default table.
func ProvideCombiner(cfg *config.Config) (*risk.Combiner, error) {
	f := cfg.Forecast
	policy := risk.DefaultPolicy()
	policy.GlobalCap = f.GlobalCap
	policy.DiversificationFactor = f.DiversificationFactor

	for name, c := range f.Categories {
		t, err := parseRiskType(name)
		if err != nil {
			return nil, err
		}
		policy.Categories[t] = risk.Category{
			MaxImpact:  c.MaxImpact,
			TypicalMin: c.TypicalMin,
			TypicalMax: c.TypicalMax,
			Weight:     c.Weight,
		}
	}
	if len(f.Correlations) > 0 {
		policy.Correlations = policy.Correlations[:0]
		for _, p := range f.Correlations {
			a, err := parseRiskType(p.A)
			if err != nil {
				return nil, err
			}
			b, err := parseRiskType(p.B)
			if err != nil {
				return nil, err
			}
			policy.Correlations = append(policy.Correlations, risk.Correlation{A: a, B: b, Coefficient: p.Coefficient})
		}
	}
	return risk.NewCombiner(policy), nil
}

func parseRiskType(name string) (models.RiskType, error) {
	for _, t := range models.AllRiskTypes() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown risk category %q", name)
}

// ProvideOpenAIClient returns nil without an API key; risk analysis and the text
// fallback are then disabled.
func ProvideOpenAIClient(cfg *config.Config) *openai.Client {
	if !cfg.RiskEnabled() {
		return nil
	}
	oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		oc.BaseURL = cfg.OpenAI.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}

func llmOptions(cfg *config.Config, model, breaker string) analytics.LLMOptions {
	o := cfg.OpenAI
	return analytics.LLMOptions{
		Model:           model,
		Temperature:     o.Temperature,
		MaxTokens:       o.MaxTokens,
		Timeout:         o.Timeout,
		Attempts:        o.Attempts,
		Backoff:         o.Backoff,
		BreakerName:     breaker,
		BreakerFailures: o.BreakerFailures,
		BreakerCooldown: o.BreakerCooldown,
	}
}

// ProvideRiskProvider creates the LLM risk analyzer.
func ProvideRiskProvider(client *openai.Client, cfg *config.Config, l *applogger.Logger) domsvc.RiskProvider {
	if client == nil {
		return nil
	}
	llm := analytics.NewLLMBase(client, llmOptions(cfg, cfg.OpenAI.RiskModel, "openai-risk"), l)
	return analytics.NewOpenAIRiskAnalyzer(llm, l)
}

// ProvideTextFallback creates the web-search price fallback.
func ProvideTextFallback(client *openai.Client, cfg *config.Config, l *applogger.Logger) domsvc.TextForecastFallback {
	if client == nil || !cfg.Forecast.FallbackToWebSearch {
		return nil
	}
	opts := llmOptions(cfg, cfg.OpenAI.SearchModel, "openai-search")
	// search models reject sampling parameters; zero drops the field from the request
	opts.Temperature = 0
	llm := analytics.NewLLMBase(client, opts, l)
	return analytics.NewWebSearchFallback(llm, analytics.NewRegexPriceExtractor(), l)
}

// ProvideKafkaProducer creates a Kafka producer when publishing is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithDelivery(k.RequiredAcks, k.Compression, k.Producer.MaxAttempts),
		pkgkafka.WithBatch(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(k.AutoCreateTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideForecastPublisher creates the Kafka forecast publisher.
func ProvideForecastPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ForecastPublisher {
	if producer == nil {
		return nil
	}
	return repository.NewKafkaForecastPublisher(producer, cfg.Kafka.Topic)
}

// ProvideOrchestrator creates the forecast pipeline.
func ProvideOrchestrator(
	curves domsvc.CurveSource,
	mapper *contracts.Mapper,
	combiner *risk.Combiner,
	riskProvider domsvc.RiskProvider,
	fallback domsvc.TextForecastFallback,
	m domrepo.Metrics,
	pub domrepo.ForecastPublisher,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.ForecastOrchestrator {
	oc := usecase.DefaultOrchestratorConfig()
	oc.Mapping.MinDaysToExpiration = cfg.Forecast.Mapping.MinDaysToExpiration
	oc.Mapping.MaxDaysToExpiration = cfg.Forecast.Mapping.MaxDaysToExpiration
	oc.MaxContracts = cfg.Forecast.Curve.MaxContracts
	oc.DefaultConfidence = cfg.Forecast.DefaultConfidence
	oc.MaxRiskAdjustment = cfg.Forecast.MaxRiskAdjustment
	oc.Currency = cfg.Forecast.Currency
	oc.PublishTimeout = cfg.Forecast.PublishTimeout
	oc.FallbackConcurrency = cfg.Forecast.FallbackConcurrency

	opts := []usecase.OrchestratorOption{
		usecase.WithConfig(oc),
		usecase.WithMetrics(m),
		usecase.WithLogger(l),
	}
	if riskProvider != nil {
		opts = append(opts, usecase.WithRiskProvider(riskProvider))
	}
	if fallback != nil {
		opts = append(opts, usecase.WithTextFallback(fallback))
	}
	if pub != nil {
		opts = append(opts, usecase.WithPublisher(pub))
	}
	return usecase.NewForecastOrchestrator(curves, mapper, combiner, opts...)
}

// ProvideRateLimiter creates the per-client limiter of the forecast endpoint.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
}

// ProvideHandler creates the HTTP API handler.
func ProvideHandler(l *applogger.Logger, orch *usecase.ForecastOrchestrator, curves domsvc.CurveSource, mapper *contracts.Mapper, rl *ratelimit.Limiter, m *imetrics.APIMetrics) *api.ForecastEchoHandler {
	return api.NewForecastEchoHandler(l, orch, curves, mapper, rl, m)
}

// ProvideApp creates the application server with its health checks and owned resources.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.ForecastEchoHandler,
	orch *usecase.ForecastOrchestrator,
	ch *pkgch.Client,
	mc *icache.MarketCache,
	backend pkgcache.Service,
	pub domrepo.ForecastPublisher,
) *server.App {
	opts := []server.Option{
		server.WithCloser("market_cache", mc),
	}
	if ch != nil {
		opts = append(opts,
			server.WithHealthCheck("clickhouse", ch.Health),
			server.WithCloser("clickhouse", ch),
		)
	}
	if rc, ok := backend.(*pkgcache.RedisCache); ok {
		opts = append(opts, server.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	if pub != nil {
		opts = append(opts, server.WithCloser("kafka_publisher", pub))
	}
	return server.New(cfg, l, h, orch, opts...)
}
