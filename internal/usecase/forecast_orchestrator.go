package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FuturesCast/internal/domain/models"
	domrepo "FuturesCast/internal/domain/repository"
	domsvc "FuturesCast/internal/domain/service"
	"FuturesCast/internal/services/contracts"
	"FuturesCast/internal/services/risk"
	applogger "FuturesCast/pkg/logger"
)

// Stage names the step a forecast run is in.
type Stage string

const (
	StageFetchCurve    Stage = "FETCH_CURVE"
	StageFetchRisk     Stage = "FETCH_RISK"
	StageCombine       Stage = "COMBINE"
	StageBuildInterval Stage = "BUILD_INTERVAL"
	StageFallback      Stage = "FALLBACK"
	StageDone          Stage = "DONE"
)

// Provider labels used for call accounting.
const (
	ProviderCurve    = "curve"
	ProviderRisk     = "risk"
	ProviderFallback = "fallback"
)

// OrchestratorConfig holds request-independent forecast settings.
type OrchestratorConfig struct {
	Mapping             contracts.MappingOptions
	MaxContracts        int
	DefaultConfidence   float64
	MaxRiskAdjustment   float64
	Currency            string
	PublishTimeout      time.Duration
	FallbackConcurrency int
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Mapping:             contracts.DefaultMappingOptions(),
		MaxContracts:        12,
		DefaultConfidence:   0.6,
		MaxRiskAdjustment:   0.25,
		Currency:            "USD",
		PublishTimeout:      5 * time.Second,
		FallbackConcurrency: 4,
	}
}

// ForecastOrchestrator blends one futures curve and one risk analysis into per-horizon
// forecasts, falling back to text extraction for horizons the curve cannot price.
type ForecastOrchestrator struct {
	curves    domsvc.CurveSource
	risk      domsvc.RiskProvider
	fallback  domsvc.TextForecastFallback
	mapper    *contracts.Mapper
	combiner  *risk.Combiner
	metrics   domrepo.Metrics
	publisher domrepo.ForecastPublisher
	cfg       OrchestratorConfig
	l         *applogger.Logger
	now       func() time.Time
	newRunID  func() string
}

type OrchestratorOption func(*ForecastOrchestrator)

func WithRiskProvider(p domsvc.RiskProvider) OrchestratorOption {
	return func(o *ForecastOrchestrator) { o.risk = p }
}

func WithTextFallback(f domsvc.TextForecastFallback) OrchestratorOption {
	return func(o *ForecastOrchestrator) { o.fallback = f }
}

func WithMetrics(m domrepo.Metrics) OrchestratorOption {
	return func(o *ForecastOrchestrator) { o.metrics = m }
}

func WithPublisher(p domrepo.ForecastPublisher) OrchestratorOption {
	return func(o *ForecastOrchestrator) { o.publisher = p }
}

func WithConfig(cfg OrchestratorConfig) OrchestratorOption {
	return func(o *ForecastOrchestrator) { o.cfg = cfg }
}

func WithLogger(l *applogger.Logger) OrchestratorOption {
	return func(o *ForecastOrchestrator) {
		if l != nil {
			o.l = l
		}
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *ForecastOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDGenerator replaces the uuid run id source.
func WithRunIDGenerator(gen func() string) OrchestratorOption {
	return func(o *ForecastOrchestrator) {
		if gen != nil {
			o.newRunID = gen
		}
	}
}

func NewForecastOrchestrator(curves domsvc.CurveSource, mapper *contracts.Mapper, combiner *risk.Combiner, opts ...OrchestratorOption) *ForecastOrchestrator {
	o := &ForecastOrchestrator{
		curves:   curves,
		mapper:   mapper,
		combiner: combiner,
		cfg:      DefaultOrchestratorConfig(),
		l:        applogger.Nop(),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.mapper == nil {
		o.mapper = contracts.NewMapper(contracts.WithClock(o.now))
	}
	if o.combiner == nil {
		o.combiner = risk.NewCombiner(risk.DefaultPolicy())
	}
	def := DefaultOrchestratorConfig()
	if o.cfg.MaxContracts <= 0 {
		o.cfg.MaxContracts = def.MaxContracts
	}
	if o.cfg.DefaultConfidence <= 0 || o.cfg.DefaultConfidence > 1 {
		o.cfg.DefaultConfidence = def.DefaultConfidence
	}
	if o.cfg.MaxRiskAdjustment <= 0 {
		o.cfg.MaxRiskAdjustment = def.MaxRiskAdjustment
	}
	if o.cfg.Currency == "" {
		o.cfg.Currency = def.Currency
	}
	if o.cfg.Mapping.MaxDaysToExpiration <= 0 {
		o.cfg.Mapping = def.Mapping
	}
	if o.cfg.PublishTimeout <= 0 {
		o.cfg.PublishTimeout = def.PublishTimeout
	}
	if o.cfg.FallbackConcurrency <= 0 {
		o.cfg.FallbackConcurrency = def.FallbackConcurrency
	}
	return o
}

// run is the state of one Forecast call.
type run struct {
	id       string
	base     string
	req      models.ForecastRequest
	horizons []int
	now      time.Time
	curve    *models.FuturesCurve
	curveErr error
	analysis *models.RiskAnalysis
	resolved map[int]models.MarketConsensusForecast
	pending  []int
	calls    models.ProviderCalls
	warnings []string
}

func (r *run) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

// Forecast produces one forecast per resolvable horizon. It makes exactly one curve call,
// at most one risk call and one fallback call per horizon the curve could not price.
// The risk call runs alongside the curve fetch; fallback calls run concurrently.
func (o *ForecastOrchestrator) Forecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResponse, error) {
	start := time.Now()
	r, err := o.newRun(req)
	if err != nil {
		o.recordError("input")
		return nil, err
	}
	log := o.l.With(applogger.String("run_id", r.id), applogger.String("symbol", r.base))

	o.stage(log, StageFetchCurve)
	riskCtx, cancelRisk := context.WithCancel(ctx)
	defer cancelRisk()
	var (
		g       errgroup.Group
		riskRes *models.Result[*models.RiskAnalysis]
	)
	if r.req.RiskEnabled() && o.risk != nil {
		r.calls.Risk++
		g.Go(func() error {
			res := o.analyzeRisk(riskCtx, r)
			riskRes = &res
			return nil
		})
	}
	curveErr := o.fetchCurve(ctx, r, log)
	if curveErr != nil || r.curve == nil {
		// fallback does not use risk
		cancelRisk()
	}
	_ = g.Wait()
	if riskRes != nil {
		o.recordCall(ProviderRisk, riskRes.Outcome.String())
	}
	if curveErr != nil {
		return nil, curveErr
	}

	if r.curve != nil {
		o.stage(log, StageFetchRisk)
		o.applyRisk(r, riskRes, log)

		o.stage(log, StageCombine)
		if err := o.combine(r); err != nil {
			o.recordError("mapping")
			return nil, err
		}
	} else {
		r.pending = append(r.pending, r.horizons...)
	}

	if len(r.pending) > 0 {
		o.stage(log, StageFallback)
		o.runFallback(ctx, r, log)
	}

	o.stage(log, StageDone)
	resp := o.respond(r)
	if len(resp.Forecasts) == 0 {
		o.recordError("no_forecast")
		cause := r.curveErr
		if cause == nil {
			cause = errors.New("no horizon could be resolved")
		}
		log.Error("forecast exhausted", applogger.Strings("unresolved", resp.Unresolved), applogger.Error(cause))
		return nil, fmt.Errorf("%w for %s: %w", models.ErrNoForecast, r.base, cause)
	}
	if len(resp.Unresolved) > 0 {
		log.Warn("horizons unresolved", applogger.Strings("unresolved", resp.Unresolved))
	}

	for _, f := range resp.Forecasts {
		if o.metrics != nil {
			o.metrics.RecordForecast(r.base, f.Methodology)
		}
	}
	o.publish(ctx, resp, log)
	if o.metrics != nil {
		o.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	}
	log.Info("forecast done",
		applogger.Int("forecasts", len(resp.Forecasts)),
		applogger.Int("curve_calls", r.calls.Curve),
		applogger.Int("risk_calls", r.calls.Risk),
		applogger.Int("fallback_calls", r.calls.Fallback),
	)
	return resp, nil
}

func (o *ForecastOrchestrator) newRun(req models.ForecastRequest) (*run, error) {
	base, err := contracts.NormalizeBase(req.Symbol)
	if err != nil {
		return nil, err
	}
	if !(req.CurrentPrice > 0) {
		return nil, fmt.Errorf("%w: current price must be positive, got %v", models.ErrInvalidRequest, req.CurrentPrice)
	}
	seen := make(map[int]bool, len(req.Horizons))
	horizons := make([]int, 0, len(req.Horizons))
	for _, h := range req.Horizons {
		if h <= 0 {
			return nil, fmt.Errorf("%w: horizon %d must be positive", models.ErrInvalidRequest, h)
		}
		if !seen[h] {
			seen[h] = true
			horizons = append(horizons, h)
		}
	}
	if len(horizons) == 0 {
		return nil, fmt.Errorf("%w: at least one horizon is required", models.ErrInvalidRequest)
	}
	if req.Currency == "" {
		req.Currency = o.cfg.Currency
	}
	if req.MaxRiskAdjustment <= 0 {
		req.MaxRiskAdjustment = o.cfg.MaxRiskAdjustment
	}
	if req.MaxContracts <= 0 {
		req.MaxContracts = o.cfg.MaxContracts
	}
	return &run{
		id:       o.newRunID(),
		base:     base,
		req:      req,
		horizons: horizons,
		now:      o.now().UTC(),
		resolved: make(map[int]models.MarketConsensusForecast, len(horizons)),
	}, nil
}

func (o *ForecastOrchestrator) fetchCurve(ctx context.Context, r *run, log *applogger.Logger) error {
	r.calls.Curve++
	res := o.curves.GetCurve(ctx, r.base, domsvc.CurveOptions{
		MaxContracts:     r.req.MaxContracts,
		ValidateCurve:    true,
		IncludeAnalytics: true,
	})
	o.recordCall(ProviderCurve, res.Outcome.String())

	if res.Usable() && res.Value != nil && len(res.Value.Contracts) > 0 {
		r.curve = res.Value
		for _, w := range res.Warnings {
			r.warn("curve: %s", w)
		}
		return nil
	}

	r.curveErr = res.Err
	if r.curveErr == nil {
		r.curveErr = models.ErrNoDataAvailable
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !r.req.FallbackEnabled() || o.fallback == nil {
		o.recordError(ProviderCurve)
		log.Error("curve unavailable, fallback disabled", applogger.Error(r.curveErr))
		return fmt.Errorf("futures curve for %s: %w", r.base, r.curveErr)
	}
	log.Warn("curve unavailable, using text fallback", applogger.Error(r.curveErr))
	r.warn("curve unavailable: %v", r.curveErr)
	return nil
}

// analyzeRisk issues the single risk call. It only reads r.
func (o *ForecastOrchestrator) analyzeRisk(ctx context.Context, r *run) models.Result[*models.RiskAnalysis] {
	cats := r.req.RiskCategories
	if len(cats) == 0 {
		cats = models.AllRiskTypes()
	}
	return o.risk.Analyze(ctx, r.req.CurrentPrice, r.base, models.RiskQuery{Horizons: r.horizons, Categories: cats})
}

func (o *ForecastOrchestrator) applyRisk(r *run, res *models.Result[*models.RiskAnalysis], log *applogger.Logger) {
	if res == nil {
		return
	}
	if !res.Usable() || res.Value == nil {
		log.Warn("risk analysis unavailable, using market consensus only", applogger.String("reason", res.Reason()))
		r.warn("risk analysis unavailable: %s", res.Reason())
		return
	}
	r.analysis = res.Value
	for _, w := range res.Warnings {
		r.warn("risk: %s", w)
	}
	if res.Value.UsedFallback {
		r.warn("risk: overall confidence not reported, using default %.2f", res.Value.OverallConfidence)
	}
}

func (o *ForecastOrchestrator) combine(r *run) error {
	opts := o.cfg.Mapping
	opts.QuarterlyOnly = r.req.QuarterlyOnly
	mappings, err := o.mapper.MapHorizonsToContracts(r.base, r.horizons, opts)
	if err != nil {
		return err
	}

	confidence := o.confidence(r)
	for _, h := range r.horizons {
		label := contracts.HorizonLabel(h)
		target := r.now.AddDate(0, h, 0)
		symbol, dte := "", contracts.DaysBetween(r.now, target)
		if m, ok := mappings[h]; ok {
			symbol, dte = m.ContractSymbol, m.DaysToExpiration
		}
		cp, ok := consensusPrice(r.curve, symbol, dte)
		if !ok {
			r.pending = append(r.pending, h)
			continue
		}
		if cp.Source == ConsensusInterpolated && symbol != "" {
			cp.Contract = symbol
		}

		var adjs []models.RiskAdjustment
		var total float64
		if r.analysis != nil {
			c := o.combiner.Combine(r.analysis.Adjustments, h, r.req.MaxRiskAdjustment)
			adjs, total = c.Contributing, c.Adjustment
			for _, w := range c.Warnings {
				r.warn("%s: %s", label, w)
			}
		}
		if adjs == nil {
			adjs = []models.RiskAdjustment{}
		}

		consensusP := round(cp.Price)
		adjusted := consensusP
		method := models.MethodCurve
		if len(adjs) > 0 {
			adjusted = applyAdjustment(cp.Price, total)
			method = models.MethodCurveWithRisk
		}

		f := models.MarketConsensusForecast{
			Horizon:              label,
			HorizonMonths:        h,
			ContractSymbol:       cp.Contract,
			MarketConsensusPrice: consensusP,
			RiskAdjustedPrice:    adjusted,
			ForecastPrice:        adjusted,
			Currency:             r.req.Currency,
			PercentageChange:     percentChange(adjusted, r.req.CurrentPrice),
			DateRange:            models.DateRange{Start: r.now, End: target},
			RiskAdjustments:      adjs,
			TotalAdjustment:      round(total),
			Sources:              o.curveSources(r, cp.Source),
			Methodology:          method,
		}
		if r.req.IntervalEnabled() {
			width := IntervalWidth(confidence, len(adjs), o.combiner.WeightedMagnitude(adjs), h)
			f.ConfidenceInterval = buildInterval(adjusted, width, confidence)
			f.ConfidenceLevel = models.ConfidenceLabel(confidence)
		}
		r.resolved[h] = f
	}
	return nil
}

func (o *ForecastOrchestrator) confidence(r *run) float64 {
	if r.analysis == nil {
		return o.cfg.DefaultConfidence
	}
	return r.analysis.OverallConfidence
}

func (o *ForecastOrchestrator) curveSources(r *run, how string) []string {
	src := make([]string, 0, len(r.curve.Sources)+1)
	src = append(src, "futures_curve:"+how)
	src = append(src, r.curve.Sources...)
	if r.analysis != nil {
		src = append(src, r.analysis.Sources...)
	}
	return src
}

func (o *ForecastOrchestrator) runFallback(ctx context.Context, r *run, log *applogger.Logger) {
	if !r.req.FallbackEnabled() || o.fallback == nil {
		return
	}
	type answer struct {
		quote models.FallbackQuote
		ok    bool
		asked bool
	}
	answers := make([]answer, len(r.pending))
	var g errgroup.Group
	g.SetLimit(o.cfg.FallbackConcurrency)
	for i, h := range r.pending {
		i, h := i, h
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fq, ok := o.fallback.Extract(ctx, r.base, contracts.HorizonLabel(h), r.req.CurrentPrice)
			answers[i] = answer{quote: fq, ok: ok && fq.Price > 0, asked: true}
			return nil
		})
	}
	_ = g.Wait()

	for i, h := range r.pending {
		a := answers[i]
		if !a.asked {
			continue
		}
		label := contracts.HorizonLabel(h)
		r.calls.Fallback++
		if !a.ok {
			o.recordCall(ProviderFallback, "empty")
			log.Warn("text fallback found no forecast", applogger.String("horizon", label))
			continue
		}
		o.recordCall(ProviderFallback, models.OutcomeOK.String())

		fq := a.quote
		price := round(fq.Price)
		r.resolved[h] = models.MarketConsensusForecast{
			Horizon:              label,
			HorizonMonths:        h,
			MarketConsensusPrice: price,
			RiskAdjustedPrice:    price,
			ForecastPrice:        price,
			Currency:             r.req.Currency,
			PercentageChange:     percentChange(price, r.req.CurrentPrice),
			DateRange:            models.DateRange{Start: r.now, End: r.now.AddDate(0, h, 0)},
			RiskAdjustments:      []models.RiskAdjustment{},
			ConfidenceLevel:      models.ConfidenceLabel(fq.Confidence),
			Sources:              append([]string(nil), fq.Sources...),
			Methodology:          models.MethodWebSearchFallback,
		}
	}
}

func (o *ForecastOrchestrator) respond(r *run) *models.ForecastResponse {
	resp := &models.ForecastResponse{
		RunID:             r.id,
		Symbol:            r.base,
		CurrentPrice:      r.req.CurrentPrice,
		Currency:          r.req.Currency,
		GeneratedAt:       r.now,
		Forecasts:         make([]models.MarketConsensusForecast, 0, len(r.horizons)),
		Curve:             r.curve,
		OverallConfidence: round(o.confidence(r)),
		Warnings:          r.warnings,
		ProviderCalls:     r.calls,
	}
	if r.analysis != nil {
		resp.KeyFactors = r.analysis.KeyFactors
	}
	for _, h := range r.horizons {
		if f, ok := r.resolved[h]; ok {
			resp.Forecasts = append(resp.Forecasts, f)
			continue
		}
		resp.Unresolved = append(resp.Unresolved, contracts.HorizonLabel(h))
	}
	return resp
}

// publish is best effort; a failure is logged and does not affect the response.
func (o *ForecastOrchestrator) publish(ctx context.Context, resp *models.ForecastResponse, log *applogger.Logger) {
	if o.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PublishTimeout)
	defer cancel()
	if err := o.publisher.PublishForecast(pctx, resp); err != nil {
		o.recordError("publish")
		log.Warn("publish forecast failed", applogger.Error(err))
	}
}

func (o *ForecastOrchestrator) stage(log *applogger.Logger, s Stage) {
	log.Debug("forecast stage", applogger.String("stage", string(s)))
}

func (o *ForecastOrchestrator) recordCall(provider, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordProviderCall(provider, outcome)
	}
}

func (o *ForecastOrchestrator) recordError(kind string) {
	if o.metrics != nil {
		o.metrics.RecordError(kind)
	}
}
