package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FuturesCast/internal/domain/models"
	domsvc "FuturesCast/internal/domain/service"
	"FuturesCast/internal/services/contracts"
	"FuturesCast/internal/services/risk"
)

var testNow = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

func testCurve() *models.FuturesCurve {
	return &models.FuturesCurve{
		UnderlyingSymbol: "CL",
		CurveDate:        testNow,
		Contracts: []models.FuturesContract{
			{Symbol: "CLH25", Price: 76.20, DaysToExpiration: 36},
			{Symbol: "CLM25", Price: 76.80, DaysToExpiration: 125},
			{Symbol: "CLU25", Price: 77.40, DaysToExpiration: 217},
			{Symbol: "CLZ25", Price: 78.10, DaysToExpiration: 309},
		},
		Sources: []string{"quotes_api"},
	}
}

type fakeCurves struct {
	mu    sync.Mutex
	calls int
	res   models.Result[*models.FuturesCurve]
}

func (f *fakeCurves) GetCurve(_ context.Context, _ string, _ domsvc.CurveOptions) models.Result[*models.FuturesCurve] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res
}

type fakeRisk struct {
	mu    sync.Mutex
	calls int
	query models.RiskQuery
	delay time.Duration
	res   models.Result[*models.RiskAnalysis]
}

func (f *fakeRisk) Analyze(ctx context.Context, _ float64, _ string, q models.RiskQuery) models.Result[*models.RiskAnalysis] {
	f.mu.Lock()
	f.calls++
	f.query = q
	f.mu.Unlock()
	if err := sleepCtx(ctx, f.delay); err != nil {
		return models.Failed[*models.RiskAnalysis](err)
	}
	return f.res
}

type fakeFallback struct {
	mu     sync.Mutex
	calls  int
	delay  time.Duration
	prices map[string]float64
}

func (f *fakeFallback) Extract(ctx context.Context, _, horizon string, _ float64) (models.FallbackQuote, bool) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if sleepCtx(ctx, f.delay) != nil {
		return models.FallbackQuote{}, false
	}
	p, ok := f.prices[horizon]
	if !ok {
		return models.FallbackQuote{}, false
	}
	return models.FallbackQuote{Price: p, Confidence: 0.3, Sources: []string{"https://www.eia.gov/steo"}}, true
}

// slowCurves answers after delay, like a quotes API under load.
type slowCurves struct {
	delay time.Duration
	res   models.Result[*models.FuturesCurve]
}

func (f *slowCurves) GetCurve(ctx context.Context, _ string, _ domsvc.CurveOptions) models.Result[*models.FuturesCurve] {
	if err := sleepCtx(ctx, f.delay); err != nil {
		return models.Failed[*models.FuturesCurve](err)
	}
	return f.res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type fakeMetrics struct {
	calls  map[string]int
	errors map[string]int
	fcs    int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{calls: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordProviderCall(provider, _ string) { m.calls[provider]++ }
func (m *fakeMetrics) RecordForecast(_, _ string)            { m.fcs++ }
func (m *fakeMetrics) RecordError(kind string)               { m.errors[kind]++ }
func (m *fakeMetrics) RecordLatency(_ string, _ float64)     {}

type fakePublisher struct {
	published []*models.ForecastResponse
	err       error
}

func (p *fakePublisher) PublishForecast(_ context.Context, resp *models.ForecastResponse) error {
	p.published = append(p.published, resp)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func supplyShock() models.Result[*models.RiskAnalysis] {
	return models.OK(&models.RiskAnalysis{
		Adjustments: []models.RiskAdjustment{
			{RiskType: models.RiskSupplyDemand, AdjustmentFactor: 0.50, Description: "OPEC+ cuts"},
		},
		OverallConfidence: 0.8,
		KeyFactors:        []string{"OPEC+ supply discipline"},
	})
}

func newTestOrchestrator(curves domsvc.CurveSource, opts ...OrchestratorOption) *ForecastOrchestrator {
	clock := func() time.Time { return testNow }
	base := []OrchestratorOption{
		WithClock(clock),
		WithRunIDGenerator(func() string { return "run-fixed" }),
	}
	return NewForecastOrchestrator(curves,
		contracts.NewMapper(contracts.WithClock(clock)),
		risk.NewCombiner(risk.DefaultPolicy()),
		append(base, opts...)...,
	)
}

func request(horizons ...int) models.ForecastRequest {
	return models.ForecastRequest{
		Symbol:        "CL",
		CurrentPrice:  75,
		Horizons:      horizons,
		QuarterlyOnly: true,
	}
}

func boolPtr(b bool) *bool { return &b }

func TestForecast_RiskFailureUsesConsensus(t *testing.T) {
	curves := &fakeCurves{res: models.OK(testCurve())}
	rp := &fakeRisk{res: models.Failed[*models.RiskAnalysis](fmt.Errorf("%w: openai timeout", models.ErrProviderUnavailable))}
	o := newTestOrchestrator(curves, WithRiskProvider(rp))

	resp, err := o.Forecast(context.Background(), request(3, 6))
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 2)

	f := resp.Forecasts[0]
	assert.Equal(t, "3-month", f.Horizon)
	assert.Equal(t, "CLM25", f.ContractSymbol)
	assert.Equal(t, 76.8, f.MarketConsensusPrice)
	assert.Equal(t, f.MarketConsensusPrice, f.RiskAdjustedPrice)
	assert.Equal(t, f.RiskAdjustedPrice, f.ForecastPrice)
	assert.Empty(t, f.RiskAdjustments)
	assert.NotNil(t, f.RiskAdjustments)
	assert.Equal(t, models.MethodCurve, f.Methodology)
	assert.InDelta(t, 2.4, f.PercentageChange, 1e-9)
	require.NotNil(t, f.ConfidenceInterval)
	assert.Equal(t, 0.6, f.ConfidenceInterval.Confidence)

	assert.Equal(t, 77.4, resp.Forecasts[1].ForecastPrice)
	assert.Equal(t, models.ProviderCalls{Curve: 1, Risk: 1}, resp.ProviderCalls)
	assert.Contains(t, resp.Warnings[0], "openai timeout")
}

func TestForecast_RiskAdjustmentCapped(t *testing.T) {
	curves := &fakeCurves{res: models.OK(testCurve())}
	o := newTestOrchestrator(curves, WithRiskProvider(&fakeRisk{res: supplyShock()}))

	resp, err := o.Forecast(context.Background(), request(6, 12))
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 2)

	six := resp.Forecasts[0]
	assert.Equal(t, 77.4, six.MarketConsensusPrice)
	assert.Equal(t, 0.25, six.TotalAdjustment)
	assert.Equal(t, 96.75, six.ForecastPrice)
	assert.Equal(t, models.MethodCurveWithRisk, six.Methodology)
	require.Len(t, six.RiskAdjustments, 1)
	assert.Equal(t, 0.25, six.RiskAdjustments[0].AdjustmentFactor)
	assert.Equal(t, "high", six.ConfidenceLevel)

	// CLH26 is beyond the curve; the nearest contract prices the horizon.
	twelve := resp.Forecasts[1]
	assert.Equal(t, "CLZ25", twelve.ContractSymbol)
	assert.Equal(t, 78.1, twelve.MarketConsensusPrice)
	assert.LessOrEqual(t, twelve.TotalAdjustment, 0.25)
	assert.Equal(t, 97.625, twelve.ForecastPrice)
	assert.Equal(t, []string{"OPEC+ supply discipline"}, resp.KeyFactors)
	assert.Equal(t, 0.8, resp.OverallConfidence)
}

func TestForecast_RiskDisabled(t *testing.T) {
	curves := &fakeCurves{res: models.OK(testCurve())}
	rp := &fakeRisk{res: supplyShock()}
	o := newTestOrchestrator(curves, WithRiskProvider(rp))

	req := request(3)
	req.EnableRiskAdjustment = boolPtr(false)
	resp, err := o.Forecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, rp.calls)
	assert.Equal(t, models.MethodCurve, resp.Forecasts[0].Methodology)
	assert.Equal(t, 76.8, resp.Forecasts[0].ForecastPrice)
}

func TestForecast_CurveFailureFallsBack(t *testing.T) {
	curves := &fakeCurves{res: models.Failed[*models.FuturesCurve](models.ErrNoDataAvailable)}
	rp := &fakeRisk{res: supplyShock()}
	fb := &fakeFallback{prices: map[string]float64{"3-month": 78.50}}
	o := newTestOrchestrator(curves, WithRiskProvider(rp), WithTextFallback(fb))

	resp, err := o.Forecast(context.Background(), request(3))
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 1)

	f := resp.Forecasts[0]
	assert.True(t, f.IsFallback())
	assert.Equal(t, models.MethodWebSearchFallback, f.Methodology)
	assert.Equal(t, 78.50, f.ForecastPrice)
	assert.Equal(t, 78.50, f.RiskAdjustedPrice)
	assert.Nil(t, f.ConfidenceInterval)
	assert.Equal(t, "low", f.ConfidenceLevel)
	assert.Equal(t, []string{"https://www.eia.gov/steo"}, f.Sources)
	assert.Nil(t, resp.Curve)
	assert.Empty(t, f.RiskAdjustments)
	assert.Empty(t, resp.KeyFactors)
	// risk was started alongside the curve and its result dropped
	assert.Equal(t, models.ProviderCalls{Curve: 1, Risk: 1, Fallback: 1}, resp.ProviderCalls)
	assert.Equal(t, 1, rp.calls)
}

func TestForecast_WarnsOnDefaultRiskConfidence(t *testing.T) {
	analysis := supplyShock()
	analysis.Value.OverallConfidence = 0.6
	analysis.Value.UsedFallback = true
	curves := &fakeCurves{res: models.OK(testCurve())}
	o := newTestOrchestrator(curves, WithRiskProvider(&fakeRisk{res: analysis}))

	resp, err := o.Forecast(context.Background(), request(3))
	require.NoError(t, err)
	assert.Contains(t, resp.Warnings, "risk: overall confidence not reported, using default 0.60")
	assert.Equal(t, 0.6, resp.OverallConfidence)
}

func TestForecast_RiskRunsAlongsideCurve(t *testing.T) {
	const delay = 100 * time.Millisecond
	curves := &slowCurves{delay: delay, res: models.OK(testCurve())}
	rp := &fakeRisk{delay: delay, res: supplyShock()}
	o := newTestOrchestrator(curves, WithRiskProvider(rp))

	start := time.Now()
	resp, err := o.Forecast(context.Background(), request(3, 6))
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 2)
	assert.Equal(t, models.MethodCurveWithRisk, resp.Forecasts[0].Methodology)
	assert.Less(t, elapsed, 2*delay-20*time.Millisecond, "curve and risk should overlap")
}

func TestForecast_CurveFailureCancelsRisk(t *testing.T) {
	curves := &slowCurves{delay: 20 * time.Millisecond, res: models.Failed[*models.FuturesCurve](models.ErrNoDataAvailable)}
	rp := &fakeRisk{delay: 5 * time.Second, res: supplyShock()}
	fb := &fakeFallback{prices: map[string]float64{"3-month": 78.50}}
	o := newTestOrchestrator(curves, WithRiskProvider(rp), WithTextFallback(fb))

	start := time.Now()
	resp, err := o.Forecast(context.Background(), request(3))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, resp.Forecasts, 1)
	assert.Equal(t, models.MethodWebSearchFallback, resp.Forecasts[0].Methodology)
	for _, w := range resp.Warnings {
		assert.NotContains(t, w, "risk analysis unavailable")
	}
}

func TestForecast_FallbackCallsRunConcurrently(t *testing.T) {
	const delay = 100 * time.Millisecond
	curves := &fakeCurves{res: models.Failed[*models.FuturesCurve](models.ErrNoDataAvailable)}
	fb := &fakeFallback{delay: delay, prices: map[string]float64{
		"1-month": 76, "3-month": 77, "6-month": 78, "12-month": 79, "24-month": 80,
	}}
	cfg := DefaultOrchestratorConfig()
	cfg.FallbackConcurrency = 5
	o := newTestOrchestrator(curves, WithTextFallback(fb), WithConfig(cfg))

	start := time.Now()
	resp, err := o.Forecast(context.Background(), request(1, 3, 6, 12, 24))
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 5)
	assert.Equal(t, 5, resp.ProviderCalls.Fallback)
	assert.Less(t, elapsed, 3*delay, "fallback calls should overlap")

	// results stay in horizon order regardless of completion order
	for i, want := range []float64{76, 77, 78, 79, 80} {
		assert.Equal(t, want, resp.Forecasts[i].ForecastPrice)
	}
}

func TestForecast_FallbackConcurrencyIsBounded(t *testing.T) {
	const delay = 60 * time.Millisecond
	curves := &fakeCurves{res: models.Failed[*models.FuturesCurve](models.ErrNoDataAvailable)}
	fb := &fakeFallback{delay: delay, prices: map[string]float64{"1-month": 76, "3-month": 77, "6-month": 78, "12-month": 79}}
	cfg := DefaultOrchestratorConfig()
	cfg.FallbackConcurrency = 2
	o := newTestOrchestrator(curves, WithTextFallback(fb), WithConfig(cfg))

	start := time.Now()
	resp, err := o.Forecast(context.Background(), request(1, 3, 6, 12))
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 4)
	// four calls two at a time take at least two rounds
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
}

func TestForecast_PartialFallbackListsUnresolved(t *testing.T) {
	curves := &fakeCurves{res: models.Failed[*models.FuturesCurve](models.ErrNoDataAvailable)}
	fb := &fakeFallback{prices: map[string]float64{"3-month": 78.50}}
	o := newTestOrchestrator(curves, WithTextFallback(fb))

	resp, err := o.Forecast(context.Background(), request(3, 6))
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 1)
	assert.Equal(t, []string{"6-month"}, resp.Unresolved)
	assert.Equal(t, 2, resp.ProviderCalls.Fallback)
}

func TestForecast_CurveFailureWithoutFallback(t *testing.T) {
	cause := fmt.Errorf("%w: only 1 contract", models.ErrInsufficientCurveData)
	curves := &fakeCurves{res: models.Failed[*models.FuturesCurve](cause)}
	fb := &fakeFallback{prices: map[string]float64{"3-month": 78.50}}
	o := newTestOrchestrator(curves, WithTextFallback(fb))

	req := request(3)
	req.FallbackToWebSearch = boolPtr(false)
	_, err := o.Forecast(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientCurveData)
	assert.Contains(t, err.Error(), "only 1 contract")
	assert.Equal(t, 0, fb.calls)
}

func TestForecast_NothingResolved(t *testing.T) {
	curves := &fakeCurves{res: models.Failed[*models.FuturesCurve](models.ErrNoDataAvailable)}
	m := newFakeMetrics()
	o := newTestOrchestrator(curves, WithTextFallback(&fakeFallback{}), WithMetrics(m))

	_, err := o.Forecast(context.Background(), request(3, 6))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoForecast)
	assert.ErrorIs(t, err, models.ErrNoDataAvailable)
	assert.Equal(t, 1, m.errors["no_forecast"])
	assert.Equal(t, 2, m.calls[ProviderFallback])
}

func TestForecast_CallCountIndependentOfHorizons(t *testing.T) {
	for _, horizons := range [][]int{{1}, {1, 3, 6, 12, 24}} {
		curves := &fakeCurves{res: models.OK(testCurve())}
		rp := &fakeRisk{res: supplyShock()}
		m := newFakeMetrics()
		o := newTestOrchestrator(curves, WithRiskProvider(rp), WithMetrics(m))

		resp, err := o.Forecast(context.Background(), request(horizons...))
		require.NoError(t, err)
		assert.Len(t, resp.Forecasts, len(horizons))
		assert.Equal(t, 1, curves.calls)
		assert.Equal(t, 1, rp.calls)
		assert.Equal(t, horizons, rp.query.Horizons)
		assert.Equal(t, map[string]int{ProviderCurve: 1, ProviderRisk: 1}, m.calls)
		assert.Equal(t, len(horizons), m.fcs)
	}
}

func TestForecast_Idempotent(t *testing.T) {
	curves := &fakeCurves{res: models.OK(testCurve())}
	o := newTestOrchestrator(curves, WithRiskProvider(&fakeRisk{res: supplyShock()}))

	a, err := o.Forecast(context.Background(), request(1, 3, 6, 12, 24))
	require.NoError(t, err)
	b, err := o.Forecast(context.Background(), request(1, 3, 6, 12, 24))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForecast_IntervalBracketsForecast(t *testing.T) {
	curves := &fakeCurves{res: models.OK(testCurve())}
	o := newTestOrchestrator(curves, WithRiskProvider(&fakeRisk{res: supplyShock()}))

	resp, err := o.Forecast(context.Background(), request(1, 3, 6, 12, 24))
	require.NoError(t, err)
	for _, f := range resp.Forecasts {
		ci := f.ConfidenceInterval
		require.NotNil(t, ci, f.Horizon)
		assert.Less(t, ci.Lower, f.ForecastPrice)
		assert.Greater(t, ci.Upper, f.ForecastPrice)
		width := (ci.Upper - ci.Lower) / f.ForecastPrice
		assert.Greater(t, width, 0.0)
		assert.Less(t, width, 1.0)
		assert.InDelta(t, 0.275, width, 0.226, f.Horizon)
	}
}

func TestForecast_IntervalDisabled(t *testing.T) {
	o := newTestOrchestrator(&fakeCurves{res: models.OK(testCurve())})
	req := request(3)
	req.IncludeConfidenceInterval = boolPtr(false)
	resp, err := o.Forecast(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp.Forecasts[0].ConfidenceInterval)
	assert.Empty(t, resp.Forecasts[0].ConfidenceLevel)
}

func TestForecast_InputErrors(t *testing.T) {
	curves := &fakeCurves{res: models.OK(testCurve())}
	o := newTestOrchestrator(curves)

	req := request(3)
	req.Symbol = "C1"
	_, err := o.Forecast(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidSymbolFormat)

	req = request(3)
	req.CurrentPrice = 0
	_, err = o.Forecast(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = o.Forecast(context.Background(), request())
	assert.True(t, models.IsInputError(err))
	assert.Equal(t, 0, curves.calls)
}

func TestForecast_DuplicateHorizonsCollapse(t *testing.T) {
	o := newTestOrchestrator(&fakeCurves{res: models.OK(testCurve())})
	resp, err := o.Forecast(context.Background(), request(6, 3, 6))
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 2)
	assert.Equal(t, "6-month", resp.Forecasts[0].Horizon)
	assert.Equal(t, "3-month", resp.Forecasts[1].Horizon)
}

func TestForecast_PublishIsBestEffort(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	m := newFakeMetrics()
	o := newTestOrchestrator(&fakeCurves{res: models.OK(testCurve())}, WithPublisher(pub), WithMetrics(m))

	resp, err := o.Forecast(context.Background(), request(3))
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Same(t, resp, pub.published[0])
	assert.Equal(t, "run-fixed", resp.RunID)
	assert.Equal(t, 1, m.errors["publish"])
}

func TestConsensusPrice(t *testing.T) {
	curve := testCurve()

	c, ok := consensusPrice(curve, "CLU25", 217)
	require.True(t, ok)
	assert.Equal(t, ConsensusExact, c.Source)
	assert.Equal(t, 77.4, c.Price)

	c, ok = consensusPrice(curve, "CLK25", 80)
	require.True(t, ok)
	assert.Equal(t, ConsensusInterpolated, c.Source)
	assert.InDelta(t, 76.2+44.0/89.0*0.6, c.Price, 1e-9)

	c, ok = consensusPrice(curve, "", 10)
	require.True(t, ok)
	assert.Equal(t, ConsensusNearest, c.Source)
	assert.Equal(t, "CLH25", c.Contract)

	c, ok = consensusPrice(curve, "CLH27", 766)
	require.True(t, ok)
	assert.Equal(t, "CLZ25", c.Contract)

	_, ok = consensusPrice(&models.FuturesCurve{}, "CLZ25", 30)
	assert.False(t, ok)
	_, ok = consensusPrice(nil, "CLZ25", 30)
	assert.False(t, ok)
}

func TestIntervalWidth(t *testing.T) {
	assert.Equal(t, MinIntervalWidth, IntervalWidth(1, 0, 0, 0))
	assert.Equal(t, MaxIntervalWidth, IntervalWidth(0, 10, 1, 24))
	assert.InDelta(t, 2*(0.02+0.04*0.5), IntervalWidth(1, 0, 0, 3), 1e-12)

	for conf := 0.0; conf <= 1.0; conf += 0.1 {
		for n := 0; n <= 5; n++ {
			for _, months := range []int{1, 3, 6, 12, 24, 36} {
				w := IntervalWidth(conf, n, 0.05*float64(n), months)
				assert.GreaterOrEqual(t, w, MinIntervalWidth)
				assert.LessOrEqual(t, w, MaxIntervalWidth)

				ci := buildInterval(77.4, w, conf)
				assert.Less(t, ci.Lower, 77.4)
				assert.Greater(t, ci.Upper, 77.4)
			}
		}
	}
}
