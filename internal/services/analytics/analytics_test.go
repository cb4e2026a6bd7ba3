package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FuturesCast/internal/domain/models"
	applogger "FuturesCast/pkg/logger"
)

type fakeChat struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
	}, nil
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newBase(chat ChatCompleter, attempts int, failures uint32) *LLMBase {
	return NewLLMBase(chat, LLMOptions{
		Model:           "gpt-4o-mini",
		Attempts:        attempts,
		Backoff:         time.Millisecond,
		BreakerFailures: failures,
		BreakerCooldown: time.Minute,
	}, applogger.Nop())
}

var analyzerNow = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

func TestRiskAnalyzer_ParsesSingleCall(t *testing.T) {
	chat := &fakeChat{content: "```json\n" + `{
		"adjustments": [
			{"risk_type": "supply_demand", "adjustment_factor": 0.05, "confidence_impact": 0.1, "description": "OPEC cuts", "horizon_months": 6},
			{"risk_type": "Geopolitical", "adjustment_factor": -0.02, "description": "ceasefire talks"},
			{"risk_type": "political", "adjustment_factor": 0.04},
			{"risk_type": "economic", "adjustment_factor": 0.01, "horizon_months": 9},
			{"risk_type": "weather", "description": "no factor"}
		],
		"overall_confidence": 0.7,
		"key_factors": ["OPEC+ policy"]
	}` + "\n```"}
	a := NewOpenAIRiskAnalyzer(newBase(chat, 1, 5), nil).WithClock(func() time.Time { return analyzerNow })

	res := a.Analyze(context.Background(), 75, "CL", models.RiskQuery{Horizons: []int{6, 3}})

	require.Equal(t, models.OutcomeDegraded, res.Outcome)
	assert.Len(t, res.Warnings, 3)
	require.Len(t, res.Value.Adjustments, 2)
	assert.Equal(t, models.RiskSupplyDemand, res.Value.Adjustments[0].RiskType)
	assert.Equal(t, 6, res.Value.Adjustments[0].HorizonMonths)
	assert.Equal(t, models.RiskGeopolitical, res.Value.Adjustments[1].RiskType)
	assert.Equal(t, analyzerNow.AddDate(0, 6, 0), res.Value.Adjustments[0].ValidityPeriod.End)
	assert.Equal(t, 0.7, res.Value.OverallConfidence)
	assert.Equal(t, []string{"OPEC+ policy"}, res.Value.KeyFactors)

	require.Equal(t, 1, chat.calls())
	req := chat.requests[0]
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	assert.Contains(t, req.Messages[1].Content, "3, 6")
}

func TestRiskAnalyzer_DefaultsConfidence(t *testing.T) {
	chat := &fakeChat{content: `{"adjustments": []}`}
	res := NewOpenAIRiskAnalyzer(newBase(chat, 1, 5), nil).
		Analyze(context.Background(), 75, "CL", models.RiskQuery{Horizons: []int{3}})

	require.Equal(t, models.OutcomeOK, res.Outcome)
	assert.Equal(t, 0.6, res.Value.OverallConfidence)
	assert.True(t, res.Value.UsedFallback)
	assert.Empty(t, res.Value.Adjustments)
}

func TestRiskAnalyzer_ReportedConfidenceIsNotFallback(t *testing.T) {
	chat := &fakeChat{content: `{"adjustments": [], "overall_confidence": 0.45}`}
	res := NewOpenAIRiskAnalyzer(newBase(chat, 1, 5), nil).
		Analyze(context.Background(), 75, "CL", models.RiskQuery{Horizons: []int{3}})

	require.Equal(t, models.OutcomeOK, res.Outcome)
	assert.Equal(t, 0.45, res.Value.OverallConfidence)
	assert.False(t, res.Value.UsedFallback)
}

func TestRiskAnalyzer_RestrictsCategories(t *testing.T) {
	chat := &fakeChat{content: `{"adjustments": [
		{"risk_type": "weather", "adjustment_factor": 0.02},
		{"risk_type": "economic", "adjustment_factor": 0.01}
	]}`}
	res := NewOpenAIRiskAnalyzer(newBase(chat, 1, 5), nil).Analyze(context.Background(), 3.2, "NG",
		models.RiskQuery{Horizons: []int{3}, Categories: []models.RiskType{models.RiskWeather}})

	require.True(t, res.Usable())
	require.Len(t, res.Value.Adjustments, 1)
	assert.Equal(t, models.RiskWeather, res.Value.Adjustments[0].RiskType)
}

func TestRiskAnalyzer_InvalidJSONFails(t *testing.T) {
	chat := &fakeChat{content: "I cannot help with that."}
	res := NewOpenAIRiskAnalyzer(newBase(chat, 1, 5), nil).
		Analyze(context.Background(), 75, "CL", models.RiskQuery{Horizons: []int{3}})

	require.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, models.ErrProviderUnavailable)
}

func TestLLMBase_RetriesThenFails(t *testing.T) {
	chat := &fakeChat{err: errors.New("503 service unavailable")}
	res := NewOpenAIRiskAnalyzer(newBase(chat, 3, 10), nil).
		Analyze(context.Background(), 75, "CL", models.RiskQuery{Horizons: []int{3}})

	require.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, models.ErrProviderUnavailable)
	assert.Contains(t, res.Reason(), "503")
	assert.Equal(t, 3, chat.calls())
}

func TestLLMBase_BreakerOpens(t *testing.T) {
	chat := &fakeChat{err: errors.New("timeout")}
	base := newBase(chat, 1, 1)

	_, err := base.Complete(context.Background(), "", "first", false)
	require.Error(t, err)
	_, err = base.Complete(context.Background(), "", "second", false)
	require.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Equal(t, 1, chat.calls())
}

func TestLLMBase_NilClient(t *testing.T) {
	_, err := NewLLMBase(nil, LLMOptions{}, nil).Complete(context.Background(), "", "x", false)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestWebSearchFallback_Extract(t *testing.T) {
	chat := &fakeChat{content: "WTI crude trades near $75.10 today. " +
		"Analysts expect WTI to average $78.50 per barrel over the next 3 months " +
		"(https://www.eia.gov/outlooks/steo/)."}
	f := NewWebSearchFallback(newBase(chat, 1, 5), nil, nil)

	q, ok := f.Extract(context.Background(), "CL", "3-month", 75)
	require.True(t, ok)
	assert.Equal(t, 78.50, q.Price)
	assert.Equal(t, fallbackConfidence, q.Confidence)
	assert.Equal(t, []string{"https://www.eia.gov/outlooks/steo/"}, q.Sources)
	assert.Nil(t, chat.requests[0].ResponseFormat)
	assert.Contains(t, chat.requests[0].Messages[0].Content, ForecastLabel)
}

func TestWebSearchFallback_NeverFails(t *testing.T) {
	f := NewWebSearchFallback(newBase(&fakeChat{err: errors.New("boom")}, 1, 5), nil, nil)
	_, ok := f.Extract(context.Background(), "CL", "3-month", 75)
	assert.False(t, ok)

	f = NewWebSearchFallback(newBase(&fakeChat{content: "No forecast is available."}, 1, 5), nil, nil)
	_, ok = f.Extract(context.Background(), "CL", "3-month", 75)
	assert.False(t, ok)
}

func TestRegexPriceExtractor(t *testing.T) {
	e := NewRegexPriceExtractor()
	tests := []struct {
		name    string
		text    string
		current float64
		want    float64
		ok      bool
	}{
		{"forecast sentence", "Analysts expect WTI crude to average $78.50 per barrel over the next 3 months.", 75, 78.50, true},
		{"forecast beats spot", "Crude trades at $74.10 today. Goldman sees a Brent forecast of $82 by Q3 2025.", 74, 82, true},
		{"skips percentages", "Prices are expected to rise 8% to 81.20.", 75, 81.20, true},
		{"currency beats bare number", "WTI closed at 74.2 yesterday, with support around $72.5 on the chart", 75, 72.5, true},
		{"forecast after spot in one sentence", "WTI currently trades at $75.10, and the EIA forecast for the next 3 months is $78.50 per barrel.", 75, 78.50, true},
		{"labelled line wins", "Brent is expected near $80 this summer.\nForecast price: 77.25", 75, 77.25, true},
		{"thousands separator", "Gold is forecast to hit $2,150.50 an ounce in 2025.", 2000, 2150.50, true},
		{"nothing plausible", "Expect 5% growth in demand.", 75, 0, false},
		{"empty", "  ", 75, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.ExtractPrice(tt.text, tt.current)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractSources(t *testing.T) {
	got := ExtractSources("See https://example.com/a. Also (https://x.org/b) and https://example.com/a")
	assert.Equal(t, []string{"https://example.com/a", "https://x.org/b"}, got)
}
