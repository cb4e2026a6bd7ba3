package models

import "time"

const (
	MethodCurveWithRisk     = "futures_curve_with_risk_adjustment"
	MethodCurve             = "futures_curve"
	MethodWebSearchFallback = "web_search_fallback"
)

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ConfidenceInterval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// MarketConsensusForecast is the forecast emitted for one horizon.
// ForecastPrice always equals RiskAdjustedPrice.
type MarketConsensusForecast struct {
	Horizon              string              `json:"horizon"`
	HorizonMonths        int                 `json:"horizon_months"`
	ContractSymbol       string              `json:"contract_symbol,omitempty"`
	MarketConsensusPrice float64             `json:"market_consensus_price"`
	RiskAdjustedPrice    float64             `json:"risk_adjusted_price"`
	ForecastPrice        float64             `json:"forecast_price"`
	Currency             string              `json:"currency"`
	PercentageChange     float64             `json:"percentage_change"`
	DateRange            DateRange           `json:"date_range"`
	RiskAdjustments      []RiskAdjustment    `json:"risk_adjustments"`
	TotalAdjustment      float64             `json:"total_adjustment"`
	ConfidenceInterval   *ConfidenceInterval `json:"confidence_interval,omitempty"`
	ConfidenceLevel      string              `json:"confidence_level,omitempty"`
	Sources              []string            `json:"sources"`
	Methodology          string              `json:"methodology"`
}

// IsFallback reports whether the forecast came from text extraction rather than the curve.
func (f MarketConsensusForecast) IsFallback() bool {
	return f.Methodology == MethodWebSearchFallback
}

// ProviderCalls counts upstream calls made while serving one request.
type ProviderCalls struct {
	Curve    int `json:"curve"`
	Risk     int `json:"risk"`
	Fallback int `json:"fallback"`
}

type ForecastResponse struct {
	RunID             string                    `json:"run_id"`
	Symbol            string                    `json:"symbol"`
	CurrentPrice      float64                   `json:"current_price"`
	Currency          string                    `json:"currency"`
	GeneratedAt       time.Time                 `json:"generated_at"`
	Forecasts         []MarketConsensusForecast `json:"forecasts"`
	Unresolved        []string                  `json:"unresolved,omitempty"`
	Curve             *FuturesCurve             `json:"curve,omitempty"`
	KeyFactors        []string                  `json:"key_factors,omitempty"`
	OverallConfidence float64                   `json:"overall_confidence"`
	Warnings          []string                  `json:"warnings,omitempty"`
	ProviderCalls     ProviderCalls             `json:"provider_calls"`
}

// ConfidenceLabel buckets a [0,1] confidence into a coarse level.
func ConfidenceLabel(c float64) string {
	switch {
	case c >= 0.75:
		return "high"
	case c >= 0.5:
		return "medium"
	default:
		return "low"
	}
}
