package models

import "time"

// RiskType is the category a risk adjustment belongs to.
type RiskType string

const (
	RiskGeopolitical RiskType = "geopolitical"
	RiskSupplyDemand RiskType = "supply_demand"
	RiskEconomic     RiskType = "economic"
	RiskWeather      RiskType = "weather"
	RiskRegulatory   RiskType = "regulatory"
)

// AllRiskTypes lists every supported category in a stable order.
func AllRiskTypes() []RiskType {
	return []RiskType{RiskGeopolitical, RiskSupplyDemand, RiskEconomic, RiskWeather, RiskRegulatory}
}

type ValidityPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RiskAdjustment is one categorized, signed percentage modifier (0.08 = +8%).
// HorizonMonths of zero means the adjustment applies to every horizon.
type RiskAdjustment struct {
	RiskType         RiskType       `json:"risk_type"`
	AdjustmentFactor float64        `json:"adjustment_factor"`
	ConfidenceImpact float64        `json:"confidence_impact"`
	Description      string         `json:"description"`
	Methodology      string         `json:"methodology"`
	HorizonMonths    int            `json:"horizon_months,omitempty"`
	ValidityPeriod   ValidityPeriod `json:"validity_period"`
	Sources          []string       `json:"sources,omitempty"`
}

// RiskQuery scopes a single risk analysis call to every requested horizon at once.
type RiskQuery struct {
	Horizons   []int
	Categories []RiskType
}

// RiskAnalysis is the payload of one RiskProvider call.
type RiskAnalysis struct {
	Adjustments       []RiskAdjustment `json:"adjustments"`
	OverallConfidence float64          `json:"overall_confidence"`
	KeyFactors        []string         `json:"key_factors"`
	UsedFallback      bool             `json:"used_fallback"`
	Sources           []string         `json:"sources,omitempty"`
}

// FallbackQuote is a best-effort price recovered from free text.
type FallbackQuote struct {
	Price      float64
	Confidence float64
	Sources    []string
}
