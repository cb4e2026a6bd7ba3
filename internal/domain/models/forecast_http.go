package models

// Requests for forecasting HTTP endpoints. Defined in domain for consistency and reuse.

type ForecastRequest struct {
	Symbol                    string     `json:"symbol" validate:"required,alpha,min=1,max=3"`
	CurrentPrice              float64    `json:"current_price" validate:"gt=0"`
	Currency                  string     `json:"currency" default:"USD" validate:"len=3"`
	Horizons                  []int      `json:"horizons" validate:"required,min=1,max=24,dive,gte=1,lte=36"`
	MaxRiskAdjustment         float64    `json:"max_risk_adjustment" default:"0.25" validate:"gt=0,lte=1"`
	EnableRiskAdjustment      *bool      `json:"enable_risk_adjustment" default:"true"`
	IncludeConfidenceInterval *bool      `json:"include_confidence_interval" default:"true"`
	FallbackToWebSearch       *bool      `json:"fallback_to_web_search" default:"true"`
	QuarterlyOnly             bool       `json:"quarterly_only"`
	MaxContracts              int        `json:"max_contracts" default:"12" validate:"gte=2,lte=36"`
	RiskCategories            []RiskType `json:"risk_categories" validate:"dive,oneof=geopolitical supply_demand economic weather regulatory"`
}

func (r *ForecastRequest) RiskEnabled() bool     { return boolOr(r.EnableRiskAdjustment, true) }
func (r *ForecastRequest) IntervalEnabled() bool { return boolOr(r.IncludeConfidenceInterval, true) }
func (r *ForecastRequest) FallbackEnabled() bool { return boolOr(r.FallbackToWebSearch, true) }

type CurveRequest struct {
	Symbol       string `query:"symbol" json:"symbol" validate:"required,alpha,min=1,max=3"`
	MaxContracts int    `query:"max_contracts" json:"max_contracts" default:"12" validate:"gte=1,lte=36"`
	Monthly      bool   `query:"monthly" json:"monthly"`
}

type ContractMapRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required,alpha,min=1,max=3"`
	Horizons  string `query:"horizons" json:"horizons" default:"1,3,6,12" validate:"required"`
	Quarterly bool   `query:"quarterly" json:"quarterly"`
	MinDays   int    `query:"min_days" json:"min_days" default:"30" validate:"gte=0"`
	MaxDays   int    `query:"max_days" json:"max_days" default:"1095" validate:"gtfield=MinDays"`
}

type ExpirationRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,min=4,max=6"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
