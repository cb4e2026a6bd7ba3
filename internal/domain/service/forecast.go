package service

import (
	"context"

	"FuturesCast/internal/domain/models"
)

// CurveOptions controls which contracts a curve request covers.
type CurveOptions struct {
	ContractMonths   []string
	ContractYear     int
	MaxContracts     int
	ValidateCurve    bool
	IncludeAnalytics bool
}

// CurveSource assembles a futures curve for one underlying.
type CurveSource interface {
	GetCurve(ctx context.Context, base string, opts CurveOptions) models.Result[*models.FuturesCurve]
}

// RiskProvider scores risk factors for every requested horizon in one call.
type RiskProvider interface {
	Analyze(ctx context.Context, currentPrice float64, symbol string, q models.RiskQuery) models.Result[*models.RiskAnalysis]
}

// TextForecastFallback recovers a price for one horizon from free text. It never fails;
// ok=false means no forecast was found.
type TextForecastFallback interface {
	Extract(ctx context.Context, symbol, horizonLabel string, currentPrice float64) (models.FallbackQuote, bool)
}

// PriceExtractor pulls a price out of raw text.
type PriceExtractor interface {
	ExtractPrice(text string, currentPrice float64) (float64, bool)
}
