package models

import "errors"

var (
	// Input errors: fatal, never retried.
	ErrInvalidSymbolFormat = errors.New("invalid contract symbol format")
	ErrInvalidMonth        = errors.New("invalid contract month")
	ErrInvalidYear         = errors.New("invalid contract year")
	ErrInvalidRequest      = errors.New("invalid forecast request")

	// Data-quality errors: fatal for the curve, trigger fallback when enabled.
	ErrInsufficientCurveData    = errors.New("insufficient curve data")
	ErrExcessiveLiquidityIssues = errors.New("excessive liquidity issues")
	ErrNoDataAvailable          = errors.New("no data available")

	// Upstream errors.
	ErrContractNotFound    = errors.New("contract not found")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoForecast means no horizon could be resolved by any path.
	ErrNoForecast = errors.New("no forecast available")
)

// IsInputError reports whether err stems from caller input rather than upstream data.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidSymbolFormat) || errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInvalidYear) || errors.Is(err, ErrInvalidRequest)
}
