package curve

import (
	"fmt"
	"math"

	"FuturesCast/internal/domain/models"
)

// ValidationConfig holds the curve quality thresholds.
type ValidationConfig struct {
	MinPoints        int     `yaml:"min_points" default:"2"`
	MaxSpreadRatio   float64 `yaml:"max_spread_ratio" default:"0.20"`
	MinVolume        float64 `yaml:"min_volume" default:"1"`
	MaxIlliquidRatio float64 `yaml:"max_illiquid_ratio" default:"0.5"`
	MaxStepJump      float64 `yaml:"max_step_jump" default:"0.10"`
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinPoints:        2,
		MaxSpreadRatio:   0.20,
		MinVolume:        1,
		MaxIlliquidRatio: 0.5,
		MaxStepJump:      0.10,
	}
}

// ValidateCurve checks a curve for structural and liquidity problems. Fatal problems are
// returned as errors (ErrInsufficientCurveData, ErrExcessiveLiquidityIssues); everything
// else is reported as a warning. Contracts with unknown volume never count as illiquid.
func ValidateCurve(contracts []models.FuturesContract, cfg ValidationConfig) ([]string, error) {
	if len(contracts) < cfg.MinPoints {
		return nil, fmt.Errorf("%w: %d contracts, need at least %d",
			models.ErrInsufficientCurveData, len(contracts), cfg.MinPoints)
	}

	sorted := append([]models.FuturesContract(nil), contracts...)
	SortByExpiration(sorted)

	var (
		warnings []string
		illiquid int
		minPrice = math.Inf(1)
		maxPrice = math.Inf(-1)
	)
	for i, c := range sorted {
		minPrice = math.Min(minPrice, c.Price)
		maxPrice = math.Max(maxPrice, c.Price)

		if c.DaysToExpiration < 0 {
			warnings = append(warnings, fmt.Sprintf("%s: contract already expired", c.Symbol))
		}
		if c.Volume != nil && *c.Volume < cfg.MinVolume {
			illiquid++
			warnings = append(warnings, fmt.Sprintf("%s: low volume %.0f", c.Symbol, *c.Volume))
		}
		if i > 0 {
			prev := sorted[i-1].Price
			if prev > 0 {
				if step := math.Abs(c.Price-prev) / prev; step > cfg.MaxStepJump {
					warnings = append(warnings, fmt.Sprintf("%s: price jump of %.1f%% from %s",
						c.Symbol, step*100, sorted[i-1].Symbol))
				}
			}
		}
	}

	if ratio := float64(illiquid) / float64(len(sorted)); ratio > cfg.MaxIlliquidRatio {
		return warnings, fmt.Errorf("%w: %d of %d contracts below volume %.0f",
			models.ErrExcessiveLiquidityIssues, illiquid, len(sorted), cfg.MinVolume)
	}

	if minPrice > 0 {
		if spread := (maxPrice - minPrice) / minPrice; spread > cfg.MaxSpreadRatio {
			warnings = append(warnings, fmt.Sprintf("curve price range %.1f%% exceeds %.1f%%",
				spread*100, cfg.MaxSpreadRatio*100))
		}
	}
	return warnings, nil
}
