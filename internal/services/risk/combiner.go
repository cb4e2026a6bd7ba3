// Package risk combines categorized risk adjustments into a single bounded percentage.
package risk

import (
	"fmt"
	"math"

	"FuturesCast/internal/domain/models"
)

// Category bounds one risk type. Weight feeds the confidence interval width.
type Category struct {
	MaxImpact  float64 `yaml:"max_impact"`
	TypicalMin float64 `yaml:"typical_min"`
	TypicalMax float64 `yaml:"typical_max"`
	Weight     float64 `yaml:"weight"`
}

// Correlation marks two risk types that tend to move together.
type Correlation struct {
	A           models.RiskType `yaml:"a"`
	B           models.RiskType `yaml:"b"`
	Coefficient float64         `yaml:"coefficient"`
}

type Policy struct {
	Categories            map[models.RiskType]Category `yaml:"categories"`
	Correlations          []Correlation                `yaml:"correlations"`
	GlobalCap             float64                      `yaml:"global_cap"`
	DiversificationFactor float64                      `yaml:"diversification_factor"`
}

func DefaultCategories() map[models.RiskType]Category {
	return map[models.RiskType]Category{
		models.RiskGeopolitical: {MaxImpact: 0.15, TypicalMin: -0.05, TypicalMax: 0.10, Weight: 0.25},
		models.RiskSupplyDemand: {MaxImpact: 0.25, TypicalMin: -0.10, TypicalMax: 0.15, Weight: 0.30},
		models.RiskEconomic:     {MaxImpact: 0.12, TypicalMin: -0.08, TypicalMax: 0.08, Weight: 0.20},
		models.RiskWeather:      {MaxImpact: 0.10, TypicalMin: -0.05, TypicalMax: 0.08, Weight: 0.15},
		models.RiskRegulatory:   {MaxImpact: 0.08, TypicalMin: -0.04, TypicalMax: 0.05, Weight: 0.10},
	}
}

func DefaultCorrelations() []Correlation {
	return []Correlation{
		{A: models.RiskGeopolitical, B: models.RiskSupplyDemand, Coefficient: 0.9},
		{A: models.RiskEconomic, B: models.RiskSupplyDemand, Coefficient: 0.85},
		{A: models.RiskWeather, B: models.RiskSupplyDemand, Coefficient: 0.85},
	}
}

func DefaultPolicy() Policy {
	return Policy{
		Categories:            DefaultCategories(),
		Correlations:          DefaultCorrelations(),
		GlobalCap:             0.35,
		DiversificationFactor: 0.8,
	}
}

// HorizonMultiplier scales adjustments with forecast distance.
func HorizonMultiplier(months int) float64 {
	switch {
	case months <= 3:
		return 0.7
	case months <= 6:
		return 1.0
	case months < 24:
		return 1.3
	default:
		return 1.6
	}
}

// Combination is the result of one Combine call.
type Combination struct {
	Adjustment   float64
	Uncapped     float64
	Capped       bool
	Cap          float64
	Contributing []models.RiskAdjustment
	Warnings     []string
}

type Combiner struct {
	policy Policy
}

// NewCombiner fills zero-valued policy fields from DefaultPolicy.
func NewCombiner(p Policy) *Combiner {
	def := DefaultPolicy()
	if len(p.Categories) == 0 {
		p.Categories = def.Categories
	}
	if p.Correlations == nil {
		p.Correlations = def.Correlations
	}
	if p.GlobalCap <= 0 {
		p.GlobalCap = def.GlobalCap
	}
	if p.DiversificationFactor <= 0 || p.DiversificationFactor > 1 {
		p.DiversificationFactor = def.DiversificationFactor
	}
	return &Combiner{policy: p}
}

func (c *Combiner) Policy() Policy { return c.policy }

// Weight returns the interval weight of t, zero for unknown types.
func (c *Combiner) Weight(t models.RiskType) float64 {
	return c.policy.Categories[t].Weight
}

// WeightedMagnitude is Σ|factor|×weight over adjs.
func (c *Combiner) WeightedMagnitude(adjs []models.RiskAdjustment) float64 {
	var sum float64
	for _, a := range adjs {
		sum += math.Abs(a.AdjustmentFactor) * c.Weight(a.RiskType)
	}
	return sum
}

// Combine clamps, horizon-scales, diversifies and caps adjustments for one horizon.
// The result never exceeds min(GlobalCap, callerCap) in magnitude; callerCap <= 0 means
// only the global cap applies. Adjustments tagged with another horizon are ignored.
func (c *Combiner) Combine(adjs []models.RiskAdjustment, horizonMonths int, callerCap float64) Combination {
	limit := c.policy.GlobalCap
	if callerCap > 0 && callerCap < limit {
		limit = callerCap
	}
	out := Combination{Cap: limit}

	present := make(map[models.RiskType]bool)
	mult := HorizonMultiplier(horizonMonths)
	var sum float64
	for _, a := range adjs {
		if a.HorizonMonths > 0 && a.HorizonMonths != horizonMonths {
			continue
		}
		cat, ok := c.policy.Categories[a.RiskType]
		if !ok {
			out.Warnings = append(out.Warnings, fmt.Sprintf("dropped adjustment with unknown category %q", a.RiskType))
			continue
		}
		if math.IsNaN(a.AdjustmentFactor) || math.IsInf(a.AdjustmentFactor, 0) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("dropped %s adjustment with non-finite factor", a.RiskType))
			continue
		}
		clamped := clamp(a.AdjustmentFactor, -cat.MaxImpact, cat.MaxImpact)
		if clamped != a.AdjustmentFactor {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s adjustment %.4f clamped to %.4f",
				a.RiskType, a.AdjustmentFactor, clamped))
		}
		a.AdjustmentFactor = clamped
		out.Contributing = append(out.Contributing, a)
		present[a.RiskType] = true
		sum += clamped * mult
	}

	if len(out.Contributing) > 1 {
		benefit := (1 - c.policy.DiversificationFactor) * (1 - c.maxCorrelation(present))
		sum *= 1 - benefit
	}

	out.Uncapped = sum
	out.Adjustment = clamp(sum, -limit, limit)
	out.Capped = out.Adjustment != sum
	return out
}

// maxCorrelation returns the strongest coefficient among pairs whose types are both present.
func (c *Combiner) maxCorrelation(present map[models.RiskType]bool) float64 {
	var best float64
	for _, p := range c.policy.Correlations {
		if present[p.A] && present[p.B] && p.Coefficient > best {
			best = p.Coefficient
		}
	}
	return math.Min(best, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
