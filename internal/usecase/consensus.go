package usecase

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"FuturesCast/internal/domain/models"
)

// Consensus price sources.
const (
	ConsensusExact        = "exact"
	ConsensusInterpolated = "interpolated"
	ConsensusNearest      = "nearest"
)

// Interval width bounds as a fraction of the forecast price.
const (
	MinIntervalWidth = 0.05
	MaxIntervalWidth = 0.50
)

type consensus struct {
	Price    float64
	Contract string
	Source   string
}

// consensusPrice reads the curve price of symbol. When symbol is not on the curve it
// interpolates linearly by days to expiration between the bracketing contracts, or takes
// the nearest contract when targetDTE lies outside the curve.
func consensusPrice(curve *models.FuturesCurve, symbol string, targetDTE int) (consensus, bool) {
	if curve == nil || len(curve.Contracts) == 0 {
		return consensus{}, false
	}
	if symbol != "" {
		for _, c := range curve.Contracts {
			if c.Symbol == symbol {
				return consensus{Price: c.Price, Contract: c.Symbol, Source: ConsensusExact}, true
			}
		}
	}

	pts := make([]models.FuturesContract, len(curve.Contracts))
	copy(pts, curve.Contracts)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].DaysToExpiration < pts[j].DaysToExpiration })

	first, last := pts[0], pts[len(pts)-1]
	if targetDTE <= first.DaysToExpiration {
		return consensus{Price: first.Price, Contract: first.Symbol, Source: ConsensusNearest}, true
	}
	if targetDTE >= last.DaysToExpiration {
		return consensus{Price: last.Price, Contract: last.Symbol, Source: ConsensusNearest}, true
	}
	for i := 1; i < len(pts); i++ {
		lo, hi := pts[i-1], pts[i]
		if targetDTE > hi.DaysToExpiration {
			continue
		}
		span := hi.DaysToExpiration - lo.DaysToExpiration
		if span == 0 {
			return consensus{Price: hi.Price, Contract: hi.Symbol, Source: ConsensusNearest}, true
		}
		w := float64(targetDTE-lo.DaysToExpiration) / float64(span)
		return consensus{
			Price:  lo.Price + w*(hi.Price-lo.Price),
			Source: ConsensusInterpolated,
		}, true
	}
	return consensus{Price: last.Price, Contract: last.Symbol, Source: ConsensusNearest}, true
}

// IntervalWidth returns the full interval width as a fraction of the forecast price:
// 2 × (0.02 + 0.10×(1−confidence) + 0.01×n + weightedMagnitude + 0.04×√(months/12)),
// clamped to [MinIntervalWidth, MaxIntervalWidth].
func IntervalWidth(confidence float64, adjustments int, weightedMagnitude float64, months int) float64 {
	confidence = math.Max(0, math.Min(1, confidence))
	half := 0.02 +
		0.10*(1-confidence) +
		0.01*float64(adjustments) +
		weightedMagnitude +
		0.04*math.Sqrt(float64(max(months, 0))/12)
	return math.Max(MinIntervalWidth, math.Min(MaxIntervalWidth, 2*half))
}

// buildInterval brackets price symmetrically. Bounds are rounded outward so the price
// stays strictly inside.
func buildInterval(price, width, confidence float64) *models.ConfidenceInterval {
	p := decimal.NewFromFloat(price)
	h := decimal.NewFromFloat(width / 2)
	one := decimal.NewFromInt(1)
	return &models.ConfidenceInterval{
		Lower:      p.Mul(one.Sub(h)).RoundFloor(4).InexactFloat64(),
		Upper:      p.Mul(one.Add(h)).RoundCeil(4).InexactFloat64(),
		Confidence: round(confidence),
	}
}

// applyAdjustment returns price × (1 + adj) rounded to 4 decimals.
func applyAdjustment(price, adj float64) float64 {
	p := decimal.NewFromFloat(price)
	return p.Add(p.Mul(decimal.NewFromFloat(adj))).Round(4).InexactFloat64()
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

func percentChange(price, current float64) float64 {
	p := decimal.NewFromFloat(price)
	c := decimal.NewFromFloat(current)
	return p.Sub(c).Div(c).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}
