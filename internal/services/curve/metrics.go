package curve

import (
	"sort"

	"FuturesCast/internal/domain/models"
)

// SortByExpiration orders contracts by days to expiration, then symbol.
func SortByExpiration(contracts []models.FuturesContract) {
	sort.SliceStable(contracts, func(i, j int) bool {
		if contracts[i].DaysToExpiration != contracts[j].DaysToExpiration {
			return contracts[i].DaysToExpiration < contracts[j].DaysToExpiration
		}
		return contracts[i].Symbol < contracts[j].Symbol
	})
}

// CalculateCurveMetrics derives term-structure shape. Fewer than two contracts
// yield zero metrics.
func CalculateCurveMetrics(contracts []models.FuturesContract) models.CurveMetrics {
	if len(contracts) < 2 {
		return models.CurveMetrics{}
	}
	sorted := append([]models.FuturesContract(nil), contracts...)
	SortByExpiration(sorted)

	var sum float64
	for i := 1; i < len(sorted); i++ {
		sum += sorted[i].Price - sorted[i-1].Price
	}
	avg := sum / float64(len(sorted)-1)

	first, last := sorted[0], sorted[len(sorted)-1]
	var steepness float64
	if span := last.DaysToExpiration - first.DaysToExpiration; span != 0 {
		steepness = (last.Price - first.Price) / float64(span) * 365
	}

	return models.CurveMetrics{
		Contango:      avg > 0,
		Backwardation: avg < 0,
		AverageSpread: avg,
		Steepness:     steepness,
	}
}
