package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FuturesCast/internal/domain/models"
)

func adj(t models.RiskType, f float64) models.RiskAdjustment {
	return models.RiskAdjustment{RiskType: t, AdjustmentFactor: f}
}

func TestCombine_Empty(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	got := c.Combine(nil, 6, 0.25)
	assert.Zero(t, got.Adjustment)
	assert.False(t, got.Capped)
	assert.Empty(t, got.Contributing)
	assert.Equal(t, 0.25, got.Cap)
}

func TestCombine_ClampsAndCaps(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	got := c.Combine([]models.RiskAdjustment{adj(models.RiskSupplyDemand, 0.5)}, 6, 0.25)

	assert.LessOrEqual(t, math.Abs(got.Adjustment), 0.26)
	assert.InDelta(t, 0.25, got.Adjustment, 1e-12)
	require.Len(t, got.Contributing, 1)
	assert.Equal(t, 0.25, got.Contributing[0].AdjustmentFactor)
	assert.NotEmpty(t, got.Warnings)
}

func TestCombine_CapIsIntersectionOfGlobalAndCaller(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	many := []models.RiskAdjustment{
		adj(models.RiskGeopolitical, 0.15),
		adj(models.RiskSupplyDemand, 0.25),
		adj(models.RiskEconomic, 0.12),
		adj(models.RiskWeather, 0.10),
	}

	got := c.Combine(many, 36, 1.0)
	assert.True(t, got.Capped)
	assert.InDelta(t, 0.35, got.Adjustment, 1e-12)
	assert.Greater(t, got.Uncapped, 0.35)

	got = c.Combine(many, 36, 0.1)
	assert.InDelta(t, 0.1, got.Adjustment, 1e-12)
}

func TestCombine_HorizonMultiplier(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	weather := []models.RiskAdjustment{adj(models.RiskWeather, 0.05)}

	assert.InDelta(t, 0.035, c.Combine(weather, 3, 0).Adjustment, 1e-12)
	assert.InDelta(t, 0.05, c.Combine(weather, 6, 0).Adjustment, 1e-12)
	assert.InDelta(t, 0.065, c.Combine(weather, 12, 0).Adjustment, 1e-12)
	assert.InDelta(t, 0.08, c.Combine(weather, 24, 0).Adjustment, 1e-12)
}

func TestCombine_Diversification(t *testing.T) {
	c := NewCombiner(DefaultPolicy())

	// no correlated pair: full diversification benefit
	got := c.Combine([]models.RiskAdjustment{
		adj(models.RiskGeopolitical, 0.10),
		adj(models.RiskEconomic, 0.08),
	}, 6, 0)
	assert.InDelta(t, 0.18*0.8, got.Adjustment, 1e-12)

	// geopolitical x supply_demand at 0.9 leaves 10% of the benefit
	got = c.Combine([]models.RiskAdjustment{
		adj(models.RiskGeopolitical, 0.10),
		adj(models.RiskSupplyDemand, 0.10),
	}, 6, 0)
	assert.InDelta(t, 0.2*(1-0.2*0.1), got.Adjustment, 1e-12)
}

func TestCombine_HorizonTaggedAdjustments(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	in := []models.RiskAdjustment{
		{RiskType: models.RiskEconomic, AdjustmentFactor: 0.05, HorizonMonths: 12},
		{RiskType: models.RiskWeather, AdjustmentFactor: 0.02},
	}

	six := c.Combine(in, 6, 0)
	require.Len(t, six.Contributing, 1)
	assert.InDelta(t, 0.02, six.Adjustment, 1e-12)

	twelve := c.Combine(in, 12, 0)
	assert.Len(t, twelve.Contributing, 2)
}

func TestCombine_DropsMalformed(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	got := c.Combine([]models.RiskAdjustment{
		adj("political", 0.05),
		adj(models.RiskEconomic, math.NaN()),
		adj(models.RiskWeather, math.Inf(1)),
		adj(models.RiskRegulatory, -0.02),
	}, 6, 0)

	require.Len(t, got.Contributing, 1)
	assert.Len(t, got.Warnings, 3)
	assert.InDelta(t, -0.02, got.Adjustment, 1e-12)
}

func TestCombine_NeverExceedsCap(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	types := append(models.AllRiskTypes(), "unknown")
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		n := r.Intn(8)
		in := make([]models.RiskAdjustment, n)
		for j := range in {
			in[j] = adj(types[r.Intn(len(types))], (r.Float64()-0.5)*2)
		}
		horizon := 1 + r.Intn(48)
		callerCap := r.Float64()

		got := c.Combine(in, horizon, callerCap)
		limit := math.Min(0.35, callerCap)
		assert.LessOrEqualf(t, math.Abs(got.Adjustment), limit+1e-12, "case %d", i)
		if n == 0 {
			assert.Zero(t, got.Adjustment)
		}
	}
}

func TestWeightedMagnitude(t *testing.T) {
	c := NewCombiner(DefaultPolicy())
	got := c.WeightedMagnitude([]models.RiskAdjustment{
		adj(models.RiskGeopolitical, 0.10),
		adj(models.RiskSupplyDemand, -0.20),
		adj("unknown", 1),
	})
	assert.InDelta(t, 0.085, got, 1e-12)
}

func TestNewCombiner_PolicyOverrides(t *testing.T) {
	p := DefaultPolicy()
	p.DiversificationFactor = 0.5
	p.Correlations = []Correlation{}
	c := NewCombiner(p)

	got := c.Combine([]models.RiskAdjustment{
		adj(models.RiskGeopolitical, 0.10),
		adj(models.RiskSupplyDemand, 0.10),
	}, 6, 0)
	assert.InDelta(t, 0.1, got.Adjustment, 1e-12)

	assert.Equal(t, 0.35, NewCombiner(Policy{}).Policy().GlobalCap)
}
