package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Fallback(t *testing.T) {
	e := NewEstimator(0.05)

	for _, closes := range [][]float64{nil, {}, {450.0}} {
		snap := e.Snapshot("SPY", closes)
		assert.True(t, snap.Fallback)
		assert.Equal(t, FallbackVolatility, snap.AnnualizedVolatility)
		assert.Zero(t, snap.AnnualizedDrift)
	}
}

func TestSnapshot_ConstantSeries(t *testing.T) {
	e := NewEstimator(0.05)
	closes := []float64{100, 100, 100, 100, 100}

	snap := e.Snapshot("SPY", closes)
	assert.False(t, snap.Fallback)
	assert.Zero(t, snap.AnnualizedVolatility)
	assert.Zero(t, snap.AnnualizedDrift)
}

func TestSnapshot_DriftSign(t *testing.T) {
	e := NewEstimator(0.05)

	rising := []float64{100, 101, 102.5, 103, 104.2}
	falling := []float64{104.2, 103, 102.5, 101, 100}

	assert.Positive(t, e.Snapshot("SPY", rising).AnnualizedDrift)
	assert.Negative(t, e.Snapshot("SPY", falling).AnnualizedDrift)
}

func TestSnapshot_SkipsNonPositiveCloses(t *testing.T) {
	e := NewEstimator(0.05)

	snap := e.Snapshot("SPY", []float64{100, 0, -5, 101, 102})
	assert.False(t, snap.Fallback)
	assert.True(t, snap.AnnualizedVolatility >= 0)
}

func TestProbabilityOTMPut_Boundary(t *testing.T) {
	e := NewEstimator(0.05)

	// Expired: deterministic outcome.
	assert.Equal(t, 1.0, e.ProbabilityOTMPut(175, 170, 0.30, 0))
	assert.Equal(t, 0.0, e.ProbabilityOTMPut(165, 170, 0.30, 0))
	assert.Equal(t, 0.0, e.ProbabilityOTMPut(170, 170, 0.30, 0))

	// Degenerate volatility follows the same rule.
	assert.Equal(t, 1.0, e.ProbabilityOTMPut(175, 170, 0, 30))
	assert.Equal(t, 0.0, e.ProbabilityOTMPut(165, 170, -0.1, 30))
}

func TestProbabilityOTMPut_ModerateOTM(t *testing.T) {
	e := NewEstimator(0.05)

	// Spot comfortably above strike with moderate volatility must land
	// strictly between a coin flip and certainty.
	p := e.ProbabilityOTMPut(175, 170, 0.30, 30)
	assert.Greater(t, p, 0.5)
	assert.Less(t, p, 1.0)
}

func TestProbabilityOTMPut_MonotonicInSpot(t *testing.T) {
	e := NewEstimator(0.05)

	prev := -1.0
	for spot := 150.0; spot <= 200.0; spot += 2.5 {
		p := e.ProbabilityOTMPut(spot, 170, 0.30, 30)
		require.GreaterOrEqual(t, p, prev, "probability must not decrease as spot rises (spot=%v)", spot)
		prev = p
	}
}

func TestProbabilityOTMCall(t *testing.T) {
	e := NewEstimator(0.05)

	// A call strike far above spot should almost surely expire OTM; one
	// far below almost surely will not.
	assert.Greater(t, e.ProbabilityOTMCall(100, 150, 0.20, 30), 0.99)
	assert.Less(t, e.ProbabilityOTMCall(100, 60, 0.20, 30), 0.01)

	// Expired boundary: OTM only if spot is below strike.
	assert.Equal(t, 1.0, e.ProbabilityOTMCall(100, 150, 0.20, 0))
	assert.Equal(t, 0.0, e.ProbabilityOTMCall(150, 100, 0.20, 0))
}

func TestNormCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normCDF(0), 1e-12)
	assert.InDelta(t, 0.8413, normCDF(1), 1e-4)
	assert.InDelta(t, 0.0228, normCDF(-2), 1e-4)
}

func TestIVRank(t *testing.T) {
	hist := []float64{0.10, 0.20, 0.30, 0.40, 0.50}

	assert.InDelta(t, 50, IVRank(0.30, hist), 1e-9)
	assert.InDelta(t, 0, IVRank(0.10, hist), 1e-9)
	assert.InDelta(t, 100, IVRank(0.50, hist), 1e-9)

	// Clamped outside the historical range.
	assert.InDelta(t, 100, IVRank(0.90, hist), 1e-9)
	assert.InDelta(t, 0, IVRank(0.01, hist), 1e-9)

	// Degenerate inputs.
	assert.Zero(t, IVRank(math.NaN(), hist))
	assert.Zero(t, IVRank(0.30, nil))
	assert.Zero(t, IVRank(0.30, []float64{0.25, 0.25}))
}
