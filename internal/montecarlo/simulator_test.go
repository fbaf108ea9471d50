package montecarlo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
)

func seed(v int64) *int64 { return &v }

func baseParams() Params {
	return Params{
		Spot:         175,
		Strike:       170,
		Volatility:   0.30,
		Drift:        0.05,
		DaysToExpiry: 30,
		NumSims:      20000,
		Seed:         seed(42),
	}
}

func TestRun_InvalidParams(t *testing.T) {
	s := NewSimulatorWithWorkers(2)

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero volatility", func(p *Params) { p.Volatility = 0 }},
		{"zero sims", func(p *Params) { p.NumSims = 0 }},
		{"negative spot", func(p *Params) { p.Spot = -1 }},
		{"zero strike", func(p *Params) { p.Strike = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseParams()
			tt.mutate(&p)
			_, err := s.Run(p)
			require.Error(t, err)

			var invalid *models.InvalidParameterError
			assert.True(t, errors.As(err, &invalid))
		})
	}
}

func TestRun_PinnedSeedReproducible(t *testing.T) {
	p := baseParams()

	first, err := NewSimulatorWithWorkers(1).Run(p)
	require.NoError(t, err)
	second, err := NewSimulatorWithWorkers(8).Run(p)
	require.NoError(t, err)

	// Chunks are seeded from the base seed, so the distribution does not
	// depend on how many workers drained them.
	assert.Equal(t, first.ProbabilityProfit, second.ProbabilityProfit)
	assert.Equal(t, first.ExpectedLossIfAssigned, second.ExpectedLossIfAssigned)
	assert.Equal(t, first.Percentiles, second.Percentiles)
}

func TestRun_PercentilesOrdered(t *testing.T) {
	result, err := NewSimulator().Run(baseParams())
	require.NoError(t, err)

	require.Len(t, result.Percentiles, 5)
	assert.LessOrEqual(t, result.Percentiles[5], result.Percentiles[25])
	assert.LessOrEqual(t, result.Percentiles[25], result.Percentiles[50])
	assert.LessOrEqual(t, result.Percentiles[50], result.Percentiles[75])
	assert.LessOrEqual(t, result.Percentiles[75], result.Percentiles[95])
	assert.Equal(t, 20000, result.NumSimulations)
}

func TestRun_AgreesWithAnalyticProbability(t *testing.T) {
	p := baseParams()
	result, err := NewSimulator().Run(p)
	require.NoError(t, err)

	// GBM with risk-free drift should land near the Black-Scholes answer
	// at this path count.
	analytic := stats.NewEstimator(p.Drift).ProbabilityOTMPut(p.Spot, p.Strike, p.Volatility, p.DaysToExpiry)
	assert.InDelta(t, analytic, result.ProbabilityProfit, 0.05)
}

func TestRun_ExpiredPosition(t *testing.T) {
	p := baseParams()
	p.DaysToExpiry = 0

	result, err := NewSimulator().Run(p)
	require.NoError(t, err)

	// No steps: every path ends at spot, which is above the strike.
	assert.Equal(t, 1.0, result.ProbabilityProfit)
	assert.Zero(t, result.ExpectedLossIfAssigned)
	assert.Equal(t, p.Spot, result.Percentiles[50])
}

func TestRun_DeepITMShortPut(t *testing.T) {
	p := baseParams()
	p.Spot = 100
	p.Strike = 170
	p.DaysToExpiry = 5

	result, err := NewSimulator().Run(p)
	require.NoError(t, err)

	assert.Less(t, result.ProbabilityProfit, 0.01)
	assert.Greater(t, result.ExpectedLossIfAssigned, 50.0)
}

func TestRun_ProbabilityConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("convergence sweep is slow")
	}

	p := baseParams()
	p.DaysToExpiry = 10

	// The estimator's standard error scales as 1/sqrt(paths), so going
	// from 1,000 to 100,000 paths should tighten the spread of repeated
	// runs by roughly a factor of 10.
	spread := func(numSims int) float64 {
		const reps = 16
		probs := make([]float64, reps)
		for rep := 0; rep < reps; rep++ {
			run := p
			run.NumSims = numSims
			run.Seed = seed(int64(100 + rep))
			result, err := NewSimulator().Run(run)
			require.NoError(t, err)
			probs[rep] = result.ProbabilityProfit
		}

		mean := 0.0
		for _, v := range probs {
			mean += v
		}
		mean /= reps
		variance := 0.0
		for _, v := range probs {
			variance += (v - mean) * (v - mean)
		}
		return math.Sqrt(variance / (reps - 1))
	}

	narrow := spread(1000) / spread(100000)
	assert.Greater(t, narrow, 4.0)
	assert.Less(t, narrow, 25.0)
}

func TestChunkSeed(t *testing.T) {
	// Chunk zero uses the base seed unchanged; later chunks stay distinct
	// even though the golden-ratio multiply wraps in uint64.
	assert.Equal(t, int64(42), chunkSeed(42, 0))

	seen := make(map[int64]bool)
	for chunk := 0; chunk < 64; chunk++ {
		s := chunkSeed(42, chunk)
		assert.False(t, seen[s], "chunk %d repeated seed %d", chunk, s)
		seen[s] = true
	}
}

func TestNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, 1.0, nearestRank(sorted, 5))
	assert.Equal(t, 3.0, nearestRank(sorted, 25))
	assert.Equal(t, 5.0, nearestRank(sorted, 50))
	assert.Equal(t, 10.0, nearestRank(sorted, 95))
	assert.Zero(t, nearestRank(nil, 50))
}
