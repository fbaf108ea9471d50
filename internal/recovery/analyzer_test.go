package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
)

type fakeProvider struct {
	price       float64
	closes      []float64
	expirations []string
	chains      map[string]*marketdata.Chain
}

func (f *fakeProvider) GetCurrentPrice(string) (float64, error) { return f.price, nil }

func (f *fakeProvider) GetHistoricalCloses(string, int) ([]float64, error) {
	return f.closes, nil
}

func (f *fakeProvider) GetOptionChain(symbol, expiration string) (*marketdata.Chain, error) {
	if chain, ok := f.chains[expiration]; ok {
		return chain, nil
	}
	return nil, &marketdata.DataUnavailableError{Symbol: symbol, Expiration: expiration}
}

func (f *fakeProvider) GetOptionChainCtx(_ context.Context, symbol, expiration string) (*marketdata.Chain, error) {
	return f.GetOptionChain(symbol, expiration)
}

func (f *fakeProvider) GetAvailableExpirations(string) ([]string, error) {
	return f.expirations, nil
}

var _ marketdata.Provider = (*fakeProvider)(nil)

func expIn(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func losingPut(t *testing.T, strike, spot float64) *models.Position {
	t.Helper()
	pos, err := models.NewShortPut("XYZ", strike, spot,
		time.Now().UTC().AddDate(0, 0, 14), 2.00, -1)
	require.NoError(t, err)
	return pos
}

func TestAnalyzeLosingPositions(t *testing.T) {
	provider := &fakeProvider{price: 170, closes: []float64{172, 170, 171, 169, 170}}
	a := NewAnalyzer(provider, stats.NewEstimator(0.05), nil)

	losing := losingPut(t, 180, 170) // intrinsic close 10 vs 2 premium: underwater
	winning := losingPut(t, 160, 170)

	result := a.AnalyzeLosingPositions([]*models.Position{losing, winning, nil})
	require.Len(t, result, 1)

	assert.Same(t, losing, result[0].Position)
	assert.Negative(t, result[0].LossAmount)
	assert.Positive(t, result[0].LossPct)
	assert.NotEmpty(t, result[0].SupportLevels)
}

func TestSupportLevels(t *testing.T) {
	// Strict local minima only: 168 and 165.
	closes := []float64{172, 168, 171, 165, 170, 170}
	assert.Equal(t, []float64{168, 165}, SupportLevels(closes))

	assert.Empty(t, SupportLevels([]float64{1, 2, 3}))
	assert.Empty(t, SupportLevels(nil))
	assert.Empty(t, SupportLevels([]float64{5, 5, 5}))
}

func TestFindRecoveryOpportunities(t *testing.T) {
	exp1 := expIn(21)
	exp2 := expIn(35)
	provider := &fakeProvider{
		price:  170,
		closes: []float64{168, 169, 170, 171, 170},
		expirations: []string{exp1, exp2},
		chains: map[string]*marketdata.Chain{
			exp1: {
				Symbol:     "XYZ",
				Expiration: exp1,
				Puts: []marketdata.OptionQuote{
					{Strike: 160, Bid: 2.50, Ask: 2.70},
					{Strike: 155, Bid: 1.80, Ask: 2.00},
					{Strike: 165, Bid: 3.40, Ask: 3.60}, // above ceiling 161.5, excluded
					{Strike: 150, Bid: 0, Ask: 0.20},    // no bid, excluded
				},
			},
			// exp2 chain is missing: the scan must continue past it.
		},
	}
	a := NewAnalyzer(provider, stats.NewEstimator(0.05), nil)

	pos := losingPut(t, 180, 170)
	opps, err := a.FindRecoveryOpportunities(pos, 5)
	require.NoError(t, err)
	require.Len(t, opps, 2)

	for _, opp := range opps {
		assert.Less(t, opp.Strike, 170*0.95)
		assert.Positive(t, opp.Premium)
		assert.InDelta(t, opp.Strike-opp.Premium, opp.Breakeven, 1e-9)
		assert.NotEmpty(t, opp.Tier)
	}

	// Sorted by composite score descending.
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].CompositeScore, opps[i].CompositeScore)
	}
}

func TestFindRecoveryOpportunities_RecoveryArithmetic(t *testing.T) {
	exp1 := expIn(21)
	provider := &fakeProvider{
		price:       170,
		closes:      []float64{168, 169, 170, 171, 170},
		expirations: []string{exp1},
		chains: map[string]*marketdata.Chain{
			exp1: {
				Symbol:     "XYZ",
				Expiration: exp1,
				Puts:       []marketdata.OptionQuote{{Strike: 160, Bid: 2.50, Ask: 2.70}},
			},
		},
	}
	a := NewAnalyzer(provider, stats.NewEstimator(0.05), nil)

	// Loss of exactly $500: premium 2.00 collected, mark 7.00 to close.
	pos := losingPut(t, 180, 175)
	pos.MarkPrice = 7.00
	require.InDelta(t, -500, pos.UnrealizedPnL(), 1e-9)

	opps, err := a.FindRecoveryOpportunities(pos, 5)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	// $2.50 premium recovers $250 of the $500 loss.
	assert.InDelta(t, 250, opps[0].RecoveryAmount, 1e-9)
	assert.InDelta(t, 50, opps[0].RecoveryPct, 1e-9)
}

func TestFindRecoveryOpportunities_NilPosition(t *testing.T) {
	a := NewAnalyzer(&fakeProvider{price: 170}, stats.NewEstimator(0.05), nil)
	_, err := a.FindRecoveryOpportunities(nil, 5)
	assert.Error(t, err)
}

func TestRankByScore(t *testing.T) {
	opps := []models.RecoveryOpportunity{
		{Strike: 150, CompositeScore: 55, ProbabilityOfProfit: 0.80},
		{Strike: 160, CompositeScore: 70, ProbabilityOfProfit: 0.75},
		{Strike: 155, CompositeScore: 55, ProbabilityOfProfit: 0.90},
	}

	ranked := RankByScore(opps)
	assert.Equal(t, 160.0, ranked[0].Strike)
	// Equal scores break the tie on probability of profit.
	assert.Equal(t, 155.0, ranked[1].Strike)
	assert.Equal(t, 150.0, ranked[2].Strike)
}
