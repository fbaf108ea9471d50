package mock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCurrentPrice(t *testing.T) {
	m := NewProviderAt(450, 20)

	price, err := m.GetCurrentPrice("SPY")
	require.NoError(t, err)
	// Each call drifts at most $1 from the configured spot.
	assert.InDelta(t, 450, price, 1.01)
}

func TestGetHistoricalCloses(t *testing.T) {
	m := NewProviderAt(450, 20)

	closes, err := m.GetHistoricalCloses("SPY", 50)
	require.NoError(t, err)
	require.Len(t, closes, 50)

	// Series ends at the current spot.
	spot, err := m.GetCurrentPrice("SPY")
	require.NoError(t, err)
	assert.InDelta(t, spot, closes[49], 1.01)

	for _, c := range closes {
		assert.Positive(t, c)
	}
}

func TestGetHistoricalCloses_LookbackTooShort(t *testing.T) {
	m := NewProviderAt(450, 20)
	_, err := m.GetHistoricalCloses("SPY", 1)
	assert.Error(t, err)
}

func TestGetOptionChain(t *testing.T) {
	m := NewProviderAt(450, 20)
	exp := time.Now().UTC().AddDate(0, 0, 30).Format("2006-01-02")

	chain, err := m.GetOptionChain("SPY", exp)
	require.NoError(t, err)
	require.NotEmpty(t, chain.Puts)
	require.Len(t, chain.Calls, len(chain.Puts))

	for _, q := range chain.Puts {
		assert.Positive(t, q.Bid)
		assert.Greater(t, q.Ask, q.Bid)
	}

	// Strikes cover a band around spot at $5 intervals.
	assert.Less(t, chain.Puts[0].Strike, 450.0)
	assert.Greater(t, chain.Puts[len(chain.Puts)-1].Strike, 450.0)
	assert.InDelta(t, 5, chain.Puts[1].Strike-chain.Puts[0].Strike, 1e-9)
}

func TestGetOptionChain_InvalidExpiration(t *testing.T) {
	m := NewProviderAt(450, 20)
	_, err := m.GetOptionChain("SPY", "next friday")
	assert.Error(t, err)
}

func TestGetAvailableExpirations(t *testing.T) {
	m := NewProviderAt(450, 20)

	exps, err := m.GetAvailableExpirations("SPY")
	require.NoError(t, err)
	require.Len(t, exps, 8)

	prev := ""
	for _, exp := range exps {
		d, err := time.Parse("2006-01-02", exp)
		require.NoError(t, err)
		assert.Equal(t, time.Friday, d.Weekday())
		assert.Greater(t, exp, prev)
		prev = exp
	}
}
