package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExpiration() time.Time {
	return time.Now().UTC().AddDate(0, 0, 30)
}

func TestNewShortPut(t *testing.T) {
	pos, err := NewShortPut("spy", 450, 440, testExpiration(), 3.50, -2)
	require.NoError(t, err)

	assert.Equal(t, "SPY", pos.Symbol)
	assert.Equal(t, 2, pos.Contracts())
	assert.True(t, pos.IsShortPut())
}

func TestNewShortPut_Validation(t *testing.T) {
	exp := testExpiration()
	tests := []struct {
		name  string
		build func() (*Position, error)
		param string
	}{
		{"empty symbol", func() (*Position, error) {
			return NewShortPut("  ", 450, 440, exp, 3.50, -1)
		}, "symbol"},
		{"zero strike", func() (*Position, error) {
			return NewShortPut("SPY", 0, 440, exp, 3.50, -1)
		}, "strike"},
		{"negative spot", func() (*Position, error) {
			return NewShortPut("SPY", 450, -1, exp, 3.50, -1)
		}, "spot"},
		{"negative premium", func() (*Position, error) {
			return NewShortPut("SPY", 450, 440, exp, -0.10, -1)
		}, "premium"},
		{"long quantity", func() (*Position, error) {
			return NewShortPut("SPY", 450, 440, exp, 3.50, 1)
		}, "contracts"},
		{"zero expiration", func() (*Position, error) {
			return NewShortPut("SPY", 450, 440, time.Time{}, 3.50, -1)
		}, "expiration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)

			var invalid *InvalidParameterError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.param, invalid.Param)
		})
	}
}

func TestPosition_CostBasisAndCapital(t *testing.T) {
	pos, err := NewShortPut("SPY", 450, 430, testExpiration(), 3.50, -2)
	require.NoError(t, err)

	assert.InDelta(t, 446.50, pos.CostBasisPerShare(), 1e-9)
	assert.InDelta(t, 90000, pos.CapitalAtRisk(), 1e-9)
}

func TestPosition_UnrealizedPnL_IntrinsicFallback(t *testing.T) {
	pos, err := NewShortPut("SPY", 450, 430, testExpiration(), 3.50, -1)
	require.NoError(t, err)

	// No mark price: close estimate is intrinsic value 450-430=20.
	assert.InDelta(t, (3.50-20.0)*100, pos.UnrealizedPnL(), 1e-9)

	// OTM with no mark: intrinsic is zero, full premium is unrealized gain.
	pos.CurrentSpotPrice = 460
	assert.InDelta(t, 350, pos.UnrealizedPnL(), 1e-9)
}

func TestPosition_UnrealizedPnL_MarkPrice(t *testing.T) {
	pos, err := NewShortPut("SPY", 450, 430, testExpiration(), 3.50, -1)
	require.NoError(t, err)
	pos.MarkPrice = 22.80

	assert.InDelta(t, (3.50-22.80)*100, pos.UnrealizedPnL(), 1e-9)
}

func TestPosition_LossPct(t *testing.T) {
	pos, err := NewShortPut("SPY", 100, 90, testExpiration(), 2.00, -1)
	require.NoError(t, err)

	// Close at intrinsic 10, PnL = (2-10)*100 = -800, capital = 10000.
	assert.InDelta(t, 8.0, pos.LossPct(), 1e-9)
}

func TestPosition_DaysToExpiry_Expired(t *testing.T) {
	pos := &Position{
		Symbol:           "SPY",
		Strike:           450,
		CurrentSpotPrice: 440,
		Expiration:       time.Now().UTC().AddDate(0, 0, -5),
		ContractQuantity: -1,
	}
	assert.Equal(t, 0, pos.DaysToExpiry())
}

func TestTierForScore(t *testing.T) {
	assert.Equal(t, TierStrongBuy, TierForScore(80))
	assert.Equal(t, TierBuy, TierForScore(79.9))
	assert.Equal(t, TierBuy, TierForScore(60))
	assert.Equal(t, TierConsider, TierForScore(40))
	assert.Equal(t, TierWeak, TierForScore(39.9))
}
