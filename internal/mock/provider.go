// Package mock provides a synthetic market data provider for paper mode
// and tests.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/marketdata"
)

// Provider generates plausible synthetic market data around a drifting
// spot price.
type Provider struct {
	currentPrice float64
	midIV        float64 // actual IV level for pricing, in percent
}

// Ensure Provider implements the capability interface at compile time.
var _ marketdata.Provider = (*Provider)(nil)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return n / 2
	}
	return r.Int64()
}

// NewProvider creates a synthetic provider with a spot price around $450.
func NewProvider() *Provider {
	return &Provider{
		currentPrice: 450.0 + secureFloat64()*10, // spot around 450-460
		midIV:        12.0 + secureFloat64()*18,  // IV between 12-30%
	}
}

// NewProviderAt creates a synthetic provider pinned to a spot price and IV
// level, for deterministic test setups.
func NewProviderAt(spot, ivPct float64) *Provider {
	return &Provider{currentPrice: spot, midIV: ivPct}
}

// GetCurrentPrice returns the simulated spot with a small random move.
func (m *Provider) GetCurrentPrice(symbol string) (float64, error) {
	m.currentPrice += (secureFloat64() - 0.5) * 2
	return m.currentPrice, nil
}

// GetHistoricalCloses synthesizes a daily close series ending at the
// current spot, oldest first.
func (m *Provider) GetHistoricalCloses(symbol string, lookbackDays int) ([]float64, error) {
	if lookbackDays < 2 {
		return nil, &marketdata.DataUnavailableError{
			Symbol: symbol,
			Cause:  fmt.Errorf("lookback too short: %d days", lookbackDays),
		}
	}

	dailyVol := m.midIV / 100.0 / math.Sqrt(252)
	closes := make([]float64, lookbackDays)
	closes[lookbackDays-1] = m.currentPrice
	// Walk backwards from spot so the series always ends at today's price.
	for i := lookbackDays - 2; i >= 0; i-- {
		shock := (secureFloat64()*2 - 1) * dailyVol
		closes[i] = closes[i+1] / math.Exp(shock)
	}
	return closes, nil
}

// GetOptionChain generates strikes around the current spot with
// approximately priced puts and calls.
func (m *Provider) GetOptionChain(symbol, expiration string) (*marketdata.Chain, error) {
	return m.GetOptionChainCtx(context.Background(), symbol, expiration)
}

// GetOptionChainCtx generates the chain with context support.
func (m *Provider) GetOptionChainCtx(_ context.Context, symbol, expiration string) (*marketdata.Chain, error) {
	expDate, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}
	dte := int(time.Until(expDate).Hours() / 24)
	if dte < 0 {
		dte = 0 // Clamp to minimum 0 to prevent negative time values
	}

	chain := &marketdata.Chain{Symbol: symbol, Expiration: expiration}

	// Generate strikes around current price
	strikeInterval := 5.0
	startStrike := math.Floor(m.currentPrice/strikeInterval)*strikeInterval - 50
	endStrike := startStrike + 100

	timeValue := math.Max(0, float64(dte)/365.0)
	vol := m.midIV / 100.0

	for strike := startStrike; strike <= endStrike; strike += strikeInterval {
		// Moneyness-decayed pricing (simplified Black-Scholes approximation)
		distance := math.Abs(strike - m.currentPrice)
		decay := math.Exp(-distance * 0.02)

		putDelta := 0.5 * decay
		if strike > m.currentPrice {
			putDelta = 0.5 * (2 - decay)
		}
		callDelta := 0.5 * decay
		if strike < m.currentPrice {
			callDelta = 0.5 * (2 - decay)
		}

		putPrice := math.Max(0.15, vol*math.Sqrt(timeValue)*m.currentPrice*putDelta)
		callPrice := math.Max(0.15, vol*math.Sqrt(timeValue)*m.currentPrice*callDelta)

		osiDate := expDate.Format("060102")
		chain.Puts = append(chain.Puts, marketdata.OptionQuote{
			Symbol:            fmt.Sprintf("%s%sP%08d", symbol, osiDate, int(strike*1000)),
			Strike:            strike,
			Bid:               putPrice - 0.05,
			Ask:               putPrice + 0.05,
			Last:              putPrice,
			ImpliedVolatility: vol,
			OpenInterest:      secureInt63n(50000),
		})
		chain.Calls = append(chain.Calls, marketdata.OptionQuote{
			Symbol:            fmt.Sprintf("%s%sC%08d", symbol, osiDate, int(strike*1000)),
			Strike:            strike,
			Bid:               callPrice - 0.05,
			Ask:               callPrice + 0.05,
			Last:              callPrice,
			ImpliedVolatility: vol,
			OpenInterest:      secureInt63n(50000),
		})
	}

	return chain, nil
}

// GetAvailableExpirations returns the next eight weekly Friday expirations.
func (m *Provider) GetAvailableExpirations(symbol string) ([]string, error) {
	var dates []string
	d := time.Now().UTC()
	for len(dates) < 8 {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() == time.Friday {
			dates = append(dates, d.Format("2006-01-02"))
		}
	}
	return dates, nil
}
