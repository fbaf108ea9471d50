// Package marketdata provides the data-provider capability consumed by the
// recovery engine: spot prices, historical closes, option chains and
// available expirations.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// StrikeMatchEpsilon defines the precision tolerance for matching strike prices.
const StrikeMatchEpsilon = 1e-3

// Provider defines the market data capability interface.
//
// All methods return a DataUnavailableError when the symbol or date has no
// data; callers must treat that as "this candidate is infeasible", not as a
// fatal error. Timeout and retry policy belong to the provider
// implementation, not to the engine.
type Provider interface {
	GetCurrentPrice(symbol string) (float64, error)
	// GetHistoricalCloses returns daily closing prices, oldest first.
	GetHistoricalCloses(symbol string, lookbackDays int) ([]float64, error)
	GetOptionChain(symbol, expiration string) (*Chain, error)
	GetOptionChainCtx(ctx context.Context, symbol, expiration string) (*Chain, error)
	// GetAvailableExpirations returns option expiration dates, ascending,
	// in YYYY-MM-DD format.
	GetAvailableExpirations(symbol string) ([]string, error)
}

// OptionQuote is one contract row of an option chain.
type OptionQuote struct {
	Symbol            string  `json:"symbol"`
	Strike            float64 `json:"strike"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Last              float64 `json:"last"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	OpenInterest      int64   `json:"open_interest"`
}

// MidPrice returns the bid/ask midpoint, the convention used for close
// costs throughout the engine.
func (q *OptionQuote) MidPrice() float64 {
	return (q.Bid + q.Ask) / 2
}

// Chain is the option chain for one symbol and expiration.
type Chain struct {
	Symbol     string        `json:"symbol"`
	Expiration string        `json:"expiration"`
	Puts       []OptionQuote `json:"puts"`
	Calls      []OptionQuote `json:"calls"`
}

// PutByStrike finds the put quote at the given strike, or nil.
func (c *Chain) PutByStrike(strike float64) *OptionQuote {
	return quoteByStrike(c.Puts, strike)
}

// CallByStrike finds the call quote at the given strike, or nil.
func (c *Chain) CallByStrike(strike float64) *OptionQuote {
	return quoteByStrike(c.Calls, strike)
}

func quoteByStrike(quotes []OptionQuote, strike float64) *OptionQuote {
	for i := range quotes {
		if math.Abs(quotes[i].Strike-strike) <= StrikeMatchEpsilon {
			return &quotes[i]
		}
	}
	return nil
}

// DataUnavailableError reports that a provider has no data for the
// requested symbol or date. The engine recovers from it locally by marking
// the affected strategy or opportunity infeasible.
type DataUnavailableError struct {
	Symbol     string
	Expiration string
	Cause      error
}

func (e *DataUnavailableError) Error() string {
	if e.Expiration != "" {
		return fmt.Sprintf("market data unavailable for %s exp %s: %v", e.Symbol, e.Expiration, e.Cause)
	}
	return fmt.Sprintf("market data unavailable for %s: %v", e.Symbol, e.Cause)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Cause
}

// IsDataUnavailable reports whether err is (or wraps) a DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var dErr *DataUnavailableError
	return errors.As(err, &dErr)
}

// DaysBetween calculates the number of days between two dates.
func DaysBetween(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// DaysUntil returns calendar days from today (UTC) until the YYYY-MM-DD
// date, clamped to zero. The error is an InvalidParameter-style parse error.
func DaysUntil(expiration string) (int, error) {
	exp, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return 0, fmt.Errorf("parsing expiration %q: %w", expiration, err)
	}
	now := time.Now().UTC().Truncate(24 * time.Hour)
	days := int(exp.UTC().Truncate(24 * time.Hour).Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}
