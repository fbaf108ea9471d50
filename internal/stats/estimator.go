// Package stats derives market statistics from historical price series and
// provides the Black-Scholes out-of-the-money probability primitive shared
// by every scoring component in the engine.
package stats

import (
	"math"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

const (
	// FallbackVolatility is the documented default annualized volatility
	// returned when fewer than two historical prices are available.
	FallbackVolatility = 0.30
	// TradingDaysPerYear is the annualization factor for daily returns.
	TradingDaysPerYear = 252
	// CalendarDaysPerYear converts days to expiry into year fractions.
	CalendarDaysPerYear = 365
)

// Estimator computes annualized volatility/drift and OTM probabilities.
// A single Estimator is shared by the roll evaluator, the recovery analyzer
// and the Monte Carlo cross-check so the probability math cannot diverge.
type Estimator struct {
	riskFreeRate float64
}

// NewEstimator creates an Estimator with the given annualized risk-free rate.
func NewEstimator(riskFreeRate float64) *Estimator {
	return &Estimator{riskFreeRate: riskFreeRate}
}

// RiskFreeRate returns the configured annualized risk-free rate.
func (e *Estimator) RiskFreeRate() float64 {
	return e.riskFreeRate
}

// Snapshot derives annualized volatility and drift from an ordered series of
// daily closing prices (oldest first). With fewer than two prices the
// documented fallback of 0.30 volatility and zero drift is returned and the
// snapshot is flagged accordingly.
func (e *Estimator) Snapshot(symbol string, closes []float64) models.MarketSnapshot {
	if len(closes) < 2 {
		return models.MarketSnapshot{
			Symbol:               symbol,
			AnnualizedVolatility: FallbackVolatility,
			AnnualizedDrift:      0,
			RiskFreeRate:         e.riskFreeRate,
			Fallback:             true,
		}
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 1 {
		return models.MarketSnapshot{
			Symbol:               symbol,
			AnnualizedVolatility: FallbackVolatility,
			AnnualizedDrift:      0,
			RiskFreeRate:         e.riskFreeRate,
			Fallback:             true,
		}
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	return models.MarketSnapshot{
		Symbol:               symbol,
		AnnualizedVolatility: math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear),
		AnnualizedDrift:      mean * TradingDaysPerYear,
		RiskFreeRate:         e.riskFreeRate,
	}
}

// ProbabilityOTMPut returns the probability that spot stays above strike at
// expiry: the favorable outcome for a short put seller. With daysToExpiry
// <= 0 (or degenerate volatility) the deterministic boundary applies: 1 if
// spot is above strike, otherwise 0.
func (e *Estimator) ProbabilityOTMPut(spot, strike, volatility float64, daysToExpiry int) float64 {
	return e.probabilityOTM(spot, strike, volatility, daysToExpiry)
}

// ProbabilityOTMCall returns the probability that spot stays below strike at
// expiry, using the same primitive with spot and strike swapped.
func (e *Estimator) ProbabilityOTMCall(spot, strike, volatility float64, daysToExpiry int) float64 {
	return e.probabilityOTM(strike, spot, volatility, daysToExpiry)
}

// probabilityOTM is the single Black-Scholes d2 probability primitive.
// It is deliberately the only place this formula appears in the module.
func (e *Estimator) probabilityOTM(spot, strike, volatility float64, daysToExpiry int) float64 {
	if spot <= 0 || strike <= 0 {
		return 0
	}
	if daysToExpiry <= 0 || volatility <= 0 {
		if spot > strike {
			return 1
		}
		return 0
	}

	t := float64(daysToExpiry) / CalendarDaysPerYear
	d2 := (math.Log(spot/strike) + (e.riskFreeRate-0.5*volatility*volatility)*t) /
		(volatility * math.Sqrt(t))
	return normCDF(d2)
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// IVRank returns the percentile of currentIV within the historical range,
// clamped to [0, 100]. Invalid readings are filtered out first.
func IVRank(currentIV float64, historicalIVs []float64) float64 {
	if math.IsNaN(currentIV) || math.IsInf(currentIV, 0) {
		return 0
	}

	clean := make([]float64, 0, len(historicalIVs))
	for _, v := range historicalIVs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0
	}

	minIV := clean[0]
	maxIV := clean[0]
	for _, iv := range clean {
		if iv < minIV {
			minIV = iv
		}
		if iv > maxIV {
			maxIV = iv
		}
	}
	if maxIV == minIV {
		return 0
	}

	r := ((currentIV - minIV) / (maxIV - minIV)) * 100
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
