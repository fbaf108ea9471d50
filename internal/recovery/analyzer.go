// Package recovery scans nearby strikes and expirations for new short put
// positions that could recover an existing loss, and ranks them.
package recovery

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
	"github.com/eddiefleurent/wheelhouse/internal/util"
)

const (
	sharesPerContract = 100.0
	// strikeCeilingPct restricts candidate puts to strikes below 95% of
	// spot so a recovery trade starts with real downside cushion.
	strikeCeilingPct = 0.95
	// maxExpirations caps the expiration scan window.
	maxExpirations = 3
	// DefaultNumStrikes is the per-expiration candidate count kept when
	// the caller does not specify one.
	DefaultNumStrikes = 5
	// supportLookbackDays sizes the trailing close series used for
	// support level detection.
	supportLookbackDays = 50
	// Composite score normalization caps.
	yieldScoreCap    = 0.10 // 10% period yield
	recoveryScoreCap = 1.0  // 100% of the loss recovered
)

// LosingPosition is a short put currently underwater, annotated with the
// context the analyzer derives for it.
type LosingPosition struct {
	Position      *models.Position `json:"position"`
	LossAmount    float64          `json:"loss_amount"` // negative
	LossPct       float64          `json:"loss_pct"`
	DaysToExpiry  int              `json:"days_to_expiry"`
	SupportLevels []float64        `json:"support_levels,omitempty"`
}

// Analyzer finds and ranks recovery opportunities for losing positions.
type Analyzer struct {
	provider  marketdata.Provider
	estimator *stats.Estimator
	logger    *logrus.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(provider marketdata.Provider, estimator *stats.Estimator, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Analyzer{provider: provider, estimator: estimator, logger: logger}
}

// AnalyzeLosingPositions filters to short puts with an unrealized loss and
// annotates each with loss metrics and nearby support levels.
func (a *Analyzer) AnalyzeLosingPositions(positions []*models.Position) []LosingPosition {
	losing := make([]LosingPosition, 0, len(positions))
	for _, pos := range positions {
		if pos == nil || !pos.IsShortPut() {
			continue
		}
		pnl := pos.UnrealizedPnL()
		if pnl >= 0 {
			continue
		}

		lp := LosingPosition{
			Position:     pos,
			LossAmount:   pnl,
			LossPct:      pos.LossPct(),
			DaysToExpiry: pos.DaysToExpiry(),
		}
		closes, err := a.provider.GetHistoricalCloses(pos.Symbol, supportLookbackDays)
		if err != nil {
			a.logger.WithField("symbol", pos.Symbol).Infof("no history for support levels: %v", err)
		} else {
			lp.SupportLevels = SupportLevels(closes)
		}
		losing = append(losing, lp)
	}
	return losing
}

// SupportLevels returns the local minima of a close series: every point
// strictly lower than both of its neighbors, ascending order preserved
// from the series.
func SupportLevels(closes []float64) []float64 {
	var levels []float64
	for i := 1; i < len(closes)-1; i++ {
		if closes[i] < closes[i-1] && closes[i] < closes[i+1] {
			levels = append(levels, closes[i])
		}
	}
	return levels
}

// FindRecoveryOpportunities scans the next expirations for candidate puts
// below 95% of spot and evaluates each candidate's recovery metrics against
// the position's current loss. numStrikes <= 0 selects DefaultNumStrikes
// per expiration.
func (a *Analyzer) FindRecoveryOpportunities(pos *models.Position, numStrikes int) ([]models.RecoveryOpportunity, error) {
	if pos == nil {
		return nil, models.NewInvalidParameter("position", "must not be nil")
	}
	if numStrikes <= 0 {
		numStrikes = DefaultNumStrikes
	}

	spot, err := a.provider.GetCurrentPrice(pos.Symbol)
	if err != nil {
		return nil, err
	}
	exps, err := a.provider.GetAvailableExpirations(pos.Symbol)
	if err != nil {
		return nil, err
	}

	closes, err := a.provider.GetHistoricalCloses(pos.Symbol, supportLookbackDays)
	if err != nil {
		// Snapshot falls back to the documented default volatility.
		closes = nil
	}
	snap := a.estimator.Snapshot(pos.Symbol, closes)

	currentLoss := math.Abs(math.Min(pos.UnrealizedPnL(), 0))
	ceiling := spot * strikeCeilingPct

	var opportunities []models.RecoveryOpportunity
	scanned := 0
	for _, exp := range exps {
		dte, err := marketdata.DaysUntil(exp)
		if err != nil || dte <= 0 {
			continue
		}
		if scanned == maxExpirations {
			break
		}
		scanned++

		chain, err := a.provider.GetOptionChain(pos.Symbol, exp)
		if err != nil {
			// One missing chain never aborts the scan.
			a.logger.WithFields(logrus.Fields{"symbol": pos.Symbol, "expiration": exp}).
				Infof("skipping expiration: %v", err)
			continue
		}

		candidates := topYieldingPuts(chain.Puts, ceiling, numStrikes)
		for _, q := range candidates {
			opportunities = append(opportunities,
				a.calculateRecoveryMetrics(pos.Symbol, q, exp, dte, spot, currentLoss, snap))
		}
	}

	return RankByScore(opportunities), nil
}

// topYieldingPuts keeps the numStrikes best premium-per-strike candidates
// below the ceiling.
func topYieldingPuts(puts []marketdata.OptionQuote, ceiling float64, numStrikes int) []marketdata.OptionQuote {
	candidates := make([]marketdata.OptionQuote, 0, len(puts))
	for _, q := range puts {
		if q.Strike >= ceiling || q.Bid <= 0 {
			continue
		}
		candidates = append(candidates, q)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Bid/candidates[i].Strike > candidates[j].Bid/candidates[j].Strike
	})
	if len(candidates) > numStrikes {
		candidates = candidates[:numStrikes]
	}
	return candidates
}

// calculateRecoveryMetrics computes the yield, probability, and recovery
// impact of one candidate put.
func (a *Analyzer) calculateRecoveryMetrics(symbol string, q marketdata.OptionQuote,
	expiration string, dte int, spot, currentLoss float64, snap models.MarketSnapshot) models.RecoveryOpportunity {
	premium := q.Bid // sell at the bid; conservative
	yield := premium / q.Strike
	annualized := yield * stats.CalendarDaysPerYear / float64(dte)
	pop := a.estimator.ProbabilityOTMPut(spot, q.Strike, snap.AnnualizedVolatility, dte)
	recoveryAmount := premium * sharesPerContract

	recoveryPct := 0.0
	if currentLoss > 0 {
		recoveryPct = recoveryAmount / currentLoss
	}

	proximity := 1 - math.Abs(q.Strike-spot)/spot
	composite := 0.4*pop +
		0.25*util.NormalizeCapped(yield, yieldScoreCap) +
		0.2*util.NormalizeCapped(recoveryPct, recoveryScoreCap) +
		0.15*proximity

	score := composite * 100
	return models.RecoveryOpportunity{
		Symbol:              symbol,
		Strike:              q.Strike,
		Premium:             premium,
		Expiration:          expiration,
		DaysToExpiry:        dte,
		YieldPct:            yield * 100,
		AnnualizedYieldPct:  annualized * 100,
		ProbabilityOfProfit: pop,
		Breakeven:           q.Strike - premium,
		RecoveryAmount:      recoveryAmount,
		RecoveryPct:         recoveryPct * 100,
		CompositeScore:      score,
		Tier:                models.TierForScore(score),
	}
}

// RankByScore sorts opportunities by composite score descending, breaking
// ties by higher probability of profit. The sort is stable so equal
// candidates keep their scan order.
func RankByScore(opps []models.RecoveryOpportunity) []models.RecoveryOpportunity {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].CompositeScore != opps[j].CompositeScore {
			return opps[i].CompositeScore > opps[j].CompositeScore
		}
		return opps[i].ProbabilityOfProfit > opps[j].ProbabilityOfProfit
	})
	return opps
}
