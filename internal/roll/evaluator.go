// Package roll evaluates recovery actions for a losing short put: rolling
// down, rolling out, rolling down-and-out, or accepting assignment.
package roll

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
	"github.com/eddiefleurent/wheelhouse/internal/util"
)

const (
	sharesPerContract = 100.0
	// rollDownFloorPct bounds roll-down candidates to strikes above 95%
	// of spot; below that the premium no longer pays for the roll.
	rollDownFloorPct = 0.95
	// maxRollOutExpirations caps the expiration search window.
	maxRollOutExpirations = 3
	// netCreditScoreCap and daysAddedScoreCap normalize dollar credits and
	// added days into [0, 1] for composite scoring.
	netCreditScoreCap = 5.0
	daysAddedScoreCap = 30.0
	// assignmentHorizonDays is the recovery horizon used to estimate the
	// probability that assigned shares climb back above cost basis.
	assignmentHorizonDays = 30
)

// Evaluator scores the four mutually exclusive actions for one losing
// position. Each strategy is evaluated independently and compared.
type Evaluator struct {
	provider   marketdata.Provider
	estimator  *stats.Estimator
	commission float64 // per contract, per leg
	logger     *logrus.Logger
}

// NewEvaluator creates an Evaluator. commissionPerContract is charged once
// per leg, so a roll (close + open) pays it twice.
func NewEvaluator(provider marketdata.Provider, estimator *stats.Estimator,
	commissionPerContract float64, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{
		provider:   provider,
		estimator:  estimator,
		commission: commissionPerContract,
		logger:     logger,
	}
}

// infeasible builds a result marked infeasible with a human-readable reason.
func infeasible(kind models.StrategyKind, format string, args ...interface{}) *models.RollStrategyResult {
	return &models.RollStrategyResult{
		Kind:     kind,
		Feasible: false,
		Reason:   fmt.Sprintf(format, args...),
	}
}

// closeCost returns the per-share cost to buy back the current short put at
// the bid/ask midpoint.
func closeCost(chain *marketdata.Chain, strike float64) (float64, error) {
	quote := chain.PutByStrike(strike)
	if quote == nil {
		return 0, fmt.Errorf("strike %.2f not present in %s chain", strike, chain.Expiration)
	}
	return quote.MidPrice(), nil
}

// EvaluateRollDown searches strikes below the current strike (and above 95%
// of spot) at the same expiration, maximizing a safety/premium blend.
func (e *Evaluator) EvaluateRollDown(pos *models.Position, snap models.MarketSnapshot) *models.RollStrategyResult {
	expiration := pos.Expiration.Format("2006-01-02")
	chain, err := e.provider.GetOptionChain(pos.Symbol, expiration)
	if err != nil {
		return infeasible(models.StrategyRollDown, "option chain unavailable: %v", err)
	}

	cost, err := closeCost(chain, pos.Strike)
	if err != nil {
		return infeasible(models.StrategyRollDown, "cannot price close: %v", err)
	}

	spot := pos.CurrentSpotPrice
	floor := spot * rollDownFloorPct

	var best *marketdata.OptionQuote
	bestScore := 0.0
	for i := range chain.Puts {
		q := &chain.Puts[i]
		if q.Strike >= pos.Strike-marketdata.StrikeMatchEpsilon || q.Strike <= floor || q.Bid <= 0 {
			continue
		}
		safety := (spot - q.Strike) / spot
		premiumYield := q.Bid / q.Strike
		score := 0.6*safety + 0.4*premiumYield
		if best == nil || score > bestScore {
			best = q
			bestScore = score
		}
	}
	if best == nil {
		return infeasible(models.StrategyRollDown,
			"no strikes between %.2f and %.2f available", floor, pos.Strike)
	}

	dte := pos.DaysToExpiry()
	netCredit := best.Bid - cost - 2*e.commission
	result := &models.RollStrategyResult{
		Kind:                models.StrategyRollDown,
		Feasible:            true,
		NewStrike:           best.Strike,
		NewExpiration:       expiration,
		CloseCost:           cost,
		OpenCredit:          best.Bid,
		NetCredit:           netCredit,
		ProbabilityOfProfit: e.estimator.ProbabilityOTMPut(spot, best.Strike, snap.AnnualizedVolatility, dte),
		CapitalAtRisk:       best.Strike * sharesPerContract * float64(pos.Contracts()),
		Pros: []string{
			fmt.Sprintf("lowers strike from %.2f to %.2f (%.1f%% more downside room)",
				pos.Strike, best.Strike, (pos.Strike-best.Strike)/spot*100),
		},
	}
	if netCredit < 0 {
		result.Cons = append(result.Cons,
			fmt.Sprintf("net debit of $%.2f per share to execute", -netCredit))
	} else {
		result.Pros = append(result.Pros, fmt.Sprintf("collects $%.2f additional credit per share", netCredit))
	}
	return result
}

// EvaluateRollOut keeps the strike and scores the next up-to-3 later
// expirations on probability, daily theta, and net credit.
func (e *Evaluator) EvaluateRollOut(pos *models.Position, snap models.MarketSnapshot) *models.RollStrategyResult {
	currentExp := pos.Expiration.Format("2006-01-02")
	chain, err := e.provider.GetOptionChain(pos.Symbol, currentExp)
	if err != nil {
		return infeasible(models.StrategyRollOut, "option chain unavailable: %v", err)
	}
	cost, err := closeCost(chain, pos.Strike)
	if err != nil {
		return infeasible(models.StrategyRollOut, "cannot price close: %v", err)
	}

	laterExps, err := e.laterExpirations(pos.Symbol, pos.Expiration)
	if err != nil {
		return infeasible(models.StrategyRollOut, "expirations unavailable: %v", err)
	}
	if len(laterExps) == 0 {
		return infeasible(models.StrategyRollOut, "no expirations after %s", currentExp)
	}

	spot := pos.CurrentSpotPrice
	var best *models.RollStrategyResult
	bestScore := 0.0
	for _, exp := range laterExps {
		laterChain, err := e.provider.GetOptionChain(pos.Symbol, exp)
		if err != nil {
			e.logger.WithFields(logrus.Fields{"symbol": pos.Symbol, "expiration": exp}).
				Debugf("skipping expiration: %v", err)
			continue
		}
		quote := laterChain.PutByStrike(pos.Strike)
		if quote == nil || quote.Bid <= 0 {
			continue
		}
		expDate, err := time.Parse("2006-01-02", exp)
		if err != nil {
			continue
		}
		daysAdded := marketdata.DaysBetween(pos.Expiration, expDate)
		if daysAdded <= 0 {
			continue
		}

		netCredit := quote.Bid - cost - 2*e.commission
		dailyTheta := netCredit / float64(daysAdded)
		newDTE := pos.DaysToExpiry() + daysAdded
		pop := e.estimator.ProbabilityOTMPut(spot, pos.Strike, snap.AnnualizedVolatility, newDTE)
		score := 0.5*pop + 0.3*dailyTheta + 0.2*netCredit

		if best == nil || score > bestScore {
			bestScore = score
			best = &models.RollStrategyResult{
				Kind:                models.StrategyRollOut,
				Feasible:            true,
				NewStrike:           pos.Strike,
				NewExpiration:       exp,
				CloseCost:           cost,
				OpenCredit:          quote.Bid,
				NetCredit:           netCredit,
				ProbabilityOfProfit: pop,
				CapitalAtRisk:       pos.CapitalAtRisk(),
				DaysAdded:           daysAdded,
				Pros: []string{
					fmt.Sprintf("adds %d days for the position to recover", daysAdded),
					fmt.Sprintf("collects $%.4f per share per day of added theta", dailyTheta),
				},
			}
			if netCredit < 0 {
				best.Cons = append(best.Cons, fmt.Sprintf("net debit of $%.2f per share", -netCredit))
			}
		}
	}
	if best == nil {
		return infeasible(models.StrategyRollOut,
			"strike %.2f not listed in any later chain", pos.Strike)
	}
	return best
}

// EvaluateRollDownAndOut crosses the roll-down strike search with the
// roll-out expiration search, preferring net-credit combinations.
func (e *Evaluator) EvaluateRollDownAndOut(pos *models.Position, snap models.MarketSnapshot) *models.RollStrategyResult {
	currentExp := pos.Expiration.Format("2006-01-02")
	chain, err := e.provider.GetOptionChain(pos.Symbol, currentExp)
	if err != nil {
		return infeasible(models.StrategyRollDownAndOut, "option chain unavailable: %v", err)
	}
	cost, err := closeCost(chain, pos.Strike)
	if err != nil {
		return infeasible(models.StrategyRollDownAndOut, "cannot price close: %v", err)
	}

	laterExps, err := e.laterExpirations(pos.Symbol, pos.Expiration)
	if err != nil || len(laterExps) == 0 {
		return infeasible(models.StrategyRollDownAndOut, "no later expirations available")
	}

	spot := pos.CurrentSpotPrice
	floor := spot * rollDownFloorPct

	var bestCredit *models.RollStrategyResult // best combination with netCredit > 0
	var bestAny *models.RollStrategyResult    // fallback when every combination is a debit
	bestCreditScore, bestAnyCredit := 0.0, 0.0

	for _, exp := range laterExps {
		laterChain, err := e.provider.GetOptionChain(pos.Symbol, exp)
		if err != nil {
			continue
		}
		expDate, err := time.Parse("2006-01-02", exp)
		if err != nil {
			continue
		}
		daysAdded := marketdata.DaysBetween(pos.Expiration, expDate)
		if daysAdded <= 0 {
			continue
		}
		newDTE := pos.DaysToExpiry() + daysAdded

		for i := range laterChain.Puts {
			q := &laterChain.Puts[i]
			if q.Strike >= pos.Strike-marketdata.StrikeMatchEpsilon || q.Strike <= floor || q.Bid <= 0 {
				continue
			}
			netCredit := q.Bid - cost - 2*e.commission
			pop := e.estimator.ProbabilityOTMPut(spot, q.Strike, snap.AnnualizedVolatility, newDTE)
			strikeReduction := (pos.Strike - q.Strike) / pos.Strike
			score := 0.4*util.NormalizeCapped(netCredit, netCreditScoreCap) +
				0.3*pop +
				0.2*strikeReduction +
				0.1*util.NormalizeCapped(float64(daysAdded), daysAddedScoreCap)

			candidate := &models.RollStrategyResult{
				Kind:                models.StrategyRollDownAndOut,
				Feasible:            true,
				NewStrike:           q.Strike,
				NewExpiration:       exp,
				CloseCost:           cost,
				OpenCredit:          q.Bid,
				NetCredit:           netCredit,
				ProbabilityOfProfit: pop,
				CapitalAtRisk:       q.Strike * sharesPerContract * float64(pos.Contracts()),
				DaysAdded:           daysAdded,
				Pros: []string{
					fmt.Sprintf("lowers strike to %.2f and adds %d days", q.Strike, daysAdded),
				},
			}
			if netCredit > 0 {
				if bestCredit == nil || score > bestCreditScore {
					bestCredit = candidate
					bestCreditScore = score
				}
			} else if bestAny == nil || netCredit > bestAnyCredit {
				bestAny = candidate
				bestAnyCredit = netCredit
			}
		}
	}

	if bestCredit != nil {
		bestCredit.Pros = append(bestCredit.Pros,
			fmt.Sprintf("net credit of $%.2f per share", bestCredit.NetCredit))
		return bestCredit
	}
	if bestAny != nil {
		// Net-debit combinations are rejected as a class; the least bad one
		// is still reported so the caller can see why.
		bestAny.Cons = append(bestAny.Cons,
			fmt.Sprintf("every combination is a net debit (best: $%.2f per share)", -bestAny.NetCredit))
		return bestAny
	}
	return infeasible(models.StrategyRollDownAndOut,
		"no strikes between %.2f and %.2f in later chains", floor, pos.Strike)
}

// EvaluateAcceptAssignment is the do-nothing branch: take the shares and
// check whether a covered call above cost basis continues the wheel.
func (e *Evaluator) EvaluateAcceptAssignment(pos *models.Position, snap models.MarketSnapshot) *models.RollStrategyResult {
	contracts := float64(pos.Contracts())
	costBasis := pos.CostBasisPerShare()
	spot := pos.CurrentSpotPrice
	immediateLoss := (costBasis - spot) * sharesPerContract * contracts

	result := &models.RollStrategyResult{
		Kind:     models.StrategyAcceptAssignment,
		Feasible: true, // accepting assignment is always available
		ProbabilityOfProfit: e.estimator.ProbabilityOTMPut(
			spot, costBasis, snap.AnnualizedVolatility, assignmentHorizonDays),
		CapitalAtRisk: pos.CapitalAtRisk(),
	}
	if immediateLoss > 0 {
		result.Cons = append(result.Cons,
			fmt.Sprintf("locks in $%.2f unrealized loss at assignment (cost basis %.2f vs spot %.2f)",
				immediateLoss, costBasis, spot))
	} else {
		result.Pros = append(result.Pros,
			fmt.Sprintf("cost basis %.2f already below spot %.2f", costBasis, spot))
	}

	if yield, exp, strike, ok := e.findWheelContinuation(pos.Symbol, costBasis); ok {
		result.WheelContinuation = true
		result.Pros = append(result.Pros,
			fmt.Sprintf("covered call at %.2f exp %s continues the wheel at %.1f%% annualized",
				strike, exp, yield*100))
	} else {
		result.Cons = append(result.Cons, "no covered call available above cost basis")
	}
	return result
}

// findWheelContinuation looks for the best-yielding covered call at or
// above cost basis in the nearest expiration.
func (e *Evaluator) findWheelContinuation(symbol string, costBasis float64) (annualizedYield float64, expiration string, strike float64, ok bool) {
	exps, err := e.provider.GetAvailableExpirations(symbol)
	if err != nil || len(exps) == 0 {
		return 0, "", 0, false
	}

	for _, exp := range exps {
		dte, err := marketdata.DaysUntil(exp)
		if err != nil || dte <= 0 {
			continue
		}
		chain, err := e.provider.GetOptionChain(symbol, exp)
		if err != nil {
			continue
		}
		for i := range chain.Calls {
			q := &chain.Calls[i]
			if q.Strike < costBasis || q.Bid <= 0 {
				continue
			}
			yield := (q.Bid / costBasis) * stats.CalendarDaysPerYear / float64(dte)
			if !ok || yield > annualizedYield {
				annualizedYield = yield
				expiration = exp
				strike = q.Strike
				ok = true
			}
		}
		if ok {
			// Nearest expiration with a workable call wins; later chains
			// only dilute the annualized yield.
			return annualizedYield, expiration, strike, true
		}
	}
	return 0, "", 0, false
}

// CompareStrategies evaluates all four branches, discards infeasible ones,
// scores the rest, and returns them ranked best first.
func (e *Evaluator) CompareStrategies(pos *models.Position, snap models.MarketSnapshot) ([]*models.RollStrategyResult, error) {
	if pos == nil {
		return nil, models.NewInvalidParameter("position", "must not be nil")
	}
	if !pos.IsShortPut() {
		return nil, models.NewInvalidParameter("position", "%s is not a short put", pos.Symbol)
	}

	all := []*models.RollStrategyResult{
		e.EvaluateRollDown(pos, snap),
		e.EvaluateRollOut(pos, snap),
		e.EvaluateRollDownAndOut(pos, snap),
		e.EvaluateAcceptAssignment(pos, snap),
	}

	originalCapital := pos.CapitalAtRisk()
	feasible := make([]*models.RollStrategyResult, 0, len(all))
	for _, r := range all {
		if !r.Feasible {
			e.logger.WithFields(logrus.Fields{
				"symbol":   pos.Symbol,
				"strategy": r.Kind,
			}).Infof("strategy infeasible: %s", r.Reason)
			continue
		}
		r.Score = compositeScore(r, originalCapital)
		r.Confidence = confidenceTier(r.Score)
		feasible = append(feasible, r)
	}

	sort.SliceStable(feasible, func(i, j int) bool {
		a, b := feasible[i], feasible[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ProbabilityOfProfit != b.ProbabilityOfProfit {
			return a.ProbabilityOfProfit > b.ProbabilityOfProfit
		}
		return a.CapitalAtRisk < b.CapitalAtRisk
	})
	return feasible, nil
}

// compositeScore blends probability, credit, capital efficiency and added
// time, with a bonus when assignment rolls straight into a covered call.
func compositeScore(r *models.RollStrategyResult, originalCapital float64) float64 {
	capitalRatio := 0.0
	if r.CapitalAtRisk > 0 {
		capitalRatio = originalCapital / r.CapitalAtRisk
	}
	score := 0.30*r.ProbabilityOfProfit +
		0.25*util.NormalizeCapped(r.NetCredit, netCreditScoreCap) +
		0.20*capitalRatio +
		0.15*util.NormalizeCapped(float64(r.DaysAdded), daysAddedScoreCap)
	if r.Kind == models.StrategyAcceptAssignment && r.WheelContinuation {
		score += 0.25
	}
	return score
}

func confidenceTier(score float64) models.ConfidenceTier {
	switch {
	case score >= 0.70:
		return models.ConfidenceHigh
	case score >= 0.50:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// laterExpirations returns up to maxRollOutExpirations listed expirations
// strictly after the position's current expiration, ascending.
func (e *Evaluator) laterExpirations(symbol string, after time.Time) ([]string, error) {
	exps, err := e.provider.GetAvailableExpirations(symbol)
	if err != nil {
		return nil, err
	}
	cutoff := after.UTC().Truncate(24 * time.Hour)
	var later []string
	for _, exp := range exps {
		d, err := time.Parse("2006-01-02", exp)
		if err != nil {
			continue
		}
		if d.After(cutoff) {
			later = append(later, exp)
			if len(later) == maxRollOutExpirations {
				break
			}
		}
	}
	return later, nil
}
