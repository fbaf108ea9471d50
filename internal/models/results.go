package models

import "time"

// MarketSnapshot holds the annualized statistics derived from a historical
// price series. It is recomputed per evaluation and never persisted.
type MarketSnapshot struct {
	Symbol               string  `json:"symbol"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	AnnualizedDrift      float64 `json:"annualized_drift"`
	RiskFreeRate         float64 `json:"risk_free_rate"`
	// Fallback is true when the series was too short and the documented
	// default volatility was substituted.
	Fallback bool `json:"fallback,omitempty"`
}

// StrategyKind identifies one of the four roll evaluation branches.
type StrategyKind string

const (
	// StrategyRollDown moves to a lower strike at the same expiration.
	StrategyRollDown StrategyKind = "roll_down"
	// StrategyRollOut keeps the strike and moves to a later expiration.
	StrategyRollOut StrategyKind = "roll_out"
	// StrategyRollDownAndOut combines a lower strike with a later expiration.
	StrategyRollDownAndOut StrategyKind = "roll_down_and_out"
	// StrategyAcceptAssignment takes assignment and continues the wheel.
	StrategyAcceptAssignment StrategyKind = "accept_assignment"
)

// Valid returns true if the StrategyKind is one of the defined constants.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyRollDown, StrategyRollOut, StrategyRollDownAndOut, StrategyAcceptAssignment:
		return true
	default:
		return false
	}
}

// ConfidenceTier labels the composite score of a ranked strategy.
type ConfidenceTier string

const (
	// ConfidenceHigh is assigned to composite scores >= 0.70.
	ConfidenceHigh ConfidenceTier = "high"
	// ConfidenceMedium is assigned to composite scores >= 0.50.
	ConfidenceMedium ConfidenceTier = "medium"
	// ConfidenceLow is assigned to all remaining scores.
	ConfidenceLow ConfidenceTier = "low"
)

// RollStrategyResult is the outcome of evaluating one strategy branch for a
// losing position. Results are constructed fresh per evaluation call and
// never mutated after construction.
type RollStrategyResult struct {
	Kind     StrategyKind `json:"kind"`
	Feasible bool         `json:"feasible"`
	// Reason explains infeasibility (missing chain, no candidate strikes)
	// in human-readable form.
	Reason              string         `json:"reason,omitempty"`
	NewStrike           float64        `json:"new_strike,omitempty"`
	NewExpiration       string         `json:"new_expiration,omitempty"`
	CloseCost           float64        `json:"close_cost"`
	OpenCredit          float64        `json:"open_credit"`
	NetCredit           float64        `json:"net_credit"`
	ProbabilityOfProfit float64        `json:"probability_of_profit"`
	CapitalAtRisk       float64        `json:"capital_at_risk"`
	DaysAdded           int            `json:"days_added"`
	Score               float64        `json:"score"`
	Confidence          ConfidenceTier `json:"confidence,omitempty"`
	Pros                []string       `json:"pros,omitempty"`
	Cons                []string       `json:"cons,omitempty"`
	// WheelContinuation is set on accept-assignment results when a covered
	// call above cost basis is available after assignment.
	WheelContinuation bool `json:"wheel_continuation,omitempty"`
}

// RecommendationTier is the textual buy recommendation for a recovery
// opportunity, derived from its composite score on a 0-100 scale.
type RecommendationTier string

const (
	// TierStrongBuy is assigned to composite scores >= 80.
	TierStrongBuy RecommendationTier = "STRONG_BUY"
	// TierBuy is assigned to composite scores >= 60.
	TierBuy RecommendationTier = "BUY"
	// TierConsider is assigned to composite scores >= 40.
	TierConsider RecommendationTier = "CONSIDER"
	// TierWeak is assigned to all remaining scores.
	TierWeak RecommendationTier = "WEAK"
)

// TierForScore maps a 0-100 composite score onto a recommendation tier.
func TierForScore(score float64) RecommendationTier {
	switch {
	case score >= 80:
		return TierStrongBuy
	case score >= 60:
		return TierBuy
	case score >= 40:
		return TierConsider
	default:
		return TierWeak
	}
}

// RecoveryOpportunity is a candidate new short put that could recover part
// of an existing loss. Opportunities are ordered by CompositeScore
// descending with ties broken by higher ProbabilityOfProfit.
type RecoveryOpportunity struct {
	Symbol              string             `json:"symbol"`
	Strike              float64            `json:"strike"`
	Premium             float64            `json:"premium"` // per share, at the bid
	Expiration          string             `json:"expiration"`
	DaysToExpiry        int                `json:"days_to_expiry"`
	YieldPct            float64            `json:"yield_pct"`
	AnnualizedYieldPct  float64            `json:"annualized_yield_pct"`
	ProbabilityOfProfit float64            `json:"probability_of_profit"`
	Breakeven           float64            `json:"breakeven"`
	RecoveryAmount      float64            `json:"recovery_amount"`
	RecoveryPct         float64            `json:"recovery_pct"`
	CompositeScore      float64            `json:"composite_score"` // 0-100
	Tier                RecommendationTier `json:"tier"`
}

// MonteCarloResult summarizes the terminal price distribution of a
// geometric Brownian motion simulation from the short-put seller's view.
type MonteCarloResult struct {
	ProbabilityProfit      float64         `json:"probability_profit"`
	ExpectedLossIfAssigned float64         `json:"expected_loss_if_assigned"`
	Percentiles            map[int]float64 `json:"percentiles"` // keys 5, 25, 50, 75, 95
	NumSimulations         int             `json:"num_simulations"`
}

// RiskLevel classifies a sized bet by its stake percentage.
type RiskLevel string

const (
	// RiskLow marks stakes below 4% of bankroll.
	RiskLow RiskLevel = "LOW"
	// RiskMedium marks stakes of at least 4% of bankroll.
	RiskMedium RiskLevel = "MEDIUM"
	// RiskHigh marks stakes of at least 8% of bankroll.
	RiskHigh RiskLevel = "HIGH"
	// RiskPass marks a hard-stop result: no bet should be placed.
	RiskPass RiskLevel = "PASS"
)

// BetSizing is the bounded position size produced for one opportunity.
// It reads the owning bankroll session's current bankroll and exposure at
// construction time and is immutable afterwards.
type BetSizing struct {
	Ticker              string    `json:"ticker"`
	KellyFraction       float64   `json:"kelly_fraction"`
	RecommendedStakePct float64   `json:"recommended_stake_pct"`
	MaxStakeDollars     float64   `json:"max_stake_dollars"`
	RiskLevel           RiskLevel `json:"risk_level"`
	EdgePct             float64   `json:"edge_pct"`
	Warnings            []string  `json:"warnings,omitempty"`
}

// TradeRecord is one entry in a bankroll session's ledger.
type TradeRecord struct {
	ID     string    `json:"id"`
	Ticker string    `json:"ticker"`
	Stake  float64   `json:"stake"`
	Profit float64   `json:"profit"`
	Opened time.Time `json:"opened"`
	Closed time.Time `json:"closed,omitempty"`
	Open   bool      `json:"open"`
}

// BankrollState is the mutable state owned by a single bankroll session.
// It is mutated only through the session's RecordTrade/ClosePosition
// methods; PeakBankroll is monotonically non-decreasing.
type BankrollState struct {
	InitialBankroll float64       `json:"initial_bankroll"`
	CurrentBankroll float64       `json:"current_bankroll"`
	PeakBankroll    float64       `json:"peak_bankroll"`
	ActivePositions []TradeRecord `json:"active_positions"`
	TradeHistory    []TradeRecord `json:"trade_history"`
}

// PerformanceStats summarizes realized performance of a bankroll session.
type PerformanceStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	ROIPct        float64 `json:"roi_pct"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"` // fraction of peak, 0.20 = 20%
}
