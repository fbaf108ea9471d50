// Package bankroll converts edge/probability/price triples into bounded
// position sizes via fractional Kelly sizing, enforces portfolio risk
// guards, and tracks realized performance.
package bankroll

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// KellyMode selects the fraction of full Kelly applied to every bet.
type KellyMode string

const (
	// ModeFull stakes the full Kelly fraction.
	ModeFull KellyMode = "full"
	// ModeHalf stakes half Kelly.
	ModeHalf KellyMode = "half"
	// ModeQuarter stakes quarter Kelly.
	ModeQuarter KellyMode = "quarter"
	// ModeEighth stakes eighth Kelly.
	ModeEighth KellyMode = "eighth"
)

// Fraction returns the Kelly multiplier for the mode. Unknown modes fall
// back to quarter Kelly, the most conservative common choice.
func (m KellyMode) Fraction() float64 {
	switch m {
	case ModeFull:
		return 1.0
	case ModeHalf:
		return 0.5
	case ModeQuarter:
		return 0.25
	case ModeEighth:
		return 0.125
	default:
		return 0.25
	}
}

// Valid returns true if the KellyMode is one of the defined constants.
func (m KellyMode) Valid() bool {
	switch m {
	case ModeFull, ModeHalf, ModeQuarter, ModeEighth:
		return true
	default:
		return false
	}
}

const (
	probabilityFloor = 0.01
	probabilityCeil  = 0.99
	// edgeClampPct bounds edge inputs so a pathological feed value cannot
	// dominate portfolio ordering.
	edgeClampPct = 500.0
	// confidenceFullScale is the confidence level above which no
	// additional downscaling applies.
	confidenceFullScale = 70.0
	riskHighPct         = 8.0
	riskMediumPct       = 4.0
)

// Config bounds a bankroll session.
type Config struct {
	InitialBankroll     float64
	Mode                KellyMode
	MaxPositionPct      float64 // largest single stake, percent of bankroll
	MaxTotalExposurePct float64 // portfolio-wide stake cap, percent
	MaxDrawdownPct      float64 // hard stop, percent decline from peak
}

// Opportunity is one sizing request for the portfolio calculator.
type Opportunity struct {
	Ticker         string
	WinProbability float64
	MarketPrice    float64
	EdgePct        float64
	Confidence     float64 // 0-100
}

// Manager owns one session's BankrollState. It is not safe for concurrent
// mutation: one trader, one process, or external mutual exclusion.
type Manager struct {
	cfg    Config
	state  models.BankrollState
	logger *logrus.Logger
}

// NewManager creates a bankroll session from scratch.
func NewManager(cfg Config, logger *logrus.Logger) (*Manager, error) {
	if cfg.InitialBankroll <= 0 {
		return nil, models.NewInvalidParameter("initial_bankroll", "must be positive (got %.2f)", cfg.InitialBankroll)
	}
	if !cfg.Mode.Valid() {
		return nil, models.NewInvalidParameter("kelly_mode", "unknown mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		state: models.BankrollState{
			InitialBankroll: cfg.InitialBankroll,
			CurrentBankroll: cfg.InitialBankroll,
			PeakBankroll:    cfg.InitialBankroll,
		},
	}, nil
}

// NewManagerFromState resumes a session from persisted state.
func NewManagerFromState(cfg Config, state models.BankrollState, logger *logrus.Logger) (*Manager, error) {
	m, err := NewManager(cfg, logger)
	if err != nil {
		return nil, err
	}
	if state.CurrentBankroll > 0 {
		m.state = state
		if m.state.PeakBankroll < m.state.CurrentBankroll {
			m.state.PeakBankroll = m.state.CurrentBankroll
		}
	}
	return m, nil
}

// State returns a copy of the session state for persistence or display.
func (m *Manager) State() models.BankrollState {
	st := m.state
	st.ActivePositions = append([]models.TradeRecord(nil), m.state.ActivePositions...)
	st.TradeHistory = append([]models.TradeRecord(nil), m.state.TradeHistory...)
	return st
}

// CurrentDrawdown returns the fractional decline from the peak bankroll.
func (m *Manager) CurrentDrawdown() float64 {
	if m.state.PeakBankroll <= 0 {
		return 0
	}
	return (m.state.PeakBankroll - m.state.CurrentBankroll) / m.state.PeakBankroll
}

// CurrentExposurePct returns open stakes as a percentage of the current
// bankroll.
func (m *Manager) CurrentExposurePct() float64 {
	if m.state.CurrentBankroll <= 0 {
		return 100
	}
	open := 0.0
	for _, t := range m.state.ActivePositions {
		open += t.Stake
	}
	return open / m.state.CurrentBankroll * 100
}

// CalculateKellyBet sizes one bet. The drawdown and exposure guards are
// hard stops checked before any Kelly arithmetic.
func (m *Manager) CalculateKellyBet(ticker string, winProbability, marketPrice, edgePct, confidence float64) models.BetSizing {
	sizing := models.BetSizing{Ticker: ticker, RiskLevel: models.RiskLow}

	winProbability = clampWithWarning(&sizing, "win_probability", winProbability, probabilityFloor, probabilityCeil)
	marketPrice = clampWithWarning(&sizing, "market_price", marketPrice, probabilityFloor, probabilityCeil)
	if edgePct > edgeClampPct || edgePct < -edgeClampPct {
		sizing.Warnings = append(sizing.Warnings,
			fmt.Sprintf("edge %.1f%% clamped to +/-%.0f%%", edgePct, edgeClampPct))
		edgePct = math.Max(-edgeClampPct, math.Min(edgeClampPct, edgePct))
	}
	sizing.EdgePct = edgePct

	// Hard stops come before any sizing arithmetic.
	if dd := m.CurrentDrawdown(); dd >= m.cfg.MaxDrawdownPct/100 {
		sizing.RiskLevel = models.RiskPass
		sizing.Warnings = append(sizing.Warnings, "STOP: Max drawdown reached")
		return sizing
	}
	if exp := m.CurrentExposurePct(); exp >= m.cfg.MaxTotalExposurePct {
		sizing.RiskLevel = models.RiskPass
		sizing.Warnings = append(sizing.Warnings, "STOP: Max total exposure reached")
		return sizing
	}

	decimalOdds := 1 / marketPrice
	b := decimalOdds - 1
	if b <= 0 {
		sizing.RiskLevel = models.RiskPass
		sizing.Warnings = append(sizing.Warnings, "no payout edge at this price")
		return sizing
	}

	q := 1 - winProbability
	kelly := (b*winProbability - q) / b
	kelly *= m.cfg.Mode.Fraction()

	if confidence < confidenceFullScale {
		scale := confidence / confidenceFullScale
		if scale < 0 {
			scale = 0
		}
		kelly *= scale
	}

	maxFraction := m.cfg.MaxPositionPct / 100
	if kelly < 0 {
		kelly = 0
	}
	if kelly > maxFraction {
		sizing.Warnings = append(sizing.Warnings,
			fmt.Sprintf("stake capped at %.1f%% of bankroll", m.cfg.MaxPositionPct))
		kelly = maxFraction
	}

	sizing.KellyFraction = kelly
	sizing.RecommendedStakePct = kelly * 100
	sizing.MaxStakeDollars = kelly * m.state.CurrentBankroll
	sizing.RiskLevel = riskLevelFor(sizing.RecommendedStakePct)
	return sizing
}

func riskLevelFor(stakePct float64) models.RiskLevel {
	switch {
	case stakePct >= riskHighPct:
		return models.RiskHigh
	case stakePct >= riskMediumPct:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func clampWithWarning(sizing *models.BetSizing, name string, v, lo, hi float64) float64 {
	if v < lo {
		sizing.Warnings = append(sizing.Warnings, fmt.Sprintf("%s %.4f clamped to %.2f", name, v, lo))
		return lo
	}
	if v > hi {
		sizing.Warnings = append(sizing.Warnings, fmt.Sprintf("%s %.4f clamped to %.2f", name, v, hi))
		return hi
	}
	return v
}

// CalculateMultiBetPortfolio sizes every opportunity independently, then
// scales all stakes down proportionally if their sum exceeds the portfolio
// exposure cap. The result is sorted by edge descending.
func (m *Manager) CalculateMultiBetPortfolio(opportunities []Opportunity) []models.BetSizing {
	sizings := make([]models.BetSizing, 0, len(opportunities))
	total := 0.0
	for _, opp := range opportunities {
		s := m.CalculateKellyBet(opp.Ticker, opp.WinProbability, opp.MarketPrice, opp.EdgePct, opp.Confidence)
		total += s.RecommendedStakePct
		sizings = append(sizings, s)
	}

	if total > m.cfg.MaxTotalExposurePct && total > 0 {
		scale := m.cfg.MaxTotalExposurePct / total
		for i := range sizings {
			if sizings[i].RecommendedStakePct == 0 {
				continue
			}
			sizings[i].RecommendedStakePct *= scale
			sizings[i].KellyFraction *= scale
			sizings[i].MaxStakeDollars *= scale
			sizings[i].Warnings = append(sizings[i].Warnings,
				fmt.Sprintf("scaled by %.2f to fit %.1f%% portfolio exposure cap", scale, m.cfg.MaxTotalExposurePct))
		}
	}

	sort.SliceStable(sizings, func(i, j int) bool {
		return sizings[i].EdgePct > sizings[j].EdgePct
	})
	return sizings
}

// RecordTrade registers a new open position and its committed stake.
func (m *Manager) RecordTrade(ticker string, stake float64) (string, error) {
	if stake <= 0 {
		return "", models.NewInvalidParameter("stake", "must be positive (got %.2f)", stake)
	}
	rec := models.TradeRecord{
		ID:     uuid.NewString(),
		Ticker: ticker,
		Stake:  stake,
		Opened: time.Now().UTC(),
		Open:   true,
	}
	m.state.ActivePositions = append(m.state.ActivePositions, rec)
	m.logger.WithFields(logrus.Fields{"ticker": ticker, "stake": stake, "trade_id": rec.ID}).
		Info("trade recorded")
	return rec.ID, nil
}

// ClosePosition realizes a trade's profit or loss, updates the bankroll,
// and moves the record into the append-only history. PeakBankroll only
// moves up.
func (m *Manager) ClosePosition(tradeID string, profit float64) error {
	idx := -1
	for i, t := range m.state.ActivePositions {
		if t.ID == tradeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("trade %s not found among active positions", tradeID)
	}

	rec := m.state.ActivePositions[idx]
	rec.Profit = profit
	rec.Closed = time.Now().UTC()
	rec.Open = false

	m.state.ActivePositions = append(m.state.ActivePositions[:idx], m.state.ActivePositions[idx+1:]...)
	m.state.TradeHistory = append(m.state.TradeHistory, rec)
	m.state.CurrentBankroll += profit
	if m.state.CurrentBankroll > m.state.PeakBankroll {
		m.state.PeakBankroll = m.state.CurrentBankroll
	}

	m.logger.WithFields(logrus.Fields{
		"ticker":   rec.Ticker,
		"profit":   profit,
		"bankroll": m.state.CurrentBankroll,
	}).Info("position closed")
	return nil
}

// PerformanceStats summarizes the closed-trade ledger: win rate, P&L, ROI,
// a Sharpe-like ratio of per-trade returns, and the maximum historical
// drawdown found by replaying the trade sequence against a running peak.
func (m *Manager) PerformanceStats() models.PerformanceStats {
	stats := models.PerformanceStats{}
	history := m.state.TradeHistory
	stats.TotalTrades = len(history)
	if len(history) == 0 {
		return stats
	}

	returns := make([]float64, 0, len(history))
	for _, t := range history {
		stats.TotalPnL += t.Profit
		if t.Profit > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		if t.Stake > 0 {
			returns = append(returns, t.Profit/t.Stake)
		}
	}
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	if m.state.InitialBankroll > 0 {
		stats.ROIPct = stats.TotalPnL / m.state.InitialBankroll * 100
	}
	stats.SharpeRatio = sharpeLike(returns)
	stats.MaxDrawdown = maxDrawdownReplay(m.state.InitialBankroll, history)
	return stats
}

// sharpeLike is mean(returns)/stddev(returns); zero when undefined.
func sharpeLike(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
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
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// maxDrawdownReplay replays the closed trades in order against a running
// peak and returns the deepest fractional decline observed.
func maxDrawdownReplay(initial float64, history []models.TradeRecord) float64 {
	bankroll := initial
	peak := initial
	maxDD := 0.0
	for _, t := range history {
		bankroll += t.Profit
		if bankroll > peak {
			peak = bankroll
		}
		if peak > 0 {
			if dd := (peak - bankroll) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
