// Package engine orchestrates one evaluation cycle: market statistics,
// Monte Carlo simulation, roll comparison, recovery scanning and bet
// sizing for every tracked position.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/bankroll"
	"github.com/eddiefleurent/wheelhouse/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/montecarlo"
	"github.com/eddiefleurent/wheelhouse/internal/recovery"
	"github.com/eddiefleurent/wheelhouse/internal/roll"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
	"github.com/eddiefleurent/wheelhouse/internal/storage"
	"github.com/eddiefleurent/wheelhouse/internal/util"
)

const (
	defaultNumSimulations = 10000
	defaultLookbackDays   = 50
	// confidencePenaltySlope converts the analytic-vs-simulated
	// probability gap into a 0-100 confidence score. A gap of half the
	// scale zeroes the confidence.
	confidencePenaltySlope = 200.0
)

// Config tunes an evaluation session.
type Config struct {
	NumSimulations        int
	LookbackDays          int
	CommissionPerContract float64
	RecoveryStrikes       int
}

func (c *Config) applyDefaults() {
	if c.NumSimulations <= 0 {
		c.NumSimulations = defaultNumSimulations
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaultLookbackDays
	}
	if c.RecoveryStrikes <= 0 {
		c.RecoveryStrikes = recovery.DefaultNumStrikes
	}
}

// PositionReport is the full decision bundle for one position.
type PositionReport struct {
	Position      *models.Position             `json:"position"`
	Snapshot      models.MarketSnapshot        `json:"snapshot"`
	MonteCarlo    *models.MonteCarloResult     `json:"monte_carlo"`
	Rolls         []*models.RollStrategyResult `json:"rolls"`
	Opportunities []models.RecoveryOpportunity `json:"opportunities,omitempty"`
	// Sizing is set when at least one recovery opportunity was found.
	Sizing      *models.BetSizing `json:"sizing,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Session wires the analysis components around one bankroll. Evaluation
// results are cached for the dashboard; the cache is guarded because the
// HTTP handlers read it while the evaluation loop writes it.
type Session struct {
	provider  marketdata.Provider
	estimator *stats.Estimator
	simulator *montecarlo.Simulator
	rolls     *roll.Evaluator
	recovery  *recovery.Analyzer
	bankroll  *bankroll.Manager
	ledger    storage.Interface
	logger    *logrus.Logger
	cfg       Config

	mu          sync.RWMutex
	lastReports []PositionReport
	lastStats   models.PerformanceStats
	lastRun     time.Time
}

// NewSession builds a session from its components. The ledger may be nil
// when persistence is disabled.
func NewSession(cfg Config, provider marketdata.Provider, estimator *stats.Estimator,
	mgr *bankroll.Manager, ledger storage.Interface, logger *logrus.Logger) *Session {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		provider:  provider,
		estimator: estimator,
		simulator: montecarlo.NewSimulator(),
		rolls:     roll.NewEvaluator(provider, estimator, cfg.CommissionPerContract, logger),
		recovery:  recovery.NewAnalyzer(provider, estimator, logger),
		bankroll:  mgr,
		ledger:    ledger,
		logger:    logger,
		cfg:       cfg,
	}
}

// EvaluatePosition runs the full analysis pipeline for one position.
func (s *Session) EvaluatePosition(pos *models.Position) (*PositionReport, error) {
	if pos == nil {
		return nil, models.NewInvalidParameter("position", "must not be nil")
	}

	spot, err := s.provider.GetCurrentPrice(pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching spot price for %s: %w", pos.Symbol, err)
	}
	pos.CurrentSpotPrice = spot

	closes, err := s.provider.GetHistoricalCloses(pos.Symbol, s.cfg.LookbackDays)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", pos.Symbol).
			Warn("historical closes unavailable, using fallback volatility")
		closes = nil
	}
	snap := s.estimator.Snapshot(pos.Symbol, closes)

	mc, err := s.simulator.Run(montecarlo.Params{
		Spot:         spot,
		Strike:       pos.Strike,
		Volatility:   snap.AnnualizedVolatility,
		Drift:        snap.AnnualizedDrift,
		DaysToExpiry: pos.DaysToExpiry(),
		NumSims:      s.cfg.NumSimulations,
	})
	if err != nil {
		return nil, fmt.Errorf("monte carlo simulation for %s: %w", pos.Symbol, err)
	}

	rolls, err := s.rolls.CompareStrategies(pos, snap)
	if err != nil {
		return nil, fmt.Errorf("comparing roll strategies for %s: %w", pos.Symbol, err)
	}

	report := &PositionReport{
		Position:    pos,
		Snapshot:    snap,
		MonteCarlo:  mc,
		Rolls:       rolls,
		GeneratedAt: time.Now().UTC(),
	}

	// Recovery scanning only applies to losing positions. A data gap here
	// degrades the report rather than failing it.
	if pos.UnrealizedPnL() < 0 {
		opps, err := s.recovery.FindRecoveryOpportunities(pos, s.cfg.RecoveryStrikes)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", pos.Symbol).
				Warn("recovery scan failed")
		} else {
			report.Opportunities = opps
			if len(opps) > 0 {
				sizing := s.sizeOpportunity(pos, snap, mc, opps[0])
				report.Sizing = &sizing
			}
		}
	}
	return report, nil
}

// sizeOpportunity translates the best recovery opportunity into Kelly
// inputs. The short put is modeled as a binary bet: risk the discounted
// strike, win the premium, with the OTM probability as the win chance.
func (s *Session) sizeOpportunity(pos *models.Position, snap models.MarketSnapshot,
	mc *models.MonteCarloResult, opp models.RecoveryOpportunity) models.BetSizing {
	marketPrice := (opp.Strike - opp.Premium) / opp.Strike
	edgePct := (opp.ProbabilityOfProfit - marketPrice) * 100

	analytic := s.estimator.ProbabilityOTMPut(pos.CurrentSpotPrice, pos.Strike,
		snap.AnnualizedVolatility, pos.DaysToExpiry())
	gap := analytic - mc.ProbabilityProfit
	if gap < 0 {
		gap = -gap
	}
	confidence := util.Clamp(100-confidencePenaltySlope*gap, 0, 100)

	return s.bankroll.CalculateKellyBet(opp.Symbol, opp.ProbabilityOfProfit,
		marketPrice, edgePct, confidence)
}

// EvaluateAll analyzes every position, skipping those that fail with a
// logged warning, then refreshes the cached reports and performance stats
// and persists the bankroll state.
func (s *Session) EvaluateAll(positions []*models.Position) []PositionReport {
	reports := make([]PositionReport, 0, len(positions))
	for _, pos := range positions {
		report, err := s.EvaluatePosition(pos)
		if err != nil {
			symbol := "<nil>"
			if pos != nil {
				symbol = pos.Symbol
			}
			s.logger.WithError(err).WithField("symbol", symbol).
				Warn("position evaluation skipped")
			continue
		}
		reports = append(reports, *report)
	}

	stats := s.bankroll.PerformanceStats()
	s.mu.Lock()
	s.lastReports = reports
	s.lastStats = stats
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.SaveState(s.bankroll.State()); err != nil {
			s.logger.WithError(err).Error("persisting bankroll state failed")
		}
	}
	return reports
}

// Reports returns the cached reports from the most recent evaluation.
func (s *Session) Reports() ([]PositionReport, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PositionReport(nil), s.lastReports...), s.lastRun
}

// PerformanceStats returns the cached bankroll statistics.
func (s *Session) PerformanceStats() models.PerformanceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStats
}

// BankrollState returns a copy of the live bankroll state.
func (s *Session) BankrollState() models.BankrollState {
	return s.bankroll.State()
}
