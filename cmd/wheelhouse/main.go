package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse/internal/bankroll"
	"github.com/eddiefleurent/wheelhouse/internal/config"
	"github.com/eddiefleurent/wheelhouse/internal/dashboard"
	"github.com/eddiefleurent/wheelhouse/internal/engine"
	"github.com/eddiefleurent/wheelhouse/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse/internal/mock"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
	"github.com/eddiefleurent/wheelhouse/internal/storage"
)

type App struct {
	config    *config.Config
	session   *engine.Session
	dashboard *dashboard.Server
	positions []*models.Position
	logger    *logrus.Logger
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment.LogLevel)
	logger.Infof("Starting wheelhouse in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Info("PAPER MODE - sizing recommendations only, no orders are placed")
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping...")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		logger.Fatalf("Engine error: %v", err)
	}

	logger.Info("Stopped")
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	ledger, err := buildLedger(cfg)
	if err != nil {
		return nil, err
	}

	mgr, err := buildBankroll(cfg, ledger, logger)
	if err != nil {
		return nil, err
	}

	positions, err := buildPositions(cfg, provider)
	if err != nil {
		return nil, err
	}

	estimator := stats.NewEstimator(cfg.Engine.RiskFreeRate)
	session := engine.NewSession(engine.Config{
		NumSimulations:        cfg.Engine.NumSimulations,
		LookbackDays:          cfg.Engine.LookbackDays,
		CommissionPerContract: cfg.Engine.CommissionPerContract,
		RecoveryStrikes:       cfg.Engine.RecoveryStrikes,
	}, provider, estimator, mgr, ledger, logger)

	app := &App{
		config:    cfg,
		session:   session,
		positions: positions,
		logger:    logger,
	}
	if cfg.Dashboard.Enabled {
		app.dashboard = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, session, logger)
	}
	return app, nil
}

func buildProvider(cfg *config.Config, logger *logrus.Logger) (marketdata.Provider, error) {
	switch cfg.Provider.Name {
	case "mock":
		return mock.NewProvider(), nil
	case "tradier":
		var base marketdata.Provider
		if cfg.Provider.APIEndpoint != "" {
			base = marketdata.NewTradierProviderWithBaseURL(cfg.Provider.APIKey, cfg.Provider.Sandbox, cfg.Provider.APIEndpoint)
		} else {
			base = marketdata.NewTradierProvider(cfg.Provider.APIKey, cfg.Provider.Sandbox)
		}
		retrying := marketdata.NewRetryProvider(base, log.New(logger.Writer(), "", 0))
		return marketdata.NewCircuitBreakerProvider(retrying), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func buildLedger(cfg *config.Config) (storage.Interface, error) {
	if cfg.Ledger.Path == "" {
		return nil, nil
	}
	ledger, err := storage.NewLedger(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return ledger, nil
}

func buildBankroll(cfg *config.Config, ledger storage.Interface, logger *logrus.Logger) (*bankroll.Manager, error) {
	bcfg := bankroll.Config{
		InitialBankroll:     cfg.Sizing.InitialBankroll,
		Mode:                cfg.KellyMode(),
		MaxPositionPct:      cfg.Sizing.MaxPositionPct,
		MaxTotalExposurePct: cfg.Sizing.MaxTotalExposurePct,
		MaxDrawdownPct:      cfg.Sizing.MaxDrawdownPct,
	}

	if ledger != nil {
		state, err := ledger.LoadState()
		switch {
		case err == nil:
			logger.WithField("bankroll", state.CurrentBankroll).Info("Resuming persisted bankroll")
			return bankroll.NewManagerFromState(bcfg, state, logger)
		case errors.Is(err, storage.ErrNoState):
		default:
			return nil, fmt.Errorf("loading bankroll state: %w", err)
		}
	}
	return bankroll.NewManager(bcfg, logger)
}

func buildPositions(cfg *config.Config, provider marketdata.Provider) ([]*models.Position, error) {
	positions := make([]*models.Position, 0, len(cfg.Positions))
	for _, pc := range cfg.Positions {
		spot, err := provider.GetCurrentPrice(pc.Symbol)
		if err != nil {
			return nil, fmt.Errorf("fetching spot for %s: %w", pc.Symbol, err)
		}
		expiration, err := time.Parse("2006-01-02", pc.Expiration)
		if err != nil {
			return nil, fmt.Errorf("parsing expiration for %s: %w", pc.Symbol, err)
		}
		pos, err := models.NewShortPut(pc.Symbol, pc.Strike, spot, expiration, pc.Premium, -pc.Contracts)
		if err != nil {
			return nil, fmt.Errorf("building position %s: %w", pc.Symbol, err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (a *App) Run(ctx context.Context) error {
	if a.dashboard != nil {
		go func() {
			if err := a.dashboard.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.WithError(err).Error("Dashboard server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.dashboard.Shutdown(shutdownCtx); err != nil {
				a.logger.WithError(err).Warn("Dashboard shutdown failed")
			}
		}()
	}

	ticker := time.NewTicker(a.config.GetCheckInterval())
	defer ticker.Stop()

	// Run immediately on start
	a.runCycle()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runCycle()
		}
	}
}

func (a *App) runCycle() {
	start := time.Now()
	reports := a.session.EvaluateAll(a.positions)
	a.logger.WithFields(logrus.Fields{
		"positions": len(a.positions),
		"reports":   len(reports),
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("Evaluation cycle complete")

	for _, report := range reports {
		fields := logrus.Fields{
			"symbol": report.Position.Symbol,
			"pnl":    report.Position.UnrealizedPnL(),
		}
		if len(report.Rolls) > 0 {
			best := report.Rolls[0]
			fields["best_action"] = best.Kind
			fields["score"] = best.Score
		}
		if report.Sizing != nil {
			fields["stake_pct"] = report.Sizing.RecommendedStakePct
			fields["risk"] = report.Sizing.RiskLevel
		}
		a.logger.WithFields(fields).Info("Position evaluated")
	}
}
