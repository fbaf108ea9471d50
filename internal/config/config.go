// Package config provides configuration management for the recovery engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/wheelhouse/internal/bankroll"
)

// Sizing Defaults
const (
	// defaultMaxPositionPct is used when sizing.max_position_pct is unset
	defaultMaxPositionPct = 10.0
	// defaultMaxTotalExposurePct is used when sizing.max_total_exposure_pct is unset
	defaultMaxTotalExposurePct = 25.0
	// defaultMaxDrawdownPct is used when sizing.max_drawdown_pct is unset
	defaultMaxDrawdownPct = 20.0
	// defaultNumSimulations is used when engine.num_simulations is unset
	defaultNumSimulations = 10000
	// defaultLookbackDays is used when engine.lookback_days is unset
	defaultLookbackDays = 50
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Engine      EngineConfig      `yaml:"engine"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Positions   []PositionConfig  `yaml:"positions"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines market data API settings.
type ProviderConfig struct {
	Name        string `yaml:"name"` // tradier | mock
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	Sandbox     bool   `yaml:"sandbox"`
}

// EngineConfig defines evaluation parameters.
type EngineConfig struct {
	CheckInterval         string  `yaml:"check_interval"` // Go duration, e.g. "15m"
	NumSimulations        int     `yaml:"num_simulations"`
	LookbackDays          int     `yaml:"lookback_days"`
	RiskFreeRate          float64 `yaml:"risk_free_rate"`
	CommissionPerContract float64 `yaml:"commission_per_contract"`
	RecoveryStrikes       int     `yaml:"recovery_strikes"`
}

// SizingConfig defines the bankroll and Kelly parameters.
type SizingConfig struct {
	InitialBankroll     float64 `yaml:"initial_bankroll"`
	KellyMode           string  `yaml:"kelly_mode"` // full | half | quarter | eighth
	MaxPositionPct      float64 `yaml:"max_position_pct"`
	MaxTotalExposurePct float64 `yaml:"max_total_exposure_pct"`
	MaxDrawdownPct      float64 `yaml:"max_drawdown_pct"`
}

// LedgerConfig defines persistence settings for the bankroll ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the JSON API settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// PositionConfig describes one tracked short put.
type PositionConfig struct {
	Symbol     string  `yaml:"symbol"`
	Strike     float64 `yaml:"strike"`
	Expiration string  `yaml:"expiration"` // YYYY-MM-DD
	Premium    float64 `yaml:"premium"`    // per share collected at open
	Contracts  int     `yaml:"contracts"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Sizing.MaxPositionPct == 0 {
		c.Sizing.MaxPositionPct = defaultMaxPositionPct
	}
	if c.Sizing.MaxTotalExposurePct == 0 {
		c.Sizing.MaxTotalExposurePct = defaultMaxTotalExposurePct
	}
	if c.Sizing.MaxDrawdownPct == 0 {
		c.Sizing.MaxDrawdownPct = defaultMaxDrawdownPct
	}
	if c.Sizing.KellyMode == "" {
		c.Sizing.KellyMode = string(bankroll.ModeQuarter)
	}
	if c.Engine.NumSimulations == 0 {
		c.Engine.NumSimulations = defaultNumSimulations
	}
	if c.Engine.LookbackDays == 0 {
		c.Engine.LookbackDays = defaultLookbackDays
	}
	if c.Engine.CheckInterval == "" {
		c.Engine.CheckInterval = "15m"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "mock"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Provider validation
	switch c.Provider.Name {
	case "tradier":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for tradier")
		}
	case "mock":
	default:
		return fmt.Errorf("provider.name must be 'tradier' or 'mock'")
	}
	if !c.IsPaperTrading() && c.Provider.Name == "mock" {
		return fmt.Errorf("live mode requires a real market data provider")
	}

	// Engine validation
	if _, err := time.ParseDuration(c.Engine.CheckInterval); err != nil {
		return fmt.Errorf("engine.check_interval invalid: %w", err)
	}
	if c.Engine.NumSimulations <= 0 {
		return fmt.Errorf("engine.num_simulations must be > 0")
	}
	if c.Engine.LookbackDays < 2 {
		return fmt.Errorf("engine.lookback_days must be >= 2")
	}
	if c.Engine.RiskFreeRate < 0 || c.Engine.RiskFreeRate > 0.25 {
		return fmt.Errorf("engine.risk_free_rate must be between 0 and 0.25")
	}
	if c.Engine.CommissionPerContract < 0 {
		return fmt.Errorf("engine.commission_per_contract must be >= 0")
	}

	// Sizing validation
	if c.Sizing.InitialBankroll <= 0 {
		return fmt.Errorf("sizing.initial_bankroll must be > 0")
	}
	if !bankroll.KellyMode(c.Sizing.KellyMode).Valid() {
		return fmt.Errorf("sizing.kelly_mode must be full, half, quarter or eighth")
	}
	if c.Sizing.MaxPositionPct <= 0 || c.Sizing.MaxPositionPct > 100 {
		return fmt.Errorf("sizing.max_position_pct must be in (0,100]")
	}
	if c.Sizing.MaxTotalExposurePct < c.Sizing.MaxPositionPct || c.Sizing.MaxTotalExposurePct > 100 {
		return fmt.Errorf("sizing.max_total_exposure_pct must be in [max_position_pct,100]")
	}
	if c.Sizing.MaxDrawdownPct <= 0 || c.Sizing.MaxDrawdownPct > 100 {
		return fmt.Errorf("sizing.max_drawdown_pct must be in (0,100]")
	}

	// Dashboard validation
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	// Position validation
	for i, p := range c.Positions {
		if p.Symbol == "" {
			return fmt.Errorf("positions[%d].symbol is required", i)
		}
		if p.Strike <= 0 {
			return fmt.Errorf("positions[%d].strike must be > 0", i)
		}
		if p.Premium < 0 {
			return fmt.Errorf("positions[%d].premium must be >= 0", i)
		}
		if p.Contracts <= 0 {
			return fmt.Errorf("positions[%d].contracts must be > 0", i)
		}
		if _, err := time.Parse("2006-01-02", p.Expiration); err != nil {
			return fmt.Errorf("positions[%d].expiration must be YYYY-MM-DD: %w", i, err)
		}
	}

	return nil
}

// IsPaperTrading returns true if the engine is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetCheckInterval returns the configured evaluation interval duration.
func (c *Config) GetCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Engine.CheckInterval)
	if err != nil {
		return 15 * time.Minute // default
	}
	return d
}

// KellyMode returns the configured mode as its typed value.
func (c *Config) KellyMode() bankroll.KellyMode {
	return bankroll.KellyMode(c.Sizing.KellyMode)
}
