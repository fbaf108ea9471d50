// Package models defines the value records exchanged between the recovery
// engine's components and its callers.
package models

import (
	"strings"
	"time"
)

const sharesPerContract = 100.0

// Position represents one short cash-secured put position under evaluation.
// Positions are constructed from an external broker feed via NewShortPut and
// are immutable within a single evaluation pass.
type Position struct {
	Symbol            string    `json:"symbol"`
	Strike            float64   `json:"strike"`
	CurrentSpotPrice  float64   `json:"current_spot_price"`
	Expiration        time.Time `json:"expiration"`
	PremiumCollected  float64   `json:"premium_collected"` // per share
	ContractQuantity  int       `json:"contract_quantity"` // signed, negative = short
	// MarkPrice is the current per-share price to close the short put.
	// Zero means no mark is available; loss calculations fall back to
	// intrinsic value.
	MarkPrice float64 `json:"mark_price,omitempty"`
}

// NewShortPut validates the broker feed inputs and constructs a Position.
// Malformed input is rejected at the boundary with InvalidParameterError.
func NewShortPut(symbol string, strike, spot float64, expiration time.Time,
	premiumPerShare float64, contracts int) (*Position, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, NewInvalidParameter("symbol", "must not be empty")
	}
	if strike <= 0 {
		return nil, NewInvalidParameter("strike", "must be positive (got %.4f)", strike)
	}
	if spot <= 0 {
		return nil, NewInvalidParameter("spot", "must be positive (got %.4f)", spot)
	}
	if premiumPerShare < 0 {
		return nil, NewInvalidParameter("premium", "must be non-negative (got %.4f)", premiumPerShare)
	}
	if contracts >= 0 {
		return nil, NewInvalidParameter("contracts", "short put quantity must be negative (got %d)", contracts)
	}
	if expiration.IsZero() {
		return nil, NewInvalidParameter("expiration", "must be set")
	}
	return &Position{
		Symbol:           strings.ToUpper(strings.TrimSpace(symbol)),
		Strike:           strike,
		CurrentSpotPrice: spot,
		Expiration:       expiration,
		PremiumCollected: premiumPerShare,
		ContractQuantity: contracts,
	}, nil
}

// DaysToExpiry returns the calendar days remaining until expiration,
// clamped to zero for expired positions.
func (p *Position) DaysToExpiry() int {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	exp := p.Expiration.UTC().Truncate(24 * time.Hour)
	days := int(exp.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Contracts returns the absolute number of contracts in the position.
func (p *Position) Contracts() int {
	if p.ContractQuantity < 0 {
		return -p.ContractQuantity
	}
	return p.ContractQuantity
}

// IsShortPut reports whether the position is a short put (negative quantity).
func (p *Position) IsShortPut() bool {
	return p.ContractQuantity < 0
}

// CostBasisPerShare returns the effective purchase price per share if the
// put is assigned: strike minus the premium already collected.
func (p *Position) CostBasisPerShare() float64 {
	return p.Strike - p.PremiumCollected
}

// CapitalAtRisk returns the cash securing the put: strike value across all
// contracts.
func (p *Position) CapitalAtRisk() float64 {
	return p.Strike * sharesPerContract * float64(p.Contracts())
}

// UnrealizedPnL returns the current profit or loss in dollars. When a mark
// price is available it is premium collected minus cost to close; otherwise
// intrinsic value is used as the close estimate.
func (p *Position) UnrealizedPnL() float64 {
	close := p.MarkPrice
	if close == 0 {
		close = p.Strike - p.CurrentSpotPrice
		if close < 0 {
			close = 0
		}
	}
	return (p.PremiumCollected - close) * sharesPerContract * float64(p.Contracts())
}

// LossPct returns the unrealized loss as a percentage of capital at risk.
// Positive P&L yields a negative loss percentage.
func (p *Position) LossPct() float64 {
	capital := p.CapitalAtRisk()
	if capital == 0 {
		return 0
	}
	return -p.UnrealizedPnL() / capital * 100
}
