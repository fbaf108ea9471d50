package storage

import "github.com/eddiefleurent/wheelhouse/internal/models"

// Interface defines the contract for bankroll ledger persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call them from multiple
// goroutines.
//
// The provided JSONLedger implementation uses sync.RWMutex to serialize
// access.
type Interface interface {
	// LoadState returns the persisted bankroll state. ErrNoState is
	// returned when nothing has been saved yet.
	LoadState() (models.BankrollState, error)

	// SaveState persists the bankroll state atomically.
	SaveState(state models.BankrollState) error

	// Path returns the backing file location, for logs.
	Path() string
}

// NewLedger creates a new ledger implementation (currently JSON-based).
func NewLedger(filepath string) (Interface, error) {
	return NewJSONLedger(filepath)
}

// Ensure JSONLedger implements Interface
var _ Interface = (*JSONLedger)(nil)
