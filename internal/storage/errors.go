package storage

import "errors"

// ErrNoState is returned when the ledger file has no persisted state yet
var ErrNoState = errors.New("no bankroll state persisted")
