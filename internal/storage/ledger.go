// Package storage persists the bankroll ledger between sessions. The JSON
// backend writes through a temp file and renames so a crash mid-write never
// leaves a truncated ledger on disk.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// ledgerFile is the on-disk document. Versioned so a future schema change
// can migrate old files instead of rejecting them.
type ledgerFile struct {
	Version     int                  `json:"version"`
	State       models.BankrollState `json:"state"`
	LastUpdated time.Time            `json:"last_updated"`
}

const ledgerVersion = 1

// JSONLedger stores the bankroll state in a single JSON file.
type JSONLedger struct {
	mu   sync.RWMutex
	path string
}

// NewJSONLedger opens or creates a ledger at path. The parent directory is
// created if missing; an existing file is validated so corruption surfaces
// at startup rather than on the first save.
func NewJSONLedger(path string) (*JSONLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	l := &JSONLedger{path: path}
	if _, err := os.Stat(path); err == nil {
		if _, err := l.LoadState(); err != nil {
			return nil, fmt.Errorf("loading existing ledger: %w", err)
		}
	}
	return l, nil
}

// Path returns the backing file location.
func (l *JSONLedger) Path() string {
	return l.path
}

// LoadState reads the persisted bankroll state from disk.
func (l *JSONLedger) LoadState() (models.BankrollState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return models.BankrollState{}, ErrNoState
	}
	if err != nil {
		return models.BankrollState{}, fmt.Errorf("reading ledger: %w", err)
	}

	var doc ledgerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.BankrollState{}, fmt.Errorf("parsing ledger: %w", err)
	}
	if doc.Version > ledgerVersion {
		return models.BankrollState{}, fmt.Errorf("ledger version %d is newer than supported %d", doc.Version, ledgerVersion)
	}
	return doc.State, nil
}

// SaveState persists the state atomically via temp file and rename.
func (l *JSONLedger) SaveState(state models.BankrollState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := ledgerFile{
		Version:     ledgerVersion,
		State:       state,
		LastUpdated: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing ledger file: %w", err)
	}
	return nil
}
