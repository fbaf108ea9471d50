package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

func tempLedgerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger.json")
}

func TestNewJSONLedger(t *testing.T) {
	path := tempLedgerPath(t)

	ledger, err := NewJSONLedger(path)
	if err != nil {
		t.Fatalf("NewJSONLedger failed: %v", err)
	}
	if ledger.Path() != path {
		t.Errorf("Path() = %q, want %q", ledger.Path(), path)
	}

	// Fresh ledger has no state yet.
	_, err = ledger.LoadState()
	if !errors.Is(err, ErrNoState) {
		t.Errorf("expected ErrNoState, got %v", err)
	}
}

func TestNewJSONLedger_EmptyPath(t *testing.T) {
	if _, err := NewJSONLedger(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestSaveAndLoadState(t *testing.T) {
	ledger, err := NewJSONLedger(tempLedgerPath(t))
	if err != nil {
		t.Fatalf("NewJSONLedger failed: %v", err)
	}

	state := models.BankrollState{
		InitialBankroll: 10000,
		CurrentBankroll: 10400,
		PeakBankroll:    10500,
		TradeHistory: []models.TradeRecord{
			{ID: "t1", Ticker: "XYZ", Stake: 900, Profit: 400},
		},
	}
	if err := ledger.SaveState(state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	loaded, err := ledger.LoadState()
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if loaded.CurrentBankroll != 10400 || loaded.PeakBankroll != 10500 {
		t.Errorf("loaded bankroll mismatch: %+v", loaded)
	}
	if len(loaded.TradeHistory) != 1 || loaded.TradeHistory[0].ID != "t1" {
		t.Errorf("loaded history mismatch: %+v", loaded.TradeHistory)
	}
}

func TestSaveState_LeavesNoTempFile(t *testing.T) {
	path := tempLedgerPath(t)
	ledger, err := NewJSONLedger(path)
	if err != nil {
		t.Fatalf("NewJSONLedger failed: %v", err)
	}

	if err := ledger.SaveState(models.BankrollState{InitialBankroll: 1000, CurrentBankroll: 1000}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestNewJSONLedger_RejectsCorruptFile(t *testing.T) {
	path := tempLedgerPath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	if _, err := NewJSONLedger(path); err == nil {
		t.Error("expected error for corrupt ledger file")
	}
}

func TestNewJSONLedger_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.json")
	ledger, err := NewJSONLedger(path)
	if err != nil {
		t.Fatalf("NewJSONLedger failed: %v", err)
	}
	if err := ledger.SaveState(models.BankrollState{InitialBankroll: 1, CurrentBankroll: 1}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
}
