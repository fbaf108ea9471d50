package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/bankroll"
	"github.com/eddiefleurent/wheelhouse/internal/mock"
	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/stats"
	"github.com/eddiefleurent/wheelhouse/internal/storage"
)

func newTestSession(t *testing.T, ledger storage.Interface) *Session {
	t.Helper()
	mgr, err := bankroll.NewManager(bankroll.Config{
		InitialBankroll:     10000,
		Mode:                bankroll.ModeQuarter,
		MaxPositionPct:      10,
		MaxTotalExposurePct: 25,
		MaxDrawdownPct:      20,
	}, nil)
	require.NoError(t, err)

	return NewSession(Config{
		NumSimulations:        2000,
		LookbackDays:          50,
		CommissionPerContract: 0.65,
	}, mock.NewProviderAt(450, 20), stats.NewEstimator(0.05), mgr, ledger, nil)
}

func losingPosition(t *testing.T) *models.Position {
	t.Helper()
	// Deep ITM short put: spot near 450 against a 500 strike.
	pos, err := models.NewShortPut("SPY", 500, 450,
		time.Now().UTC().AddDate(0, 0, 14), 4.00, -1)
	require.NoError(t, err)
	return pos
}

func TestEvaluatePosition(t *testing.T) {
	s := newTestSession(t, nil)

	report, err := s.EvaluatePosition(losingPosition(t))
	require.NoError(t, err)

	assert.False(t, report.Snapshot.Fallback)
	assert.Positive(t, report.Snapshot.AnnualizedVolatility)

	require.NotNil(t, report.MonteCarlo)
	assert.Equal(t, 2000, report.MonteCarlo.NumSimulations)
	// Deep ITM: the simulated profit probability should be low.
	assert.Less(t, report.MonteCarlo.ProbabilityProfit, 0.5)

	// Accepting assignment is always feasible, so at least one strategy
	// survives, sorted best first.
	require.NotEmpty(t, report.Rolls)
	for i := 1; i < len(report.Rolls); i++ {
		assert.GreaterOrEqual(t, report.Rolls[i-1].Score, report.Rolls[i].Score)
	}

	// A losing position gets recovery opportunities and a sized bet.
	assert.NotEmpty(t, report.Opportunities)
	require.NotNil(t, report.Sizing)
	assert.LessOrEqual(t, report.Sizing.RecommendedStakePct, 10.0)
}

func TestEvaluatePosition_NilPosition(t *testing.T) {
	s := newTestSession(t, nil)
	_, err := s.EvaluatePosition(nil)
	assert.Error(t, err)
}

func TestEvaluateAll_CachesAndPersists(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "ledger.json")
	ledger, err := storage.NewJSONLedger(ledgerPath)
	require.NoError(t, err)

	s := newTestSession(t, ledger)

	reports := s.EvaluateAll([]*models.Position{losingPosition(t)})
	require.Len(t, reports, 1)

	cached, generatedAt := s.Reports()
	require.Len(t, cached, 1)
	assert.WithinDuration(t, time.Now(), generatedAt, time.Minute)

	// The bankroll state was written through the ledger.
	state, err := ledger.LoadState()
	require.NoError(t, err)
	assert.InDelta(t, 10000, state.CurrentBankroll, 1e-9)
}

func TestEvaluateAll_SkipsBadPositions(t *testing.T) {
	s := newTestSession(t, nil)

	good := losingPosition(t)
	bad := &models.Position{Symbol: "SPY", Strike: 500, ContractQuantity: 1} // long, rejected

	reports := s.EvaluateAll([]*models.Position{bad, good})
	assert.Len(t, reports, 1)
}

func TestEvaluateAll_SkipsNilPosition(t *testing.T) {
	s := newTestSession(t, nil)

	// A nil entry must be skipped with a warning, not crash the batch.
	reports := s.EvaluateAll([]*models.Position{nil, losingPosition(t)})
	require.Len(t, reports, 1)
	assert.Equal(t, "SPY", reports[0].Position.Symbol)
}
