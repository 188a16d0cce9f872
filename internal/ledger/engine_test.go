package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

const initialCapital = 10000.0

func defaultConfig() Config {
	return Config{InitialCapital: initialCapital}
}

// assertConservation checks the ledger identity: balance plus committed open
// size equals initial capital plus realized PnL of every retained trade.
// Only valid while history has not been truncated.
func assertConservation(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()

	bal, err := e.Balance(ctx)
	require.NoError(t, err)
	open, err := e.OpenPositions(ctx, "")
	require.NoError(t, err)
	hist, err := e.History(ctx, "", 0)
	require.NoError(t, err)

	var committed, realized float64
	for _, p := range open {
		committed += p.PositionSize
	}
	for _, tr := range hist {
		realized += tr.RealizedPnL
	}
	assert.InDelta(t, initialCapital+realized, bal+committed, 1e-6)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	_, err := e.Open(ctx, nil, 100, "u1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 0, "u1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), initialCapital+1, "u1", 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// A rejected open must leave the ledger untouched.
	bal, err := e.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, initialCapital, bal)
	open, err := e.OpenPositions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenDerivesPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	pos, err := e.Open(ctx, longPattern("ETHUSDT", 2000, 1900, 2200), 500, "u1", 1)
	require.NoError(t, err)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "u1", pos.OwnerID)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 0.25, pos.Quantity, 1e-9)
	assert.Equal(t, 1900.0, pos.StopLoss)
	assert.Equal(t, 2200.0, pos.TakeProfit)
	assert.Equal(t, 2000.0, pos.CurrentPrice)

	bal, err := e.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, initialCapital-500, bal)
	assertConservation(t, e)
}

func TestOpenTargetFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	long, err := e.Open(ctx, longPattern("BTCUSDT", 100, 95, 0), 100, "u1", 1)
	require.NoError(t, err)
	assert.InDelta(t, 102.0, long.TakeProfit, 1e-9)

	short, err := e.Open(ctx, shortPattern("BTCUSDT", 100, 105, 0), 100, "u1", 1)
	require.NoError(t, err)
	assert.InDelta(t, 98.0, short.TakeProfit, 1e-9)
}

func TestOpenDefaultsOwnerAndLeverage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := &fakeRemote{}
	e := startEngine(t, defaultConfig(), nil, remote, nil)

	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.AnonymousOwner, pos.OwnerID)
	assert.Equal(t, 1.0, pos.Leverage)

	// Anonymous positions are never mirrored.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Empty(t, remote.opened)
}

func TestClosePnL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pattern    *domain.Pattern
		exitPrice  float64
		wantPnL    float64
		wantPct    float64
		wantResult domain.TradeResult
	}{
		{
			name:       "long_profit",
			pattern:    longPattern("BTCUSDT", 100, 90, 120),
			exitPrice:  110,
			wantPnL:    10,
			wantPct:    10,
			wantResult: domain.TradeResultWin,
		},
		{
			name:       "long_loss",
			pattern:    longPattern("BTCUSDT", 100, 90, 120),
			exitPrice:  95,
			wantPnL:    -5,
			wantPct:    -5,
			wantResult: domain.TradeResultLoss,
		},
		{
			name:       "short_loss_on_rise",
			pattern:    shortPattern("BTCUSDT", 100, 110, 80),
			exitPrice:  110,
			wantPnL:    -10,
			wantPct:    -10,
			wantResult: domain.TradeResultLoss,
		},
		{
			name:       "short_profit_on_fall",
			pattern:    shortPattern("BTCUSDT", 100, 110, 80),
			exitPrice:  90,
			wantPnL:    10,
			wantPct:    10,
			wantResult: domain.TradeResultWin,
		},
		{
			// Exactly breakeven counts as a win by design.
			name:       "zero_pnl_is_win",
			pattern:    longPattern("BTCUSDT", 100, 90, 120),
			exitPrice:  100,
			wantPnL:    0,
			wantPct:    0,
			wantResult: domain.TradeResultWin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			e := startEngine(t, defaultConfig(), nil, nil, nil)

			// Size == entry price so quantity is exactly 1.
			pos, err := e.Open(ctx, tt.pattern, tt.pattern.Entry, "u1", 1)
			require.NoError(t, err)

			trade, err := e.Close(ctx, pos.ID, tt.exitPrice, domain.ExitReasonManual)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantPnL, trade.RealizedPnL, 1e-9)
			assert.InDelta(t, tt.wantPct, trade.RealizedPnLPercent, 1e-9)
			assert.Equal(t, tt.wantResult, trade.Result)
			assert.Equal(t, domain.ExitReasonManual, trade.ExitReason)
			assert.Equal(t, domain.PositionStatusClosed, trade.Status)
			assertConservation(t, e)
		})
	}
}

func TestCloseUnknownID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	_, err := e.Close(ctx, "no-such-id", 100, domain.ExitReasonManual)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestNoResurrection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)

	_, err = e.Close(ctx, pos.ID, 105, domain.ExitReasonManual)
	require.NoError(t, err)

	// The id must be gone from the open set and a second close must fail.
	open, err := e.OpenPositions(ctx, "")
	require.NoError(t, err)
	for _, p := range open {
		assert.NotEqual(t, pos.ID, p.ID)
	}
	_, err = e.Close(ctx, pos.ID, 105, domain.ExitReasonManual)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestHistoryCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	archiver := &fakeArchiver{}
	e := startEngine(t, Config{InitialCapital: 1e9}, nil, nil, archiver)

	var lastIDs []string
	for i := 0; i < 150; i++ {
		pos, err := e.Open(ctx, longPattern(fmt.Sprintf("SYM%d", i), 100, 90, 110), 100, "u1", 1)
		require.NoError(t, err)
		_, err = e.Close(ctx, pos.ID, 101, domain.ExitReasonManual)
		require.NoError(t, err)
		lastIDs = append(lastIDs, pos.ID)
	}

	hist, err := e.History(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, hist, 100)

	// Newest first: hist[0] is the 150th close, hist[99] the 51st.
	assert.Equal(t, lastIDs[149], hist[0].ID)
	assert.Equal(t, lastIDs[50], hist[99].ID)

	// The 50 oldest trades were evicted to the archiver.
	assert.Len(t, archiver.archived(), 50)
}

func TestEvaluateStopLossBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)

	// A feed price exactly at the stop must close, not merely mark.
	res, err := e.Evaluate(ctx, map[string]float64{"BTCUSDT": 90})
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Empty(t, res.Updated)
	assert.Equal(t, pos.ID, res.Closed[0].ID)
	assert.Equal(t, domain.ExitReasonStopLoss, res.Closed[0].ExitReason)
	// Settled at the stop level, not the observed price.
	assert.Equal(t, 90.0, res.Closed[0].ExitPrice)
	assertConservation(t, e)
}

func TestEvaluateTakeProfit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	pos, err := e.Open(ctx, shortPattern("ETHUSDT", 2000, 2100, 1900), 200, "u1", 1)
	require.NoError(t, err)

	// Price fell through the target; settle at the target level.
	res, err := e.Evaluate(ctx, map[string]float64{"ETHUSDT": 1880})
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, pos.ID, res.Closed[0].ID)
	assert.Equal(t, domain.ExitReasonTakeProfit, res.Closed[0].ExitReason)
	assert.Equal(t, 1900.0, res.Closed[0].ExitPrice)
}

func TestEvaluateTieBreakStopLossWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	// Inverted levels (never validated by default) make both conditions
	// true at once; stop-loss must win.
	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 110, 90), 100, "u1", 1)
	require.NoError(t, err)

	res, err := e.Evaluate(ctx, map[string]float64{"BTCUSDT": 100})
	require.NoError(t, err)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, pos.ID, res.Closed[0].ID)
	assert.Equal(t, domain.ExitReasonStopLoss, res.Closed[0].ExitReason)
	assert.Equal(t, 110.0, res.Closed[0].ExitPrice)
}

func TestEvaluateMarksSurvivors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	e := startEngine(t, defaultConfig(), store, nil, nil)

	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)
	savesBefore := store.saveCount()

	res, err := e.Evaluate(ctx, map[string]float64{"BTCUSDT": 105})
	require.NoError(t, err)

	assert.Empty(t, res.Closed)
	require.Len(t, res.Updated, 1)
	upd := res.Updated[0]
	assert.Equal(t, pos.ID, upd.ID)
	assert.Equal(t, 105.0, upd.CurrentPrice)
	assert.InDelta(t, 5.0, upd.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 5.0, upd.UnrealizedPnLPercent, 1e-9)

	// One batch, one save.
	assert.Equal(t, savesBefore+1, store.saveCount())
}

func TestEvaluateSkipsUnknownSymbols(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	e := startEngine(t, defaultConfig(), store, nil, nil)

	_, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)
	savesBefore := store.saveCount()

	// No price for the open symbol: neither valued nor closed, no persist.
	res, err := e.Evaluate(ctx, map[string]float64{"ETHUSDT": 2000})
	require.NoError(t, err)
	assert.Empty(t, res.Closed)
	assert.Empty(t, res.Updated)
	assert.Equal(t, savesBefore, store.saveCount())
}

func TestEvaluateNoOpenPositions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	e := startEngine(t, defaultConfig(), store, nil, nil)

	res, err := e.Evaluate(ctx, map[string]float64{"BTCUSDT": 100})
	require.NoError(t, err)
	assert.Empty(t, res.Closed)
	assert.Empty(t, res.Updated)
	assert.Equal(t, 0, store.saveCount())
}

func TestValidateLevelsOptIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, Config{InitialCapital: initialCapital, ValidateLevels: true}, nil, nil, nil)

	// Stop above entry on a long is rejected when validation is on.
	_, err := e.Open(ctx, longPattern("BTCUSDT", 100, 110, 120), 100, "u1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidLevels)

	// Correctly ordered levels pass.
	_, err = e.Open(ctx, longPattern("BTCUSDT", 100, 90, 120), 100, "u1", 1)
	assert.NoError(t, err)

	// Shorts are checked with the reversed ordering.
	_, err = e.Open(ctx, shortPattern("BTCUSDT", 100, 90, 120), 100, "u1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidLevels)
	_, err = e.Open(ctx, shortPattern("BTCUSDT", 100, 110, 80), 100, "u1", 1)
	assert.NoError(t, err)
}

func TestConservationAcrossSequence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	patterns := []*domain.Pattern{
		longPattern("BTCUSDT", 100, 90, 120),
		shortPattern("ETHUSDT", 2000, 2100, 1800),
		longPattern("SOLUSDT", 50, 45, 60),
		shortPattern("BTCUSDT", 110, 120, 95),
	}
	exits := []float64{105, 2050, 44, 96}

	var ids []string
	for i, p := range patterns {
		pos, err := e.Open(ctx, p, 100*float64(i+1), "u1", 1)
		require.NoError(t, err)
		ids = append(ids, pos.ID)
		assertConservation(t, e)
	}

	// Close two manually, leave two open, then evaluate a mixed snapshot.
	for i := 0; i < 2; i++ {
		_, err := e.Close(ctx, ids[i], exits[i], domain.ExitReasonManual)
		require.NoError(t, err)
		assertConservation(t, e)
	}

	_, err := e.Evaluate(ctx, map[string]float64{"SOLUSDT": 44, "BTCUSDT": 96})
	require.NoError(t, err)
	assertConservation(t, e)
}

func TestStatsZeroHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	_, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)
	_, err = e.Open(ctx, shortPattern("ETHUSDT", 2000, 2100, 1900), 300, "u1", 1)
	require.NoError(t, err)

	stats, err := e.Stats(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 0, stats.TotalTrades)
	assert.Equal(t, 2, stats.OpenTrades)
	assert.Zero(t, stats.WinRate)
	assert.Zero(t, stats.TotalPnL)
	assert.Equal(t, initialCapital-400, stats.Balance)
}

func TestStatsOwnerFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := startEngine(t, defaultConfig(), nil, nil, nil)

	for _, owner := range []string{"alice", "bob", "alice"} {
		pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, owner, 1)
		require.NoError(t, err)
		_, err = e.Close(ctx, pos.ID, 105, domain.ExitReasonManual)
		require.NoError(t, err)
	}

	stats, err := e.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTrades)

	hist, err := e.History(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestResetClearsLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	e := startEngine(t, defaultConfig(), store, nil, nil)

	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)
	_, err = e.Close(ctx, pos.ID, 105, domain.ExitReasonManual)
	require.NoError(t, err)

	require.NoError(t, e.Reset(ctx))

	bal, err := e.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, initialCapital, bal)
	open, err := e.OpenPositions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, open)
	hist, err := e.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)

	// The clean slate is persisted.
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, initialCapital, snap.Balance)
	assert.Empty(t, snap.Positions)
}

func TestLoadFailOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	store.loadErr = fmt.Errorf("corrupt snapshot")
	e := startEngine(t, defaultConfig(), store, nil, nil)

	bal, err := e.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, initialCapital, bal)
}

func TestLoadRestoresSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	store.snap = &domain.Snapshot{
		Positions: []domain.Position{{ID: "p1", Symbol: "BTCUSDT", PositionSize: 250, Status: domain.PositionStatusOpen}},
		Balance:   9750,
	}
	e := startEngine(t, defaultConfig(), store, nil, nil)

	open, err := e.OpenPositions(ctx, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "p1", open[0].ID)

	bal, err := e.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9750.0, bal)
}

func TestReconcileAdditiveMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := &fakeRemote{}
	e := startEngine(t, defaultConfig(), nil, remote, nil)

	local, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "alice", 1)
	require.NoError(t, err)

	remote.mu.Lock()
	remote.pull = []domain.Position{
		{ID: local.ID, OwnerID: "alice", Symbol: "BTCUSDT"}, // already local
		{ID: "remote-1", OwnerID: "alice", Symbol: "ETHUSDT", PositionSize: 50},
	}
	remote.mu.Unlock()

	merged, err := e.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, merged)

	open, err := e.OpenPositions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	// Reconcile for the anonymous sentinel is a no-op.
	merged, err = e.Reconcile(ctx, domain.AnonymousOwner)
	require.NoError(t, err)
	assert.Zero(t, merged)
}

func TestMirrorTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	remote := &fakeRemote{}
	e := startEngine(t, defaultConfig(), nil, remote, nil)

	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "alice", 1)
	require.NoError(t, err)
	_, err = e.Close(ctx, pos.ID, 105, domain.ExitReasonManual)
	require.NoError(t, err)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	require.Len(t, remote.opened, 1)
	require.Len(t, remote.closed, 1)
	assert.Equal(t, pos.ID, remote.opened[0].ID)
	assert.Equal(t, pos.ID, remote.closed[0].ID)
}

func TestSaveFailureDoesNotBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	store.saveFail = true
	e := startEngine(t, defaultConfig(), store, nil, nil)

	// Persistence failures are logged and swallowed; the in-memory ledger
	// keeps working.
	pos, err := e.Open(ctx, longPattern("BTCUSDT", 100, 90, 110), 100, "u1", 1)
	require.NoError(t, err)
	trade, err := e.Close(ctx, pos.ID, 110, domain.ExitReasonManual)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, trade.RealizedPnL, 1e-9)
	assertConservation(t, e)
}
