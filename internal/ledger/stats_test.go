package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func closedTrade(pnl float64) domain.ClosedTrade {
	result := domain.TradeResultWin
	if pnl < 0 {
		result = domain.TradeResultLoss
	}
	return domain.ClosedTrade{
		RealizedPnL: pnl,
		Result:      result,
	}
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{
		closedTrade(30),
		closedTrade(-10),
		closedTrade(20),
		closedTrade(-5),
	}

	stats := computeStats(trades, 3, 9500)

	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 3, stats.OpenTrades)
	assert.Equal(t, 2, stats.Wins)
	assert.Equal(t, 2, stats.Losses)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 35.0, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 8.75, stats.AvgPnL, 1e-9)
	assert.InDelta(t, 30.0, stats.BestTrade, 1e-9)
	assert.InDelta(t, -10.0, stats.WorstTrade, 1e-9)
	// 50 gross win / 15 gross loss.
	assert.InDelta(t, 50.0/15.0, stats.ProfitFactor, 1e-9)
	assert.Equal(t, 9500.0, stats.Balance)
}

func TestComputeStatsNoLosses(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{closedTrade(10), closedTrade(15)}
	stats := computeStats(trades, 0, 10025)

	// With no losing trades the gross win total stands in for the ratio.
	assert.InDelta(t, 25.0, stats.ProfitFactor, 1e-9)
	assert.InDelta(t, 100.0, stats.WinRate, 1e-9)
}

func TestComputeStatsBreakevenCountsAsWin(t *testing.T) {
	t.Parallel()

	trades := []domain.ClosedTrade{closedTrade(0), closedTrade(-10)}
	stats := computeStats(trades, 0, 9990)

	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
}

func TestComputeStatsEmpty(t *testing.T) {
	t.Parallel()

	stats := computeStats(nil, 2, 9600)

	assert.Zero(t, stats.TotalTrades)
	assert.Zero(t, stats.WinRate)
	assert.Zero(t, stats.TotalPnL)
	assert.Zero(t, stats.ProfitFactor)
	assert.Equal(t, 2, stats.OpenTrades)
	assert.Equal(t, 9600.0, stats.Balance)
}
