package ledger

import "github.com/alanyoungcy/papertrader/internal/domain"

// statsWindow bounds the number of recent trades the aggregation considers.
const statsWindow = 1000

// computeStats derives aggregate performance from the closed trades, newest
// first. With no trades it returns a zeroed structure where OpenTrades and
// Balance still reflect the live ledger.
func computeStats(trades []domain.ClosedTrade, openCount int, balance float64) domain.Stats {
	stats := domain.Stats{
		OpenTrades: openCount,
		Balance:    balance,
	}
	if len(trades) == 0 {
		return stats
	}

	var winPnL, lossPnL float64
	stats.BestTrade = trades[0].RealizedPnL
	stats.WorstTrade = trades[0].RealizedPnL

	for _, t := range trades {
		stats.TotalTrades++
		stats.TotalPnL += t.RealizedPnL

		if t.Result == domain.TradeResultWin {
			stats.Wins++
			winPnL += t.RealizedPnL
		} else {
			stats.Losses++
			lossPnL += t.RealizedPnL
		}

		if t.RealizedPnL > stats.BestTrade {
			stats.BestTrade = t.RealizedPnL
		}
		if t.RealizedPnL < stats.WorstTrade {
			stats.WorstTrade = t.RealizedPnL
		}
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
	stats.AvgPnL = stats.TotalPnL / float64(stats.TotalTrades)

	// Not a true profit factor when there are no losing trades; the gross
	// win total is reported instead to avoid dividing by zero.
	if lossPnL < 0 {
		stats.ProfitFactor = winPnL / -lossPnL
	} else {
		stats.ProfitFactor = winPnL
	}

	return stats
}
