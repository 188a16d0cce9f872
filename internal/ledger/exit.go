package ledger

import "github.com/alanyoungcy/papertrader/internal/domain"

// hitStopLoss reports whether the observed price has crossed the stop-loss
// level for the position's direction. The boundary is inclusive.
func hitStopLoss(p domain.Position, price float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Direction == domain.DirectionLong {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

// hitTakeProfit reports whether the observed price has reached the
// take-profit level for the position's direction. The boundary is inclusive.
func hitTakeProfit(p domain.Position, price float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Direction == domain.DirectionLong {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// priceDiff is the direction-signed move from entry to the given price.
func priceDiff(p domain.Position, price float64) float64 {
	if p.Direction == domain.DirectionLong {
		return price - p.EntryPrice
	}
	return p.EntryPrice - price
}

// markPrice refreshes the position's current price and unrealized PnL.
func markPrice(p *domain.Position, price float64) {
	diff := priceDiff(*p, price)
	p.CurrentPrice = price
	p.UnrealizedPnL = diff * p.Quantity
	p.UnrealizedPnLPercent = diff / p.EntryPrice * 100
}
