package domain

import "time"

// ExitReason records why a position left the open set.
type ExitReason string

const (
	ExitReasonManual     ExitReason = "MANUAL"
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
)

// TradeResult classifies a closed trade. Zero realized PnL counts as a win.
type TradeResult string

const (
	TradeResultWin  TradeResult = "WIN"
	TradeResultLoss TradeResult = "LOSS"
)

// ClosedTrade is the snapshot of a position at close time plus settlement
// fields. History keeps the most recent ones, newest first.
type ClosedTrade struct {
	Position

	ExitPrice          float64       `json:"exitPrice"`
	ExitReason         ExitReason    `json:"exitReason"`
	ClosedAt           time.Time     `json:"closedAt"`
	RealizedPnL        float64       `json:"realizedPnL"`
	RealizedPnLPercent float64       `json:"realizedPnLPercent"`
	Result             TradeResult   `json:"result"`
	HoldingTime        time.Duration `json:"holdingTime"`
}
