package domain

// Stats is the aggregate performance view derived from closed-trade history.
// With an empty history it is zeroed except OpenTrades and Balance, which
// always reflect the live ledger.
type Stats struct {
	TotalTrades  int     `json:"totalTrades"`
	OpenTrades   int     `json:"openTrades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"winRate"`
	TotalPnL     float64 `json:"totalPnL"`
	AvgPnL       float64 `json:"avgPnL"`
	BestTrade    float64 `json:"bestTrade"`
	WorstTrade   float64 `json:"worstTrade"`
	ProfitFactor float64 `json:"profitFactor"`
	Balance      float64 `json:"balance"`
}
