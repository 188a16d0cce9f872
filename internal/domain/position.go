package domain

import "time"

// Direction is the side of a simulated bet.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// AnonymousOwner is the sentinel owner id for positions that are local-only
// and must never be mirrored to the remote store.
const AnonymousOwner = "anonymous"

// Position represents an open simulated trade. It is created only by the
// engine's open path, its price fields are refreshed by the exit monitor, and
// it leaves the open set exactly once, becoming a ClosedTrade.
type Position struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entryPrice"`
	StopLoss   float64   `json:"stopLoss"`
	TakeProfit float64   `json:"takeProfit"`

	// PositionSize is the notional cash committed; Quantity is
	// PositionSize / EntryPrice, fixed at open and never recomputed.
	PositionSize float64 `json:"positionSize"`
	Quantity     float64 `json:"quantity"`
	Leverage     float64 `json:"leverage"`

	Status    PositionStatus `json:"status"`
	OpenedAt  time.Time      `json:"openedAt"`
	UpdatedAt time.Time      `json:"updatedAt"`

	// Refreshed on every price update while open.
	CurrentPrice         float64 `json:"currentPrice"`
	UnrealizedPnL        float64 `json:"unrealizedPnL"`
	UnrealizedPnLPercent float64 `json:"unrealizedPnLPercent"`

	// Provenance from the originating pattern, opaque to the engine.
	PatternType string  `json:"patternType,omitempty"`
	Timeframe   string  `json:"timeframe,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Source      string  `json:"source,omitempty"`
}
