package domain

import (
	"context"
	"time"
)

// Snapshot is the composite persisted ledger record. Open positions, capped
// history, and balance are written as a single unit so a crash can never
// desynchronize the balance from the position set.
type Snapshot struct {
	Positions []Position    `json:"positions"`
	History   []ClosedTrade `json:"history"`
	Balance   float64       `json:"balance"`
}

// SnapshotStore persists the ledger snapshot atomically.
type SnapshotStore interface {
	// Load returns the persisted snapshot, or ErrNotFound on a cold start.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the persisted snapshot in one write.
	Save(ctx context.Context, snap Snapshot) error
}

// RemoteStore mirrors position transitions to a remote view. Every method is
// best-effort from the engine's perspective; the local ledger stays
// authoritative on failure.
type RemoteStore interface {
	MirrorOpen(ctx context.Context, pos Position) error
	MirrorClose(ctx context.Context, trade ClosedTrade) error
	// PullOpen returns the remote OPEN positions for an owner, used for
	// additive reconciliation.
	PullOpen(ctx context.Context, ownerID string) ([]Position, error)
}

// PriceSource supplies the latest known prices for a set of symbols.
// Symbols with no known price are omitted from the result map.
type PriceSource interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// TradeArchiver receives closed trades evicted from the capped history.
type TradeArchiver interface {
	Archive(ctx context.Context, trades []ClosedTrade) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SignalBus broadcasts engine transitions as JSON payloads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
