package ledger

import (
	"github.com/alanyoungcy/papertrader/internal/domain"
)

// historyCap bounds the closed-trade history. Older trades are evicted FIFO
// and handed to the archiver.
const historyCap = 100

// book is the in-memory ledger state: open positions, capped closed-trade
// history (newest first), and cash balance. It is owned exclusively by the
// engine goroutine and is never touched from outside it.
type book struct {
	initialCapital float64

	positions   []domain.Position
	history     []domain.ClosedTrade
	balance     float64
	initialized bool
}

func newBook(initialCapital float64) *book {
	return &book{
		initialCapital: initialCapital,
		balance:        initialCapital,
	}
}

// restore replaces the book's state from a persisted snapshot.
func (b *book) restore(snap domain.Snapshot) {
	b.positions = snap.Positions
	b.history = snap.History
	b.balance = snap.Balance
	b.initialized = true
}

// reset returns the book to a clean slate at initial capital.
func (b *book) reset() {
	b.positions = nil
	b.history = nil
	b.balance = b.initialCapital
	b.initialized = true
}

// snapshot captures the current state for persistence.
func (b *book) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Positions: make([]domain.Position, len(b.positions)),
		History:   make([]domain.ClosedTrade, len(b.history)),
		Balance:   b.balance,
	}
	copy(snap.Positions, b.positions)
	copy(snap.History, b.history)
	return snap
}

// indexOf returns the open-set index of the position with the given id, or -1.
func (b *book) indexOf(id string) int {
	for i := range b.positions {
		if b.positions[i].ID == id {
			return i
		}
	}
	return -1
}

// remove deletes the position at index i from the open set, preserving order.
func (b *book) remove(i int) {
	b.positions = append(b.positions[:i], b.positions[i+1:]...)
}

// prependHistory inserts a closed trade at the front of history and enforces
// the cap, returning any evicted trades (oldest first).
func (b *book) prependHistory(trade domain.ClosedTrade) []domain.ClosedTrade {
	b.history = append([]domain.ClosedTrade{trade}, b.history...)
	if len(b.history) <= historyCap {
		return nil
	}
	evicted := make([]domain.ClosedTrade, len(b.history)-historyCap)
	copy(evicted, b.history[historyCap:])
	b.history = b.history[:historyCap]
	return evicted
}

// openFor returns a copy of the open positions, optionally filtered by owner.
func (b *book) openFor(ownerID string) []domain.Position {
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		if ownerID != "" && p.OwnerID != ownerID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// historyFor returns a copy of the closed-trade history, newest first,
// optionally filtered by owner and bounded by limit (0 means no limit).
func (b *book) historyFor(ownerID string, limit int) []domain.ClosedTrade {
	out := make([]domain.ClosedTrade, 0, len(b.history))
	for _, t := range b.history {
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
