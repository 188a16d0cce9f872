package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// memStore is an in-memory SnapshotStore for tests. It counts saves so tests
// can assert the once-per-batch persistence behaviour.
type memStore struct {
	mu       sync.Mutex
	snap     *domain.Snapshot
	saves    int
	loadErr  error
	saveFail bool
}

func newMemStore() *memStore { return &memStore{} }

func (s *memStore) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.Snapshot{}, s.loadErr
	}
	if s.snap == nil {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return *s.snap, nil
}

func (s *memStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveFail {
		return errors.New("save failed")
	}
	s.snap = &snap
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// fakeRemote records mirror calls and serves canned pull results.
type fakeRemote struct {
	mu      sync.Mutex
	opened  []domain.Position
	closed  []domain.ClosedTrade
	pull    []domain.Position
	pullErr error
}

func (r *fakeRemote) MirrorOpen(_ context.Context, pos domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, pos)
	return nil
}

func (r *fakeRemote) MirrorClose(_ context.Context, trade domain.ClosedTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, trade)
	return nil
}

func (r *fakeRemote) PullOpen(_ context.Context, _ string) ([]domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pull, r.pullErr
}

// fakeArchiver collects evicted trades.
type fakeArchiver struct {
	mu     sync.Mutex
	trades []domain.ClosedTrade
}

func (a *fakeArchiver) Archive(_ context.Context, trades []domain.ClosedTrade) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, trades...)
	return nil
}

func (a *fakeArchiver) archived() []domain.ClosedTrade {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.ClosedTrade, len(a.trades))
	copy(out, a.trades)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startEngine builds an engine with the given deps (nil store gets a fresh
// memStore) and runs its command loop until the test ends.
func startEngine(t *testing.T, cfg Config, store domain.SnapshotStore, remote domain.RemoteStore, archiver domain.TradeArchiver) *Engine {
	t.Helper()
	if store == nil {
		store = newMemStore()
	}
	e := New(cfg, store, remote, archiver, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func longPattern(symbol string, entry, stop, target float64) *domain.Pattern {
	p := &domain.Pattern{
		Symbol:    symbol,
		Direction: domain.DirectionLong,
		Entry:     entry,
		StopLoss:  stop,
		Type:      "double_bottom",
		Timeframe: "4h",
	}
	if target > 0 {
		p.Targets = []float64{target}
	}
	return p
}

func shortPattern(symbol string, entry, stop, target float64) *domain.Pattern {
	p := &domain.Pattern{
		Symbol:    symbol,
		Direction: domain.DirectionShort,
		Entry:     entry,
		StopLoss:  stop,
		Type:      "head_and_shoulders",
		Timeframe: "1h",
	}
	if target > 0 {
		p.Targets = []float64{target}
	}
	return p
}
