// Package ledger implements the simulated trading engine: a single-writer
// actor that owns all open positions, the closed-trade history, and the cash
// balance. Every open, close, price evaluation, and read goes through the
// engine's command loop, so concurrent pollers can only ever propose price
// snapshots, never race on the position set.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// Take-profit fallback multipliers applied when a pattern carries no
// explicit target.
const (
	longTargetFallback  = 1.02
	shortTargetFallback = 0.98
)

// Config holds the engine's tunables.
type Config struct {
	// InitialCapital is the ledger's starting balance.
	InitialCapital float64
	// ValidateLevels, when true, rejects opens whose stop/target are on
	// the wrong side of the entry for the pattern's direction. Off by
	// default: the upstream detector is normally trusted.
	ValidateLevels bool
}

// EvalResult is the outcome of one price-snapshot evaluation pass.
type EvalResult struct {
	Closed  []domain.ClosedTrade `json:"closed"`
	Updated []domain.Position    `json:"updated"`
}

// Engine is the position lifecycle and exit-matching engine.
type Engine struct {
	cfg      Config
	store    domain.SnapshotStore
	remote   domain.RemoteStore
	archiver domain.TradeArchiver
	bus      domain.SignalBus
	logger   *slog.Logger

	now func() time.Time

	cmds    chan func(context.Context)
	stopped chan struct{}

	// book is owned by the Run goroutine; nothing else may touch it.
	book *book
}

// New creates an Engine. The remote store, archiver, and signal bus are all
// optional; a nil value disables that concern. The engine does nothing until
// Run is called.
func New(
	cfg Config,
	store domain.SnapshotStore,
	remote domain.RemoteStore,
	archiver domain.TradeArchiver,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		remote:   remote,
		archiver: archiver,
		bus:      bus,
		logger:   logger.With(slog.String("component", "ledger_engine")),
		now:      time.Now,
		cmds:     make(chan func(context.Context)),
		stopped:  make(chan struct{}),
		book:     newBook(cfg.InitialCapital),
	}
}

// Run loads persisted state and then serializes all engine commands until the
// context is cancelled. It must be called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)

	e.load(ctx)

	e.logger.InfoContext(ctx, "engine started",
		slog.Int("open_positions", len(e.book.positions)),
		slog.Int("history", len(e.book.history)),
		slog.Float64("balance", e.book.balance),
	)
	defer e.logger.Info("engine stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.cmds:
			cmd(ctx)
		}
	}
}

// load restores the book from the snapshot store. It is idempotent and
// fail-open: any load error resets the ledger to a clean slate at initial
// capital rather than propagating.
func (e *Engine) load(ctx context.Context) {
	if e.book.initialized {
		return
	}
	snap, err := e.store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.book.reset()
	case err != nil:
		e.logger.WarnContext(ctx, "snapshot load failed, starting clean",
			slog.String("error", err.Error()),
		)
		e.book.reset()
	default:
		e.book.restore(snap)
	}
}

// do submits fn to the engine goroutine and waits for it to complete.
func (e *Engine) do(ctx context.Context, fn func(context.Context)) error {
	done := make(chan struct{})
	wrapped := func(runCtx context.Context) {
		defer close(done)
		fn(runCtx)
	}

	select {
	case e.cmds <- wrapped:
	case <-e.stopped:
		return domain.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		return domain.ErrEngineClosed
	}
}

// Open validates the pattern and size, derives the position, debits the
// balance, persists, and mirrors the transition. It fails with
// ErrInvalidParameters or ErrInsufficientBalance without any partial effect.
func (e *Engine) Open(ctx context.Context, pattern *domain.Pattern, positionSize float64, ownerID string, leverage float64) (domain.Position, error) {
	var (
		pos    domain.Position
		opnErr error
	)
	err := e.do(ctx, func(runCtx context.Context) {
		pos, opnErr = e.openCmd(runCtx, pattern, positionSize, ownerID, leverage)
	})
	if err != nil {
		return domain.Position{}, err
	}
	return pos, opnErr
}

func (e *Engine) openCmd(ctx context.Context, pattern *domain.Pattern, positionSize float64, ownerID string, leverage float64) (domain.Position, error) {
	if pattern == nil || positionSize <= 0 || pattern.Entry <= 0 {
		return domain.Position{}, domain.ErrInvalidParameters
	}
	if positionSize > e.book.balance {
		return domain.Position{}, fmt.Errorf("%w: size %.2f exceeds balance %.2f",
			domain.ErrInsufficientBalance, positionSize, e.book.balance)
	}

	takeProfit := pattern.Target()
	if takeProfit == 0 {
		if pattern.Direction == domain.DirectionLong {
			takeProfit = pattern.Entry * longTargetFallback
		} else {
			takeProfit = pattern.Entry * shortTargetFallback
		}
	}

	if e.cfg.ValidateLevels {
		if err := checkLevels(pattern.Direction, pattern.Entry, pattern.StopLoss, takeProfit); err != nil {
			return domain.Position{}, err
		}
	}

	if ownerID == "" {
		ownerID = domain.AnonymousOwner
	}
	if leverage <= 0 {
		leverage = 1
	}

	now := e.now().UTC()
	pos := domain.Position{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Symbol:       pattern.Symbol,
		Direction:    pattern.Direction,
		EntryPrice:   pattern.Entry,
		StopLoss:     pattern.StopLoss,
		TakeProfit:   takeProfit,
		PositionSize: positionSize,
		Quantity:     positionSize / pattern.Entry,
		Leverage:     leverage,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     now,
		UpdatedAt:    now,
		CurrentPrice: pattern.Entry,
		PatternType:  pattern.Type,
		Timeframe:    pattern.Timeframe,
		Confidence:   pattern.Confidence,
		Source:       pattern.Type,
	}

	e.book.balance -= positionSize
	e.book.positions = append(e.book.positions, pos)

	e.persist(ctx)
	e.mirrorOpen(ctx, pos)
	e.publish(ctx, map[string]any{
		"event":       "position_opened",
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"direction":   string(pos.Direction),
		"entry_price": pos.EntryPrice,
		"size":        pos.PositionSize,
	})

	e.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size", pos.PositionSize),
	)
	return pos, nil
}

// checkLevels enforces stop < entry < target for longs and the reverse for
// shorts.
func checkLevels(dir domain.Direction, entry, stop, target float64) error {
	ok := stop < entry && entry < target
	if dir == domain.DirectionShort {
		ok = stop > entry && entry > target
	}
	if !ok {
		return fmt.Errorf("%w: direction=%s entry=%g stop=%g target=%g",
			domain.ErrInvalidLevels, dir, entry, stop, target)
	}
	return nil
}

// Close settles the position with the given id at exitPrice. It fails with
// ErrPositionNotFound when the id is not in the open set, which also makes a
// second close of the same id safely fail.
func (e *Engine) Close(ctx context.Context, positionID string, exitPrice float64, reason domain.ExitReason) (domain.ClosedTrade, error) {
	var (
		trade  domain.ClosedTrade
		clsErr error
	)
	err := e.do(ctx, func(runCtx context.Context) {
		i := e.book.indexOf(positionID)
		if i < 0 {
			clsErr = fmt.Errorf("%w: %s", domain.ErrPositionNotFound, positionID)
			return
		}
		trade = e.closeAt(runCtx, i, exitPrice, reason)
		e.persist(runCtx)
	})
	if err != nil {
		return domain.ClosedTrade{}, err
	}
	return trade, clsErr
}

// closeAt settles the open position at index i. It must run on the engine
// goroutine; the caller is responsible for persisting afterwards.
func (e *Engine) closeAt(ctx context.Context, i int, exitPrice float64, reason domain.ExitReason) domain.ClosedTrade {
	pos := e.book.positions[i]
	now := e.now().UTC()

	diff := priceDiff(pos, exitPrice)
	realized := diff * pos.Quantity

	result := domain.TradeResultWin
	if realized < 0 {
		result = domain.TradeResultLoss
	}

	pos.Status = domain.PositionStatusClosed
	pos.CurrentPrice = exitPrice
	pos.UnrealizedPnL = 0
	pos.UnrealizedPnLPercent = 0
	pos.UpdatedAt = now

	trade := domain.ClosedTrade{
		Position:           pos,
		ExitPrice:          exitPrice,
		ExitReason:         reason,
		ClosedAt:           now,
		RealizedPnL:        realized,
		RealizedPnLPercent: diff / pos.EntryPrice * 100,
		Result:             result,
		HoldingTime:        now.Sub(pos.OpenedAt),
	}

	e.book.balance += pos.PositionSize + realized
	e.book.remove(i)
	if evicted := e.book.prependHistory(trade); len(evicted) > 0 {
		e.archive(ctx, evicted)
	}

	e.mirrorClose(ctx, trade)
	e.publish(ctx, map[string]any{
		"event":        "position_closed",
		"position_id":  trade.ID,
		"symbol":       trade.Symbol,
		"exit_price":   trade.ExitPrice,
		"exit_reason":  string(trade.ExitReason),
		"realized_pnl": trade.RealizedPnL,
		"result":       string(trade.Result),
	})

	e.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", trade.ID),
		slog.String("symbol", trade.Symbol),
		slog.String("exit_reason", string(trade.ExitReason)),
		slog.Float64("exit_price", trade.ExitPrice),
		slog.Float64("realized_pnl", trade.RealizedPnL),
	)
	return trade
}

// Evaluate runs one exit-matching pass over the open set with the given
// price snapshot. Stop-loss is checked before take-profit for each position;
// triggered positions close at the stop or target level, not the observed
// price. Positions whose symbol is absent from prices are skipped. State is
// persisted once per pass, and only when something changed.
func (e *Engine) Evaluate(ctx context.Context, prices map[string]float64) (EvalResult, error) {
	var res EvalResult
	err := e.do(ctx, func(runCtx context.Context) {
		res = e.evaluateCmd(runCtx, prices)
	})
	if err != nil {
		return EvalResult{}, err
	}
	return res, nil
}

func (e *Engine) evaluateCmd(ctx context.Context, prices map[string]float64) EvalResult {
	var res EvalResult
	if len(e.book.positions) == 0 {
		return res
	}

	// Snapshot ids up front: closing shifts indices in the open set.
	ids := make([]string, len(e.book.positions))
	for i, p := range e.book.positions {
		ids[i] = p.ID
	}

	changed := false
	for _, id := range ids {
		i := e.book.indexOf(id)
		if i < 0 {
			continue
		}
		pos := e.book.positions[i]
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}

		switch {
		case hitStopLoss(pos, price):
			res.Closed = append(res.Closed, e.closeAt(ctx, i, pos.StopLoss, domain.ExitReasonStopLoss))
			changed = true
		case hitTakeProfit(pos, price):
			res.Closed = append(res.Closed, e.closeAt(ctx, i, pos.TakeProfit, domain.ExitReasonTakeProfit))
			changed = true
		default:
			markPrice(&e.book.positions[i], price)
			e.book.positions[i].UpdatedAt = e.now().UTC()
			res.Updated = append(res.Updated, e.book.positions[i])
			changed = true
		}
	}

	if changed {
		e.persist(ctx)
	}
	return res
}

// OpenPositions returns the open set, optionally filtered by owner.
func (e *Engine) OpenPositions(ctx context.Context, ownerID string) ([]domain.Position, error) {
	var out []domain.Position
	if err := e.do(ctx, func(context.Context) {
		out = e.book.openFor(ownerID)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns closed trades, newest first, optionally filtered by owner
// and bounded by limit (0 means all retained trades).
func (e *Engine) History(ctx context.Context, ownerID string, limit int) ([]domain.ClosedTrade, error) {
	var out []domain.ClosedTrade
	if err := e.do(ctx, func(context.Context) {
		out = e.book.historyFor(ownerID, limit)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the current cash balance.
func (e *Engine) Balance(ctx context.Context) (float64, error) {
	var bal float64
	if err := e.do(ctx, func(context.Context) {
		bal = e.book.balance
	}); err != nil {
		return 0, err
	}
	return bal, nil
}

// Stats aggregates performance over the (optionally owner-filtered) history.
func (e *Engine) Stats(ctx context.Context, ownerID string) (domain.Stats, error) {
	var stats domain.Stats
	if err := e.do(ctx, func(context.Context) {
		stats = computeStats(e.book.historyFor(ownerID, statsWindow), len(e.book.openFor(ownerID)), e.book.balance)
	}); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

// Reset clears the ledger back to initial capital and persists the clean
// slate.
func (e *Engine) Reset(ctx context.Context) error {
	return e.do(ctx, func(runCtx context.Context) {
		e.book.reset()
		e.persist(runCtx)
		e.logger.InfoContext(runCtx, "ledger reset",
			slog.Float64("balance", e.book.balance),
		)
	})
}

// Reconcile pulls the owner's OPEN positions from the remote store and merges
// any that are not already present locally. The merge is additive only; it
// never removes or overwrites local state.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (int, error) {
	if e.remote == nil || ownerID == "" || ownerID == domain.AnonymousOwner {
		return 0, nil
	}

	// Network pull happens outside the command loop so it cannot stall
	// other engine operations.
	remote, err := e.remote.PullOpen(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("ledger: pull remote positions for %q: %w", ownerID, err)
	}
	if len(remote) == 0 {
		return 0, nil
	}

	merged := 0
	doErr := e.do(ctx, func(runCtx context.Context) {
		for _, pos := range remote {
			if e.book.indexOf(pos.ID) >= 0 {
				continue
			}
			pos.Status = domain.PositionStatusOpen
			e.book.positions = append(e.book.positions, pos)
			merged++
		}
		if merged > 0 {
			e.persist(runCtx)
		}
	})
	if doErr != nil {
		return 0, doErr
	}
	if merged > 0 {
		e.logger.InfoContext(ctx, "merged remote positions",
			slog.String("owner_id", ownerID),
			slog.Int("merged", merged),
		)
	}
	return merged, nil
}

// persist writes the composite snapshot. Failures are logged and swallowed;
// the in-memory ledger stays authoritative for the running session.
func (e *Engine) persist(ctx context.Context) {
	if err := e.store.Save(ctx, e.book.snapshot()); err != nil {
		e.logger.WarnContext(ctx, "snapshot save failed",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) mirrorOpen(ctx context.Context, pos domain.Position) {
	if e.remote == nil || pos.OwnerID == domain.AnonymousOwner {
		return
	}
	if err := e.remote.MirrorOpen(ctx, pos); err != nil {
		e.logger.WarnContext(ctx, "remote mirror open failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) mirrorClose(ctx context.Context, trade domain.ClosedTrade) {
	if e.remote == nil || trade.OwnerID == domain.AnonymousOwner {
		return
	}
	if err := e.remote.MirrorClose(ctx, trade); err != nil {
		e.logger.WarnContext(ctx, "remote mirror close failed",
			slog.String("position_id", trade.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) archive(ctx context.Context, trades []domain.ClosedTrade) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.Archive(ctx, trades); err != nil {
		e.logger.WarnContext(ctx, "trade archive failed",
			slog.Int("trades", len(trades)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, event map[string]any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, "positions", payload); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("error", err.Error()),
		)
	}
}
