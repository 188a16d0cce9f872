// Package poll contains the periodic callers that feed price snapshots into
// the engine. A poller never mutates positions itself; it only proposes a
// snapshot, and the engine's command loop serializes the actual evaluation,
// so any number of pollers can run concurrently without racing on the
// position set.
package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/ledger"
)

// Evaluator is the slice of the engine a poller needs.
type Evaluator interface {
	OpenPositions(ctx context.Context, ownerID string) ([]domain.Position, error)
	Evaluate(ctx context.Context, prices map[string]float64) (ledger.EvalResult, error)
}

// Poller periodically fetches current prices for every open symbol and
// submits the snapshot to the engine.
type Poller struct {
	name     string
	interval time.Duration
	prices   domain.PriceSource
	engine   Evaluator
	onClosed func(ctx context.Context, closed []domain.ClosedTrade)
	logger   *slog.Logger
}

// New creates a Poller. onClosed may be nil; when set it receives the trades
// each pass auto-closed, for alert fan-out.
func New(
	name string,
	interval time.Duration,
	prices domain.PriceSource,
	engine Evaluator,
	onClosed func(ctx context.Context, closed []domain.ClosedTrade),
	logger *slog.Logger,
) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		prices:   prices,
		engine:   engine,
		onClosed: onClosed,
		logger:   logger.With(slog.String("component", "poller"), slog.String("poller", name)),
	}
}

// Run ticks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", slog.Duration("interval", p.interval))
	defer p.logger.Info("poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one snapshot pass. All failures are logged and swallowed; the
// next tick simply retries.
func (p *Poller) tick(ctx context.Context) {
	open, err := p.engine.OpenPositions(ctx, "")
	if err != nil {
		p.logger.WarnContext(ctx, "list open positions failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(open) == 0 {
		return
	}

	symbols := make([]string, 0, len(open))
	seen := make(map[string]bool, len(open))
	for _, pos := range open {
		if seen[pos.Symbol] {
			continue
		}
		seen[pos.Symbol] = true
		symbols = append(symbols, pos.Symbol)
	}

	prices, err := p.prices.GetPrices(ctx, symbols)
	if err != nil {
		p.logger.WarnContext(ctx, "price fetch failed",
			slog.Int("symbols", len(symbols)),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(prices) == 0 {
		return
	}

	res, err := p.engine.Evaluate(ctx, prices)
	if err != nil {
		p.logger.WarnContext(ctx, "evaluate failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(res.Closed) > 0 {
		p.logger.InfoContext(ctx, "positions auto-closed",
			slog.Int("closed", len(res.Closed)),
		)
		if p.onClosed != nil {
			p.onClosed(ctx, res.Closed)
		}
	}
}
