// Package mirror provides the best-effort bridge between the local ledger
// and a remote position store. Transitions are queued in an outbox and
// replayed with backoff by a background worker, so a flaky network never
// blocks or rolls back the engine.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 2 * time.Minute
	defaultMaxQueue  = 1000
)

type transitionKind string

const (
	kindOpen  transitionKind = "open"
	kindClose transitionKind = "close"
)

type transition struct {
	kind     transitionKind
	pos      domain.Position
	trade    domain.ClosedTrade
	attempts int
}

func (t *transition) id() string {
	if t.kind == kindOpen {
		return t.pos.ID
	}
	return t.trade.ID
}

// Outbox implements domain.RemoteStore by queueing mirror transitions and
// replaying them in order against the real remote store. Enqueueing never
// fails; delivery is at-least-once and ordered, so the remote sees the
// insert before the close update for any given position.
type Outbox struct {
	remote domain.RemoteStore
	logger *slog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
	maxQueue  int

	mu    sync.Mutex
	queue []*transition
	wake  chan struct{}
}

// NewOutbox creates an Outbox in front of the given remote store.
func NewOutbox(remote domain.RemoteStore, logger *slog.Logger) *Outbox {
	return &Outbox{
		remote:    remote,
		logger:    logger.With(slog.String("component", "mirror_outbox")),
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		maxQueue:  defaultMaxQueue,
		wake:      make(chan struct{}, 1),
	}
}

// MirrorOpen queues an open transition. It never fails.
func (o *Outbox) MirrorOpen(_ context.Context, pos domain.Position) error {
	o.enqueue(&transition{kind: kindOpen, pos: pos})
	return nil
}

// MirrorClose queues a close transition. It never fails.
func (o *Outbox) MirrorClose(_ context.Context, trade domain.ClosedTrade) error {
	o.enqueue(&transition{kind: kindClose, trade: trade})
	return nil
}

// PullOpen is a passthrough; reconciliation reads are not queued.
func (o *Outbox) PullOpen(ctx context.Context, ownerID string) ([]domain.Position, error) {
	return o.remote.PullOpen(ctx, ownerID)
}

func (o *Outbox) enqueue(t *transition) {
	o.mu.Lock()
	if len(o.queue) >= o.maxQueue {
		dropped := o.queue[0]
		o.queue = o.queue[1:]
		o.logger.Warn("outbox full, dropping oldest transition",
			slog.String("kind", string(dropped.kind)),
			slog.String("position_id", dropped.id()),
		)
	}
	o.queue = append(o.queue, t)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of undelivered transitions.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Run replays queued transitions until the context is cancelled. A failed
// delivery stays at the head of the queue and is retried with exponential
// backoff; later transitions wait behind it to preserve ordering.
func (o *Outbox) Run(ctx context.Context) error {
	o.logger.Info("outbox started")
	defer o.logger.Info("outbox stopped")

	for {
		t := o.peek()
		if t == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-o.wake:
				continue
			}
		}

		if err := o.deliver(ctx, t); err != nil {
			t.attempts++
			delay := o.backoff(t.attempts)
			o.logger.WarnContext(ctx, "mirror delivery failed",
				slog.String("kind", string(t.kind)),
				slog.String("position_id", t.id()),
				slog.Int("attempts", t.attempts),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		o.pop()
	}
}

func (o *Outbox) peek() *transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	return o.queue[0]
}

func (o *Outbox) pop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) > 0 {
		o.queue = o.queue[1:]
	}
}

func (o *Outbox) deliver(ctx context.Context, t *transition) error {
	switch t.kind {
	case kindOpen:
		return o.remote.MirrorOpen(ctx, t.pos)
	default:
		return o.remote.MirrorClose(ctx, t.trade)
	}
}

func (o *Outbox) backoff(attempts int) time.Duration {
	delay := o.baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= o.maxDelay {
			return o.maxDelay
		}
	}
	return delay
}

// Compile-time interface check.
var _ domain.RemoteStore = (*Outbox)(nil)
