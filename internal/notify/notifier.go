// Package notify fans position alerts out to the configured delivery
// channels (Telegram, Discord, FCM push). Delivery is always best-effort;
// the engine never waits on a channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// Sender is the interface each delivery channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the channel (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders, filtered by event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types; empty means allow all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// listed in events pass the filter; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification if the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyClosed formats and sends one alert per auto-closed trade. Callers
// (the pollers) surface every exit-monitor closure through here.
func (n *Notifier) NotifyClosed(ctx context.Context, closed []domain.ClosedTrade) {
	for _, trade := range closed {
		title, message := closeAlert(trade)
		if err := n.Notify(ctx, "position_closed", title, message); err != nil {
			n.logger.WarnContext(ctx, "close alert failed",
				slog.String("position_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// dispatch sends to every sender; one channel failing does not stop the
// others. Failures are combined into a single returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// closeAlert renders a closed trade as an alert title and body.
func closeAlert(trade domain.ClosedTrade) (string, string) {
	verb := "closed"
	switch trade.ExitReason {
	case domain.ExitReasonStopLoss:
		verb = "stopped out"
	case domain.ExitReasonTakeProfit:
		verb = "hit target"
	}

	title := fmt.Sprintf("%s %s %s", trade.Symbol, trade.Direction, verb)
	message := fmt.Sprintf("Exit %.8g (%s), PnL %+.2f (%+.2f%%), %s",
		trade.ExitPrice, trade.ExitReason, trade.RealizedPnL, trade.RealizedPnLPercent, trade.Result)
	return title, message
}
