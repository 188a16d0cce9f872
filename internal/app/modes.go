package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/poll"
	"github.com/alanyoungcy/papertrader/internal/server"
	"github.com/alanyoungcy/papertrader/internal/server/handler"
	"github.com/alanyoungcy/papertrader/internal/server/ws"
)

// EngineMode runs the ledger engine headless: the single-writer loop, the
// mirror outbox, and the price pollers, with alert fan-out on auto-closes.
// No HTTP surface is exposed.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEngine(ctx, g, deps)
	a.startPollers(ctx, g, deps)

	return g.Wait()
}

// ServeMode runs everything EngineMode runs plus the HTTP API and the
// WebSocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEngine(ctx, g, deps)
	a.startPollers(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startEngine adds the engine loop and, when configured, the mirror outbox
// replay loop to the errgroup.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	if deps.Outbox != nil {
		g.Go(func() error {
			return deps.Outbox.Run(ctx)
		})
	}
}

// startPollers adds the foreground and background price pollers. The
// foreground poller drives exit matching at a short cadence; the background
// poller is a slower safety sweep that also catches up after foreground
// stalls. Both fan auto-closed trades out to the notifier.
func (a *App) startPollers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	onClosed := func(ctx context.Context, closed []domain.ClosedTrade) {
		deps.Notifier.NotifyClosed(ctx, closed)
	}

	foreground := poll.New(
		"foreground",
		a.cfg.Poll.ForegroundInterval.Duration,
		deps.PriceCache,
		deps.Engine,
		onClosed,
		a.logger,
	)
	g.Go(func() error {
		return foreground.Run(ctx)
	})

	background := poll.New(
		"background",
		a.cfg.Poll.BackgroundInterval.Duration,
		deps.PriceCache,
		deps.Engine,
		onClosed,
		a.logger,
	)
	g.Go(func() error {
		return background.Run(ctx)
	})
}

// startHTTPServer adds the HTTP API server and the WebSocket hub to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		LedgerID:  a.cfg.Ledger.LedgerID,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(deps.Engine, deps.PriceCache, a.logger),
		History:   handler.NewHistoryHandler(deps.Engine, a.logger),
		Stats:     handler.NewStatsHandler(deps.Engine, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	// Shut the server down when the group context is cancelled.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
