package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// StatsService defines the engine methods that the stats handler requires.
type StatsService interface {
	Stats(ctx context.Context, ownerID string) (domain.Stats, error)
	Balance(ctx context.Context) (float64, error)
	Reset(ctx context.Context) error
}

// StatsHandler serves aggregate performance and balance endpoints.
type StatsHandler struct {
	ledger StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler with the given service and logger.
func NewStatsHandler(ledger StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		ledger: ledger,
		logger: logger,
	}
}

// GetStats returns aggregate trade statistics, optionally for a single owner.
// GET /api/stats?owner=...
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	stats, err := h.ledger.Stats(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get stats failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetBalance returns the current simulated account balance.
// GET /api/balance
func (h *StatsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.Balance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

// Reset wipes the ledger back to its initial state.
// POST /api/reset
func (h *StatsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Reset(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: reset failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reset ledger")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
