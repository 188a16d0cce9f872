package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// HistoryService defines the engine methods that the history handler requires.
type HistoryService interface {
	History(ctx context.Context, ownerID string, limit int) ([]domain.ClosedTrade, error)
}

// HistoryHandler serves the closed-trade history endpoint.
type HistoryHandler struct {
	ledger HistoryService
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler with the given service and logger.
func NewHistoryHandler(ledger HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		ledger: ledger,
		logger: logger,
	}
}

// listHistoryResponse wraps the trade history response.
type listHistoryResponse struct {
	Trades []domain.ClosedTrade `json:"trades"`
}

// ListHistory returns recent closed trades, newest first, optionally filtered
// by owner.
// GET /api/history?owner=...&limit=50
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	limit := parseLimit(r, 50, 100)

	trades, err := h.ledger.History(r.Context(), owner, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list history failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	if trades == nil {
		trades = []domain.ClosedTrade{}
	}

	writeJSON(w, http.StatusOK, listHistoryResponse{Trades: trades})
}
