package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// LedgerService defines the engine methods that the position handler requires.
type LedgerService interface {
	Open(ctx context.Context, pattern *domain.Pattern, positionSize float64, ownerID string, leverage float64) (domain.Position, error)
	Close(ctx context.Context, positionID string, exitPrice float64, reason domain.ExitReason) (domain.ClosedTrade, error)
	OpenPositions(ctx context.Context, ownerID string) ([]domain.Position, error)
	Reconcile(ctx context.Context, ownerID string) (int, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	ledger LedgerService
	prices domain.PriceSource
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(ledger LedgerService, prices domain.PriceSource, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		prices: prices,
		logger: logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the open positions, optionally filtered by owner.
// GET /api/positions?owner=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	positions, err := h.ledger.OpenPositions(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// openPositionRequest is the JSON body for opening a simulated position.
type openPositionRequest struct {
	Pattern      domain.Pattern `json:"pattern"`
	PositionSize float64        `json:"positionSize"`
	OwnerID      string         `json:"ownerId"`
	Leverage     float64        `json:"leverage"`
}

// OpenPosition opens a new simulated position from a detected pattern.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pos, err := h.ledger.Open(r.Context(), &req.Pattern, req.PositionSize, req.OwnerID, req.Leverage)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidParameters), errors.Is(err, domain.ErrInvalidLevels):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, "insufficient balance")
		default:
			h.logger.ErrorContext(r.Context(), "handler: open position failed",
				slog.String("symbol", req.Pattern.Symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to open position")
		}
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// closePositionRequest is the JSON body for a manual close. ExitPrice is
// optional; when zero the latest cached price for the position's symbol is
// used instead.
type closePositionRequest struct {
	ExitPrice float64 `json:"exitPrice"`
}

// ClosePosition settles an open position at the given (or current) price.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	var req closePositionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	exitPrice := req.ExitPrice
	if exitPrice == 0 {
		price, ok := h.currentPrice(r.Context(), id)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "exitPrice required: no cached price for symbol")
			return
		}
		exitPrice = price
	}

	trade, err := h.ledger.Close(r.Context(), id, exitPrice, domain.ExitReasonManual)
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		if errors.Is(err, domain.ErrInvalidParameters) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: close position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to close position")
		return
	}

	writeJSON(w, http.StatusOK, trade)
}

// Reconcile merges remote OPEN positions for an owner into the local ledger.
// POST /api/reconcile?owner=...
func (h *PositionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}

	added, err := h.ledger.Reconcile(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: reconcile failed",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to reconcile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

// currentPrice resolves the latest cached price for the symbol of the open
// position with the given id.
func (h *PositionHandler) currentPrice(ctx context.Context, positionID string) (float64, bool) {
	if h.prices == nil {
		return 0, false
	}

	positions, err := h.ledger.OpenPositions(ctx, "")
	if err != nil {
		return 0, false
	}
	for _, pos := range positions {
		if pos.ID != positionID {
			continue
		}
		prices, err := h.prices.GetPrices(ctx, []string{pos.Symbol})
		if err != nil {
			return 0, false
		}
		price, ok := prices[pos.Symbol]
		return price, ok
	}
	return 0, false
}
