package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

type fakeLedger struct {
	positions []domain.Position
	history   []domain.ClosedTrade
	stats     domain.Stats
	balance   float64

	openErr  error
	closeErr error

	lastOpen struct {
		pattern  domain.Pattern
		size     float64
		owner    string
		leverage float64
	}
	lastClose struct {
		id     string
		price  float64
		reason domain.ExitReason
	}
	reconciled map[string]int
	resetCount int
}

func (f *fakeLedger) Open(_ context.Context, pattern *domain.Pattern, positionSize float64, ownerID string, leverage float64) (domain.Position, error) {
	if f.openErr != nil {
		return domain.Position{}, f.openErr
	}
	f.lastOpen.pattern = *pattern
	f.lastOpen.size = positionSize
	f.lastOpen.owner = ownerID
	f.lastOpen.leverage = leverage
	return domain.Position{ID: "pos-1", Symbol: pattern.Symbol, Status: domain.PositionStatusOpen}, nil
}

func (f *fakeLedger) Close(_ context.Context, positionID string, exitPrice float64, reason domain.ExitReason) (domain.ClosedTrade, error) {
	if f.closeErr != nil {
		return domain.ClosedTrade{}, f.closeErr
	}
	f.lastClose.id = positionID
	f.lastClose.price = exitPrice
	f.lastClose.reason = reason
	return domain.ClosedTrade{
		Position:   domain.Position{ID: positionID},
		ExitPrice:  exitPrice,
		ExitReason: reason,
		ClosedAt:   time.Now().UTC(),
	}, nil
}

func (f *fakeLedger) OpenPositions(_ context.Context, ownerID string) ([]domain.Position, error) {
	if ownerID == "" {
		return f.positions, nil
	}
	var out []domain.Position
	for _, p := range f.positions {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeLedger) Reconcile(_ context.Context, ownerID string) (int, error) {
	return f.reconciled[ownerID], nil
}

func (f *fakeLedger) History(_ context.Context, _ string, limit int) ([]domain.ClosedTrade, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeLedger) Stats(_ context.Context, _ string) (domain.Stats, error) {
	return f.stats, nil
}

func (f *fakeLedger) Balance(_ context.Context) (float64, error) {
	return f.balance, nil
}

func (f *fakeLedger) Reset(_ context.Context) error {
	f.resetCount++
	return nil
}

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPositionMux(ledger LedgerService, prices domain.PriceSource) *http.ServeMux {
	h := NewPositionHandler(ledger, prices, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("POST /api/positions", h.OpenPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", h.ClosePosition)
	mux.HandleFunc("POST /api/reconcile", h.Reconcile)
	return mux
}

func TestListPositions(t *testing.T) {
	ledger := &fakeLedger{
		positions: []domain.Position{
			{ID: "a", OwnerID: "u1", Symbol: "BTCUSDT"},
			{ID: "b", OwnerID: "u2", Symbol: "ETHUSDT"},
		},
	}
	mux := newPositionMux(ledger, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Positions, 2)
}

func TestListPositionsOwnerFilter(t *testing.T) {
	ledger := &fakeLedger{
		positions: []domain.Position{
			{ID: "a", OwnerID: "u1"},
			{ID: "b", OwnerID: "u2"},
		},
	}
	mux := newPositionMux(ledger, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions?owner=u2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "b", resp.Positions[0].ID)
}

func TestOpenPosition(t *testing.T) {
	ledger := &fakeLedger{}
	mux := newPositionMux(ledger, nil)

	body, _ := json.Marshal(openPositionRequest{
		Pattern: domain.Pattern{
			Symbol:    "BTCUSDT",
			Direction: domain.DirectionLong,
			Entry:     100,
			StopLoss:  90,
			Targets:   []float64{120},
		},
		PositionSize: 500,
		OwnerID:      "u1",
		Leverage:     2,
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "BTCUSDT", ledger.lastOpen.pattern.Symbol)
	assert.Equal(t, 500.0, ledger.lastOpen.size)
	assert.Equal(t, "u1", ledger.lastOpen.owner)
	assert.Equal(t, 2.0, ledger.lastOpen.leverage)
}

func TestOpenPositionErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid parameters", domain.ErrInvalidParameters, http.StatusBadRequest},
		{"invalid levels", domain.ErrInvalidLevels, http.StatusBadRequest},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{openErr: tt.err}
			mux := newPositionMux(ledger, nil)

			body, _ := json.Marshal(openPositionRequest{Pattern: domain.Pattern{Symbol: "X"}})
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader(body)))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestClosePositionWithExplicitPrice(t *testing.T) {
	ledger := &fakeLedger{}
	mux := newPositionMux(ledger, nil)

	body := bytes.NewReader([]byte(`{"exitPrice": 111.5}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions/pos-9/close", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pos-9", ledger.lastClose.id)
	assert.Equal(t, 111.5, ledger.lastClose.price)
	assert.Equal(t, domain.ExitReasonManual, ledger.lastClose.reason)
}

func TestClosePositionFallsBackToCachedPrice(t *testing.T) {
	ledger := &fakeLedger{
		positions: []domain.Position{{ID: "pos-1", Symbol: "ETHUSDT"}},
	}
	prices := &fakePrices{prices: map[string]float64{"ETHUSDT": 2500}}
	mux := newPositionMux(ledger, prices)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/close", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2500.0, ledger.lastClose.price)
}

func TestClosePositionNoPriceAvailable(t *testing.T) {
	ledger := &fakeLedger{
		positions: []domain.Position{{ID: "pos-1", Symbol: "ETHUSDT"}},
	}
	mux := newPositionMux(ledger, &fakePrices{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions/pos-1/close", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestClosePositionNotFound(t *testing.T) {
	ledger := &fakeLedger{closeErr: domain.ErrPositionNotFound}
	mux := newPositionMux(ledger, nil)

	body := bytes.NewReader([]byte(`{"exitPrice": 1}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions/nope/close", body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcileRequiresOwner(t *testing.T) {
	mux := newPositionMux(&fakeLedger{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reconcile", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcile(t *testing.T) {
	ledger := &fakeLedger{reconciled: map[string]int{"u1": 3}}
	mux := newPositionMux(ledger, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reconcile?owner=u1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp["added"])
}
