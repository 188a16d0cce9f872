package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func TestMirrorOpen(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotPrefer string
		gotBody   row
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		gotPrefer = r.Header.Get("Prefer")
		assert.Equal(t, "test-key", r.Header.Get("apikey"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := New(srv.URL, "test-key")
	pos := domain.Position{
		ID:           "pos-1",
		OwnerID:      "alice",
		Symbol:       "BTCUSDT",
		Direction:    domain.DirectionLong,
		EntryPrice:   100,
		StopLoss:     90,
		TakeProfit:   110,
		PositionSize: 500,
		Quantity:     5,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}

	require.NoError(t, store.MirrorOpen(context.Background(), pos))
	assert.Equal(t, "/paper_positions", gotPath)
	assert.Equal(t, "resolution=merge-duplicates", gotPrefer)
	assert.Equal(t, "pos-1", gotBody.ID)
	assert.Equal(t, "OPEN", gotBody.Status)
	assert.Equal(t, 500.0, gotBody.Size)
}

func TestMirrorClose(t *testing.T) {
	t.Parallel()

	var gotBody row
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "id=eq.pos-1", r.URL.RawQuery)

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := New(srv.URL, "test-key")
	trade := domain.ClosedTrade{
		Position: domain.Position{
			ID:        "pos-1",
			OwnerID:   "alice",
			Symbol:    "BTCUSDT",
			Direction: domain.DirectionLong,
			OpenedAt:  time.Now().UTC(),
		},
		ExitPrice:   110,
		ExitReason:  domain.ExitReasonTakeProfit,
		ClosedAt:    time.Now().UTC(),
		RealizedPnL: 50,
		Result:      domain.TradeResultWin,
	}

	require.NoError(t, store.MirrorClose(context.Background(), trade))
	assert.Equal(t, "CLOSED", gotBody.Status)
	require.NotNil(t, gotBody.ExitReason)
	assert.Equal(t, "TAKE_PROFIT", *gotBody.ExitReason)
	require.NotNil(t, gotBody.RealizedPnL)
	assert.Equal(t, 50.0, *gotBody.RealizedPnL)
}

func TestMirrorErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	store := New(srv.URL, "test-key")
	err := store.MirrorOpen(context.Background(), domain.Position{ID: "pos-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestPullOpen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "owner_id=eq.alice&status=eq.OPEN", r.URL.RawQuery)

		rows := []row{{
			ID:         "remote-1",
			OwnerID:    "alice",
			Symbol:     "ETHUSDT",
			Direction:  "SHORT",
			EntryPrice: 2000,
			Size:       250,
			Quantity:   0.125,
			Status:     "OPEN",
			OpenedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer srv.Close()

	store := New(srv.URL, "test-key")
	positions, err := store.PullOpen(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "remote-1", positions[0].ID)
	assert.Equal(t, domain.DirectionShort, positions[0].Direction)
	assert.Equal(t, 250.0, positions[0].PositionSize)
	assert.Equal(t, domain.PositionStatusOpen, positions[0].Status)
}
