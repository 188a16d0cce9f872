// Package supabase implements the remote position store against a Supabase
// PostgREST endpoint.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

const positionsTable = "paper_positions"

// Store mirrors position transitions to a Supabase table via PostgREST.
// Opens upsert a row keyed by position id; closes patch the same row with
// the settlement fields.
type Store struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Store.
//
// baseURL is the project REST root, e.g. "https://xyz.supabase.co/rest/v1".
func New(baseURL, apiKey string) *Store {
	return &Store{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// row is the wire shape of a mirrored position.
type row struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Symbol      string   `json:"symbol"`
	Direction   string   `json:"direction"`
	PatternType string   `json:"pattern_type,omitempty"`
	Timeframe   string   `json:"timeframe,omitempty"`
	EntryPrice  float64  `json:"entry_price"`
	StopLoss    float64  `json:"stop_loss"`
	TakeProfit  float64  `json:"take_profit"`
	Size        float64  `json:"position_size"`
	Quantity    float64  `json:"quantity"`
	Status      string   `json:"status"`
	OpenedAt    string   `json:"opened_at"`
	ClosedAt    *string  `json:"closed_at,omitempty"`
	ExitPrice   *float64 `json:"exit_price,omitempty"`
	ExitReason  *string  `json:"exit_reason,omitempty"`
	RealizedPnL *float64 `json:"realized_pnl,omitempty"`
	Result      *string  `json:"result,omitempty"`
}

func openRow(pos domain.Position) row {
	return row{
		ID:          pos.ID,
		OwnerID:     pos.OwnerID,
		Symbol:      pos.Symbol,
		Direction:   string(pos.Direction),
		PatternType: pos.PatternType,
		Timeframe:   pos.Timeframe,
		EntryPrice:  pos.EntryPrice,
		StopLoss:    pos.StopLoss,
		TakeProfit:  pos.TakeProfit,
		Size:        pos.PositionSize,
		Quantity:    pos.Quantity,
		Status:      string(pos.Status),
		OpenedAt:    pos.OpenedAt.Format(time.RFC3339Nano),
	}
}

// MirrorOpen upserts the freshly opened position.
func (s *Store) MirrorOpen(ctx context.Context, pos domain.Position) error {
	body, err := json.Marshal(openRow(pos))
	if err != nil {
		return fmt.Errorf("supabase: encode position %s: %w", pos.ID, err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/"+positionsTable, body)
	if err != nil {
		return err
	}
	// Merge on conflict so a replayed open stays idempotent.
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	return s.send(req, "mirror open "+pos.ID)
}

// MirrorClose patches the mirrored row with the settlement fields.
func (s *Store) MirrorClose(ctx context.Context, trade domain.ClosedTrade) error {
	closedAt := trade.ClosedAt.Format(time.RFC3339Nano)
	exitReason := string(trade.ExitReason)
	result := string(trade.Result)

	update := row{
		ID:          trade.ID,
		OwnerID:     trade.OwnerID,
		Symbol:      trade.Symbol,
		Direction:   string(trade.Direction),
		PatternType: trade.PatternType,
		Timeframe:   trade.Timeframe,
		EntryPrice:  trade.EntryPrice,
		StopLoss:    trade.StopLoss,
		TakeProfit:  trade.TakeProfit,
		Size:        trade.PositionSize,
		Quantity:    trade.Quantity,
		Status:      string(domain.PositionStatusClosed),
		OpenedAt:    trade.OpenedAt.Format(time.RFC3339Nano),
		ClosedAt:    &closedAt,
		ExitPrice:   &trade.ExitPrice,
		ExitReason:  &exitReason,
		RealizedPnL: &trade.RealizedPnL,
		Result:      &result,
	}

	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("supabase: encode trade %s: %w", trade.ID, err)
	}

	path := fmt.Sprintf("/%s?id=eq.%s", positionsTable, url.QueryEscape(trade.ID))
	req, err := s.newRequest(ctx, http.MethodPatch, path, body)
	if err != nil {
		return err
	}

	return s.send(req, "mirror close "+trade.ID)
}

// PullOpen fetches the owner's OPEN rows for reconciliation.
func (s *Store) PullOpen(ctx context.Context, ownerID string) ([]domain.Position, error) {
	path := fmt.Sprintf("/%s?owner_id=eq.%s&status=eq.%s",
		positionsTable, url.QueryEscape(ownerID), domain.PositionStatusOpen)

	req, err := s.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase: pull open for %s: %w", ownerID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("supabase: read pull response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supabase: pull open for %s: status %d: %s", ownerID, resp.StatusCode, data)
	}

	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("supabase: decode pull response: %w", err)
	}

	positions := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, r.toPosition())
	}
	return positions, nil
}

func (r row) toPosition() domain.Position {
	openedAt, _ := time.Parse(time.RFC3339Nano, r.OpenedAt)
	return domain.Position{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Symbol:       r.Symbol,
		Direction:    domain.Direction(r.Direction),
		EntryPrice:   r.EntryPrice,
		StopLoss:     r.StopLoss,
		TakeProfit:   r.TakeProfit,
		PositionSize: r.Size,
		Quantity:     r.Quantity,
		Leverage:     1,
		Status:       domain.PositionStatus(r.Status),
		OpenedAt:     openedAt,
		UpdatedAt:    openedAt,
		CurrentPrice: r.EntryPrice,
		PatternType:  r.PatternType,
		Timeframe:    r.Timeframe,
	}
}

func (s *Store) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("supabase: build request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *Store) send(req *http.Request, action string) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase: %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("supabase: %s: status %d: %s", action, resp.StatusCode, data)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Compile-time interface check.
var _ domain.RemoteStore = (*Store)(nil)
