package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore on a single-row-per-ledger
// table. The whole snapshot (positions, history, balance) goes through one
// UPSERT, so a crash can never leave the balance out of step with the
// position set.
type SnapshotStore struct {
	pool     *pgxpool.Pool
	ledgerID string
}

// NewSnapshotStore creates a SnapshotStore for the given ledger id.
func NewSnapshotStore(pool *pgxpool.Pool, ledgerID string) *SnapshotStore {
	return &SnapshotStore{pool: pool, ledgerID: ledgerID}
}

// Load reads the persisted snapshot. It returns domain.ErrNotFound when no
// snapshot has been written yet.
func (s *SnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	const query = `
		SELECT positions, history, balance
		FROM ledger_snapshots
		WHERE ledger_id = $1`

	var (
		positionsRaw []byte
		historyRaw   []byte
		snap         domain.Snapshot
	)
	err := s.pool.QueryRow(ctx, query, s.ledgerID).Scan(&positionsRaw, &historyRaw, &snap.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: load snapshot %s: %w", s.ledgerID, err)
	}

	if err := json.Unmarshal(positionsRaw, &snap.Positions); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: decode positions %s: %w", s.ledgerID, err)
	}
	if err := json.Unmarshal(historyRaw, &snap.History); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: decode history %s: %w", s.ledgerID, err)
	}
	return snap, nil
}

// Save replaces the persisted snapshot in a single statement.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	positions := snap.Positions
	if positions == nil {
		positions = []domain.Position{}
	}
	history := snap.History
	if history == nil {
		history = []domain.ClosedTrade{}
	}

	positionsRaw, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("postgres: encode positions %s: %w", s.ledgerID, err)
	}
	historyRaw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("postgres: encode history %s: %w", s.ledgerID, err)
	}

	const query = `
		INSERT INTO ledger_snapshots (ledger_id, positions, history, balance, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (ledger_id) DO UPDATE SET
			positions  = EXCLUDED.positions,
			history    = EXCLUDED.history,
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, s.ledgerID, positionsRaw, historyRaw, snap.Balance); err != nil {
		return fmt.Errorf("postgres: save snapshot %s: %w", s.ledgerID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
