package postgres

import (
	"context"
	"fmt"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// BattleStore implements storage.BattleStore using PostgreSQL.
type BattleStore struct {
	pool *Pool
}

// NewBattleStore creates a new BattleStore.
func NewBattleStore(pool *Pool) *BattleStore {
	return &BattleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BattleStore = (*BattleStore)(nil)

// UpsertBattleRecord inserts or replaces the record for its battle id.
// When the record is current, every other record is flipped to non-current
// in the same transaction.
func (s *BattleStore) UpsertBattleRecord(ctx context.Context, record *domain.BattleRecord) error {
	if record == nil || record.BattleID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if record.IsCurrent {
		if _, err := tx.Exec(ctx, `UPDATE battle_records SET is_current = FALSE WHERE is_current`); err != nil {
			return fmt.Errorf("flip previous current battle: %w", err)
		}
	}

	query := `
		INSERT INTO battle_records (battle_id, started_at, is_current)
		VALUES ($1, $2, $3)
		ON CONFLICT (battle_id)
		DO UPDATE SET started_at = EXCLUDED.started_at, is_current = EXCLUDED.is_current
	`
	if _, err := tx.Exec(ctx, query, record.BattleID, record.StartedAt, record.IsCurrent); err != nil {
		return fmt.Errorf("upsert battle record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// SetCurrentBattle marks the given battle current and flips all others.
func (s *BattleStore) SetCurrentBattle(ctx context.Context, battleID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE battle_records SET is_current = FALSE WHERE is_current`); err != nil {
		return fmt.Errorf("flip previous current battle: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE battle_records SET is_current = TRUE WHERE battle_id = $1`, battleID)
	if err != nil {
		return fmt.Errorf("set current battle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// CurrentBattle returns the record marked current.
func (s *BattleStore) CurrentBattle(ctx context.Context) (*domain.BattleRecord, error) {
	query := `SELECT battle_id, started_at, is_current FROM battle_records WHERE is_current LIMIT 1`

	var rec domain.BattleRecord
	err := s.pool.QueryRow(ctx, query).Scan(&rec.BattleID, &rec.StartedAt, &rec.IsCurrent)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query current battle: %w", err)
	}
	rec.StartedAt = rec.StartedAt.UTC()

	return &rec, nil
}
