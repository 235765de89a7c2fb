package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// BattleStore implements storage.BattleStore backed by ClickHouse. The table
// is a ReplacingMergeTree versioned by updated_at; reads use FINAL to collapse
// versions, and flips write a fresh version for every affected record.
type BattleStore struct {
	conn *Conn
}

var _ storage.BattleStore = (*BattleStore)(nil)

// NewBattleStore creates a ClickHouse-backed battle store.
func NewBattleStore(conn *Conn) *BattleStore {
	return &BattleStore{conn: conn}
}

// UpsertBattleRecord inserts or replaces the record for its battle id. When
// the record is current, every other current record is rewritten as
// non-current first.
func (s *BattleStore) UpsertBattleRecord(ctx context.Context, record *domain.BattleRecord) error {
	if record == nil || record.BattleID == "" {
		return fmt.Errorf("battle record requires a battle id: %w", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if record.IsCurrent {
		if err := s.demoteOthers(ctx, record.BattleID, now); err != nil {
			return err
		}
	}
	return s.writeVersion(ctx, record, now)
}

// SetCurrentBattle marks the given battle current and flips every other
// record to non-current. Returns ErrNotFound for an unregistered battle.
func (s *BattleStore) SetCurrentBattle(ctx context.Context, battleID string) error {
	target, err := s.battleByID(ctx, battleID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.demoteOthers(ctx, battleID, now); err != nil {
		return err
	}
	target.IsCurrent = true
	return s.writeVersion(ctx, target, now)
}

// CurrentBattle returns the record marked current.
func (s *BattleStore) CurrentBattle(ctx context.Context) (*domain.BattleRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT battle_id, started_at, is_current
		FROM battle_records FINAL
		WHERE is_current = 1
		ORDER BY started_at DESC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query current battle: %w", err)
	}
	defer rows.Close()

	return scanBattleRow(rows)
}

func (s *BattleStore) battleByID(ctx context.Context, battleID string) (*domain.BattleRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT battle_id, started_at, is_current
		FROM battle_records FINAL
		WHERE battle_id = ?
		LIMIT 1
	`, battleID)
	if err != nil {
		return nil, fmt.Errorf("query battle by id: %w", err)
	}
	defer rows.Close()

	return scanBattleRow(rows)
}

// demoteOthers rewrites every current record except keepID as non-current.
func (s *BattleStore) demoteOthers(ctx context.Context, keepID string, now time.Time) error {
	rows, err := s.conn.Query(ctx, `
		SELECT battle_id, started_at, is_current
		FROM battle_records FINAL
		WHERE is_current = 1 AND battle_id != ?
	`, keepID)
	if err != nil {
		return fmt.Errorf("query current battles to demote: %w", err)
	}
	defer rows.Close()

	var demoted []*domain.BattleRecord
	for rows.Next() {
		record, err := scanBattle(rows)
		if err != nil {
			return err
		}
		record.IsCurrent = false
		demoted = append(demoted, record)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate battle rows: %w", err)
	}

	for _, record := range demoted {
		if err := s.writeVersion(ctx, record, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *BattleStore) writeVersion(ctx context.Context, record *domain.BattleRecord, now time.Time) error {
	isCurrent := uint8(0)
	if record.IsCurrent {
		isCurrent = 1
	}
	err := s.conn.Exec(ctx, `
		INSERT INTO battle_records (battle_id, started_at, is_current, updated_at)
		VALUES (?, ?, ?, ?)
	`, record.BattleID, record.StartedAt, isCurrent, now)
	if err != nil {
		return fmt.Errorf("insert battle record version: %w", err)
	}
	return nil
}

func scanBattleRow(rows driver.Rows) (*domain.BattleRecord, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate battle rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanBattle(rows)
}

func scanBattle(rows driver.Rows) (*domain.BattleRecord, error) {
	var (
		record    domain.BattleRecord
		startedAt time.Time
		isCurrent uint8
	)
	if err := rows.Scan(&record.BattleID, &startedAt, &isCurrent); err != nil {
		return nil, fmt.Errorf("scan battle record row: %w", err)
	}
	record.StartedAt = startedAt.UTC()
	record.IsCurrent = isCurrent == 1
	return &record, nil
}
