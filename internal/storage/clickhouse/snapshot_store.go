package clickhouse

import (
	"context"
	"fmt"
	"time"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore backed by ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a ClickHouse-backed snapshot store.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// InsertSnapshotBatch validates every snapshot, then appends them in one
// batch. FirstSeenAt is resolved per (battle, clan) from the existing minimum
// captured_at before the batch is sent.
func (s *SnapshotStore) InsertSnapshotBatch(ctx context.Context, snapshots []*domain.Snapshot) error {
	for i, snap := range snapshots {
		if err := storage.ValidateSnapshot(snap); err != nil {
			return fmt.Errorf("snapshot %d: %w", i, err)
		}
	}

	// MergeTree has no unique index; duplicates are rejected here against
	// both the stored rows and the batch itself.
	batchKeys := make(map[string]struct{}, len(snapshots))
	for i, snap := range snapshots {
		key := fmt.Sprintf("%s|%s|%d", snap.BattleID, snap.ClanName, snap.CapturedAt.UnixNano())
		if _, ok := batchKeys[key]; ok {
			return fmt.Errorf("snapshot %d (%s, %s, %s): %w",
				i, snap.BattleID, snap.ClanName, snap.CapturedAt.Format(time.RFC3339), storage.ErrDuplicateKey)
		}
		batchKeys[key] = struct{}{}

		exists, err := s.exists(ctx, snap.BattleID, snap.ClanName, snap.CapturedAt)
		if err != nil {
			return fmt.Errorf("check snapshot %d existence: %w", i, err)
		}
		if exists {
			return fmt.Errorf("snapshot %d (%s, %s, %s): %w",
				i, snap.BattleID, snap.ClanName, snap.CapturedAt.Format(time.RFC3339), storage.ErrDuplicateKey)
		}
	}

	// One MIN lookup per distinct (battle, clan) pair in the batch.
	firstSeen := make(map[string]time.Time)
	for _, snap := range snapshots {
		key := snap.BattleID + "|" + snap.ClanName
		if _, ok := firstSeen[key]; ok {
			continue
		}
		t, err := s.FirstSeenAt(ctx, snap.ClanName, snap.BattleID)
		if err != nil {
			if err == storage.ErrNotFound {
				firstSeen[key] = snap.CapturedAt
				continue
			}
			return fmt.Errorf("resolve first seen for %s: %w", snap.ClanName, err)
		}
		firstSeen[key] = t
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO clan_snapshots (battle_id, clan_name, points, member_count, captured_at, first_seen_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}

	for i, snap := range snapshots {
		err := batch.Append(
			snap.BattleID,
			snap.ClanName,
			snap.Points,
			int32(snap.MemberCount),
			snap.CapturedAt,
			firstSeen[snap.BattleID+"|"+snap.ClanName],
		)
		if err != nil {
			return fmt.Errorf("append snapshot %d to batch: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send snapshot batch: %w", err)
	}
	return nil
}

func (s *SnapshotStore) exists(ctx context.Context, battleID, clanName string, capturedAt time.Time) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM clan_snapshots
		WHERE battle_id = ? AND clan_name = ? AND captured_at = ?
	`, battleID, clanName, capturedAt).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LatestCapturedAt returns the most recent capture instant for a battle.
func (s *SnapshotStore) LatestCapturedAt(ctx context.Context, battleID string) (time.Time, error) {
	var count uint64
	var latest time.Time
	err := s.conn.QueryRow(ctx, `
		SELECT count(), max(captured_at) FROM clan_snapshots WHERE battle_id = ?
	`, battleID).Scan(&count, &latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest captured_at: %w", err)
	}
	if count == 0 {
		return time.Time{}, storage.ErrNotFound
	}
	return latest.UTC(), nil
}

// SnapshotsAt returns the snapshots captured at exactly the given instant,
// ordered by points descending then clan name ascending.
func (s *SnapshotStore) SnapshotsAt(ctx context.Context, battleID string, at time.Time, limit int) ([]*domain.Snapshot, error) {
	query := `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE battle_id = ? AND captured_at = ?
		ORDER BY points DESC, clan_name ASC
	`
	args := []any{battleID, at}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots at instant: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// LatestAtOrBefore returns the clan's newest snapshot captured at or before
// the given instant within a battle.
func (s *SnapshotStore) LatestAtOrBefore(ctx context.Context, clanName, battleID string, at time.Time) (*domain.Snapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE battle_id = ? AND clan_name = ? AND captured_at <= ?
		ORDER BY captured_at DESC
		LIMIT 1
	`, battleID, clanName, at)
	if err != nil {
		return nil, fmt.Errorf("query latest at-or-before snapshot: %w", err)
	}
	defer rows.Close()

	return scanSnapshotRow(rows)
}

// FirstSeenAt returns the earliest capture instant for a clan within a battle.
func (s *SnapshotStore) FirstSeenAt(ctx context.Context, clanName, battleID string) (time.Time, error) {
	var count uint64
	var earliest time.Time
	err := s.conn.QueryRow(ctx, `
		SELECT count(), min(captured_at) FROM clan_snapshots
		WHERE battle_id = ? AND clan_name = ?
	`, battleID, clanName).Scan(&count, &earliest)
	if err != nil {
		return time.Time{}, fmt.Errorf("query first seen: %w", err)
	}
	if count == 0 {
		return time.Time{}, storage.ErrNotFound
	}
	return earliest.UTC(), nil
}

// MostRecentSnapshot returns the clan's newest snapshot, across all battles
// when battleID is empty.
func (s *SnapshotStore) MostRecentSnapshot(ctx context.Context, clanName, battleID string) (*domain.Snapshot, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE clan_name = ? AND (? = '' OR battle_id = ?)
		ORDER BY captured_at DESC
		LIMIT 1
	`, clanName, battleID, battleID)
	if err != nil {
		return nil, fmt.Errorf("query most recent snapshot: %w", err)
	}
	defer rows.Close()

	return scanSnapshotRow(rows)
}

// SnapshotsSince returns all snapshots for the given clans captured at or
// after the given instant, ordered by clan name then capture time.
func (s *SnapshotStore) SnapshotsSince(ctx context.Context, clanNames []string, since time.Time) ([]*domain.Snapshot, error) {
	if len(clanNames) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE clan_name IN (?) AND captured_at >= ?
		ORDER BY clan_name ASC, captured_at ASC
	`, clanNames, since)
	if err != nil {
		return nil, fmt.Errorf("query snapshots since: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}
