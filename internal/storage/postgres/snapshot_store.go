package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertSnapshotBatch appends one cycle's snapshots atomically. FirstSeenAt
// is resolved in SQL: the clan's earliest captured_at in this battle, or the
// inserted row's own captured_at when the clan is new.
func (s *SnapshotStore) InsertSnapshotBatch(ctx context.Context, snapshots []*domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	for _, snap := range snapshots {
		if err := storage.ValidateSnapshot(snap); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO clan_snapshots (
			battle_id, clan_name, points, member_count, captured_at, first_seen_at
		) VALUES (
			$1, $2, $3, $4, $5,
			COALESCE(
				(SELECT MIN(captured_at) FROM clan_snapshots WHERE battle_id = $1 AND clan_name = $2),
				$5
			)
		)
	`

	for _, snap := range snapshots {
		_, err := tx.Exec(ctx, query,
			snap.BattleID,
			snap.ClanName,
			snap.Points,
			snap.MemberCount,
			snap.CapturedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert snapshot in batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// LatestCapturedAt returns the most recent capture instant for a battle.
func (s *SnapshotStore) LatestCapturedAt(ctx context.Context, battleID string) (time.Time, error) {
	query := `SELECT MAX(captured_at) FROM clan_snapshots WHERE battle_id = $1`

	var latest *time.Time
	if err := s.pool.QueryRow(ctx, query, battleID).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("query latest captured_at: %w", err)
	}
	if latest == nil {
		return time.Time{}, storage.ErrNotFound
	}
	return latest.UTC(), nil
}

// SnapshotsAt returns snapshots captured at exactly the given instant,
// points descending, clan name ascending on ties.
func (s *SnapshotStore) SnapshotsAt(ctx context.Context, battleID string, at time.Time, limit int) ([]*domain.Snapshot, error) {
	query := `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE battle_id = $1 AND captured_at = $2
		ORDER BY points DESC, clan_name ASC
	`
	args := []any{battleID, at}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots at instant: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// LatestAtOrBefore returns a clan's newest snapshot at or before the instant.
func (s *SnapshotStore) LatestAtOrBefore(ctx context.Context, clanName, battleID string, at time.Time) (*domain.Snapshot, error) {
	query := `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE battle_id = $1 AND clan_name = $2 AND captured_at <= $3
		ORDER BY captured_at DESC
		LIMIT 1
	`

	snap, err := scanSnapshotRow(s.pool.QueryRow(ctx, query, battleID, clanName, at))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query latest at or before: %w", err)
	}
	return snap, nil
}

// FirstSeenAt returns the earliest capture instant for a clan in a battle.
func (s *SnapshotStore) FirstSeenAt(ctx context.Context, clanName, battleID string) (time.Time, error) {
	query := `SELECT MIN(captured_at) FROM clan_snapshots WHERE battle_id = $1 AND clan_name = $2`

	var first *time.Time
	if err := s.pool.QueryRow(ctx, query, battleID, clanName).Scan(&first); err != nil {
		return time.Time{}, fmt.Errorf("query first seen at: %w", err)
	}
	if first == nil {
		return time.Time{}, storage.ErrNotFound
	}
	return first.UTC(), nil
}

// MostRecentSnapshot returns a clan's newest snapshot; empty battleID means
// unfiltered across all battles.
func (s *SnapshotStore) MostRecentSnapshot(ctx context.Context, clanName, battleID string) (*domain.Snapshot, error) {
	query := `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE clan_name = $1 AND ($2 = '' OR battle_id = $2)
		ORDER BY captured_at DESC
		LIMIT 1
	`

	snap, err := scanSnapshotRow(s.pool.QueryRow(ctx, query, clanName, battleID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query most recent snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotsSince returns snapshots for the given clans captured at or after
// the instant, ordered by clan name then capture time.
func (s *SnapshotStore) SnapshotsSince(ctx context.Context, clanNames []string, since time.Time) ([]*domain.Snapshot, error) {
	query := `
		SELECT battle_id, clan_name, points, member_count, captured_at, first_seen_at
		FROM clan_snapshots
		WHERE clan_name = ANY($1) AND captured_at >= $2
		ORDER BY clan_name ASC, captured_at ASC
	`

	rows, err := s.pool.Query(ctx, query, clanNames, since)
	if err != nil {
		return nil, fmt.Errorf("query snapshots since: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshots scans multiple rows into a slice of Snapshot.
func scanSnapshots(rows pgx.Rows) ([]*domain.Snapshot, error) {
	var snapshots []*domain.Snapshot

	for rows.Next() {
		var snap domain.Snapshot

		err := rows.Scan(
			&snap.BattleID,
			&snap.ClanName,
			&snap.Points,
			&snap.MemberCount,
			&snap.CapturedAt,
			&snap.FirstSeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.CapturedAt = snap.CapturedAt.UTC()
		snap.FirstSeenAt = snap.FirstSeenAt.UTC()

		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshots, nil
}

// scanSnapshotRow scans a single row into a Snapshot.
func scanSnapshotRow(row pgx.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot

	err := row.Scan(
		&snap.BattleID,
		&snap.ClanName,
		&snap.Points,
		&snap.MemberCount,
		&snap.CapturedAt,
		&snap.FirstSeenAt,
	)
	if err != nil {
		return nil, err
	}
	snap.CapturedAt = snap.CapturedAt.UTC()
	snap.FirstSeenAt = snap.FirstSeenAt.UTC()

	return &snap, nil
}
