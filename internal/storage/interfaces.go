package storage

import (
	"context"
	"time"

	"clanwatch/internal/domain"
)

// SnapshotStore provides access to the append-only clan snapshot time series.
// Implementations must be safe for concurrent use; the ingestion loop writes
// while query-time components read.
type SnapshotStore interface {
	// InsertSnapshotBatch appends one ingestion cycle's snapshots. The store
	// resolves FirstSeenAt: the existing minimum CapturedAt for the
	// (clan, battle) pair, or the row's own CapturedAt for a new clan.
	// Returns ErrInvalidInput on missing clan name, battle id, negative
	// points or zero CapturedAt; ErrDuplicateKey if a row for
	// (battle, clan, captured_at) already exists.
	InsertSnapshotBatch(ctx context.Context, snapshots []*domain.Snapshot) error

	// LatestCapturedAt returns the most recent capture instant for a battle.
	// Returns ErrNotFound when the battle has no snapshots.
	LatestCapturedAt(ctx context.Context, battleID string) (time.Time, error)

	// SnapshotsAt returns the snapshots captured at exactly the given
	// instant, ordered by points descending with clan name ascending as the
	// tie-break, limited to limit rows (no limit when limit <= 0).
	SnapshotsAt(ctx context.Context, battleID string, at time.Time, limit int) ([]*domain.Snapshot, error)

	// LatestAtOrBefore returns a clan's most recent snapshot captured at or
	// before the given instant within a battle. Returns ErrNotFound when
	// none exists.
	LatestAtOrBefore(ctx context.Context, clanName, battleID string, at time.Time) (*domain.Snapshot, error)

	// FirstSeenAt returns the earliest capture instant for a clan within a
	// battle. Returns ErrNotFound when the clan has no snapshots there.
	FirstSeenAt(ctx context.Context, clanName, battleID string) (time.Time, error)

	// MostRecentSnapshot returns a clan's newest snapshot. An empty battleID
	// means unfiltered across all battles; the lifecycle detector relies on
	// this to see the previous battle's frozen totals.
	MostRecentSnapshot(ctx context.Context, clanName, battleID string) (*domain.Snapshot, error)

	// SnapshotsSince returns all snapshots for the given clans captured at
	// or after the given instant, ordered by clan name then capture time.
	SnapshotsSince(ctx context.Context, clanNames []string, since time.Time) ([]*domain.Snapshot, error)
}

// BattleStore provides access to the battle registry.
type BattleStore interface {
	// UpsertBattleRecord inserts or replaces the record for its battle id.
	UpsertBattleRecord(ctx context.Context, record *domain.BattleRecord) error

	// SetCurrentBattle marks the given battle current and flips every other
	// record to non-current. Callers treat the flip as atomic: at most one
	// record is current at any time.
	SetCurrentBattle(ctx context.Context, battleID string) error

	// CurrentBattle returns the record marked current. Returns ErrNotFound
	// when no battle has been registered yet.
	CurrentBattle(ctx context.Context) (*domain.BattleRecord, error)
}
