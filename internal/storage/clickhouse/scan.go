package clickhouse

import (
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

func scanSnapshots(rows driver.Rows) ([]*domain.Snapshot, error) {
	var snapshots []*domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

// scanSnapshotRow consumes a single-row result, mapping an empty result to
// storage.ErrNotFound.
func scanSnapshotRow(rows driver.Rows) (*domain.Snapshot, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate snapshot rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanSnapshot(rows)
}

func scanSnapshot(rows driver.Rows) (*domain.Snapshot, error) {
	var (
		snap        domain.Snapshot
		memberCount int32
		capturedAt  time.Time
		firstSeenAt time.Time
	)
	err := rows.Scan(&snap.BattleID, &snap.ClanName, &snap.Points, &memberCount, &capturedAt, &firstSeenAt)
	if err != nil {
		return nil, fmt.Errorf("scan snapshot row: %w", err)
	}
	snap.MemberCount = int(memberCount)
	snap.CapturedAt = capturedAt.UTC()
	snap.FirstSeenAt = firstSeenAt.UTC()
	return &snap, nil
}
