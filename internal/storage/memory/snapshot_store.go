package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Snapshot // keyed by (battle_id, clan_name, captured_at)

	// firstSeen caches min captured_at per (battle_id, clan_name)
	firstSeen map[string]time.Time
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data:      make(map[string]*domain.Snapshot),
		firstSeen: make(map[string]time.Time),
	}
}

func snapshotKey(battleID, clanName string, capturedAt time.Time) string {
	return fmt.Sprintf("%s|%s|%d", battleID, clanName, capturedAt.UnixNano())
}

func clanKey(battleID, clanName string) string {
	return fmt.Sprintf("%s|%s", battleID, clanName)
}

// InsertSnapshotBatch appends one cycle's snapshots, resolving FirstSeenAt.
func (s *SnapshotStore) InsertSnapshotBatch(_ context.Context, snapshots []*domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate and detect duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if err := storage.ValidateSnapshot(snap); err != nil {
			return err
		}
		key := snapshotKey(snap.BattleID, snap.ClanName, snap.CapturedAt)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all, stamping FirstSeenAt
	for _, snap := range snapshots {
		ck := clanKey(snap.BattleID, snap.ClanName)
		first, seen := s.firstSeen[ck]
		if !seen || snap.CapturedAt.Before(first) {
			first = snap.CapturedAt
			s.firstSeen[ck] = first
		}

		snapCopy := *snap
		snapCopy.FirstSeenAt = first
		s.data[snapshotKey(snap.BattleID, snap.ClanName, snap.CapturedAt)] = &snapCopy
	}

	return nil
}

// LatestCapturedAt returns the most recent capture instant for a battle.
func (s *SnapshotStore) LatestCapturedAt(_ context.Context, battleID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, snap := range s.data {
		if snap.BattleID == battleID && snap.CapturedAt.After(latest) {
			latest = snap.CapturedAt
		}
	}

	if latest.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}
	return latest, nil
}

// SnapshotsAt returns snapshots captured at exactly the given instant,
// points descending, clan name ascending on ties.
func (s *SnapshotStore) SnapshotsAt(_ context.Context, battleID string, at time.Time, limit int) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Snapshot
	for _, snap := range s.data {
		if snap.BattleID == battleID && snap.CapturedAt.Equal(at) {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Points != result[j].Points {
			return result[i].Points > result[j].Points
		}
		return result[i].ClanName < result[j].ClanName
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// LatestAtOrBefore returns a clan's newest snapshot at or before the instant.
func (s *SnapshotStore) LatestAtOrBefore(_ context.Context, clanName, battleID string, at time.Time) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Snapshot
	for _, snap := range s.data {
		if snap.BattleID != battleID || snap.ClanName != clanName || snap.CapturedAt.After(at) {
			continue
		}
		if best == nil || snap.CapturedAt.After(best.CapturedAt) {
			best = snap
		}
	}

	if best == nil {
		return nil, storage.ErrNotFound
	}
	bestCopy := *best
	return &bestCopy, nil
}

// FirstSeenAt returns the earliest capture instant for a clan in a battle.
func (s *SnapshotStore) FirstSeenAt(_ context.Context, clanName, battleID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first, ok := s.firstSeen[clanKey(battleID, clanName)]
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}
	return first, nil
}

// MostRecentSnapshot returns a clan's newest snapshot; empty battleID means
// unfiltered across all battles.
func (s *SnapshotStore) MostRecentSnapshot(_ context.Context, clanName, battleID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Snapshot
	for _, snap := range s.data {
		if snap.ClanName != clanName {
			continue
		}
		if battleID != "" && snap.BattleID != battleID {
			continue
		}
		if best == nil || snap.CapturedAt.After(best.CapturedAt) {
			best = snap
		}
	}

	if best == nil {
		return nil, storage.ErrNotFound
	}
	bestCopy := *best
	return &bestCopy, nil
}

// SnapshotsSince returns snapshots for the given clans captured at or after
// the instant, ordered by clan name then capture time.
func (s *SnapshotStore) SnapshotsSince(_ context.Context, clanNames []string, since time.Time) ([]*domain.Snapshot, error) {
	wanted := make(map[string]struct{}, len(clanNames))
	for _, name := range clanNames {
		wanted[name] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Snapshot
	for _, snap := range s.data {
		if _, ok := wanted[snap.ClanName]; !ok {
			continue
		}
		if snap.CapturedAt.Before(since) {
			continue
		}
		snapCopy := *snap
		result = append(result, &snapCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ClanName != result[j].ClanName {
			return result[i].ClanName < result[j].ClanName
		}
		return result[i].CapturedAt.Before(result[j].CapturedAt)
	})

	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
