package memory

import (
	"context"
	"sync"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// BattleStore is an in-memory implementation of storage.BattleStore.
type BattleStore struct {
	mu      sync.RWMutex
	records map[string]*domain.BattleRecord // keyed by battle_id
}

// NewBattleStore creates a new in-memory battle registry.
func NewBattleStore() *BattleStore {
	return &BattleStore{
		records: make(map[string]*domain.BattleRecord),
	}
}

// UpsertBattleRecord inserts or replaces the record for its battle id.
func (s *BattleStore) UpsertBattleRecord(_ context.Context, record *domain.BattleRecord) error {
	if record == nil || record.BattleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *record
	if recCopy.IsCurrent {
		for _, other := range s.records {
			other.IsCurrent = false
		}
	}
	s.records[record.BattleID] = &recCopy
	return nil
}

// SetCurrentBattle marks the given battle current and flips all others.
func (s *BattleStore) SetCurrentBattle(_ context.Context, battleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.records[battleID]
	if !ok {
		return storage.ErrNotFound
	}

	for _, rec := range s.records {
		rec.IsCurrent = false
	}
	target.IsCurrent = true
	return nil
}

// CurrentBattle returns the record marked current.
func (s *BattleStore) CurrentBattle(_ context.Context) (*domain.BattleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.IsCurrent {
			recCopy := *rec
			return &recCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

var _ storage.BattleStore = (*BattleStore)(nil)
