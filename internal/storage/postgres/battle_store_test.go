package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

func TestBattleStore_UpsertAndCurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBattleStore(pool)
	ctx := context.Background()

	_, err := store.CurrentBattle(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	started := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	err = store.UpsertBattleRecord(ctx, &domain.BattleRecord{
		BattleID:  "battle-1",
		StartedAt: started,
		IsCurrent: true,
	})
	require.NoError(t, err)

	got, err := store.CurrentBattle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "battle-1", got.BattleID)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.IsCurrent)
}

func TestBattleStore_UpsertCurrentDemotesOthers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBattleStore(pool)
	ctx := context.Background()

	first := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	second := first.Add(7 * 24 * time.Hour)

	require.NoError(t, store.UpsertBattleRecord(ctx, &domain.BattleRecord{BattleID: "battle-1", StartedAt: first, IsCurrent: true}))
	require.NoError(t, store.UpsertBattleRecord(ctx, &domain.BattleRecord{BattleID: "battle-2", StartedAt: second, IsCurrent: true}))

	got, err := store.CurrentBattle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "battle-2", got.BattleID)
}

func TestBattleStore_UpsertReplacesExisting(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBattleStore(pool)
	ctx := context.Background()

	started := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertBattleRecord(ctx, &domain.BattleRecord{BattleID: "battle-1", StartedAt: started, IsCurrent: true}))

	revised := started.Add(30 * time.Minute)
	require.NoError(t, store.UpsertBattleRecord(ctx, &domain.BattleRecord{BattleID: "battle-1", StartedAt: revised, IsCurrent: true}))

	got, err := store.CurrentBattle(ctx)
	require.NoError(t, err)
	assert.True(t, got.StartedAt.Equal(revised))
}

func TestBattleStore_SetCurrentBattle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBattleStore(pool)
	ctx := context.Background()

	err := store.SetCurrentBattle(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	first := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	second := first.Add(7 * 24 * time.Hour)

	require.NoError(t, store.UpsertBattleRecord(ctx, &domain.BattleRecord{BattleID: "battle-1", StartedAt: first, IsCurrent: true}))
	require.NoError(t, store.UpsertBattleRecord(ctx, &domain.BattleRecord{BattleID: "battle-2", StartedAt: second, IsCurrent: true}))

	require.NoError(t, store.SetCurrentBattle(ctx, "battle-1"))

	got, err := store.CurrentBattle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "battle-1", got.BattleID)
	assert.True(t, got.IsCurrent)
}

func TestBattleStore_UpsertInvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBattleStore(pool)
	ctx := context.Background()

	err := store.UpsertBattleRecord(ctx, &domain.BattleRecord{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.UpsertBattleRecord(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
