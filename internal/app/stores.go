package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"clanwatch/internal/storage"
	chstore "clanwatch/internal/storage/clickhouse"
	"clanwatch/internal/storage/memory"
	"clanwatch/internal/storage/migrations"
	pgstore "clanwatch/internal/storage/postgres"
)

// Stores bundles the storage backends a binary runs against.
type Stores struct {
	Snapshots storage.SnapshotStore
	Battles   storage.BattleStore

	closeFn func()
}

// Close releases the underlying connections.
func (s *Stores) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// OpenStores builds the configured storage backend, applying migrations for
// the database-backed ones.
func OpenStores(ctx context.Context, cfg *Config) (*Stores, error) {
	switch cfg.Backend {
	case "memory":
		log.Warn().Msg("Using in-memory storage, snapshots are lost on exit")
		return &Stores{
			Snapshots: memory.NewSnapshotStore(),
			Battles:   memory.NewBattleStore(),
		}, nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &Stores{
			Snapshots: pgstore.NewSnapshotStore(pool),
			Battles:   pgstore.NewBattleStore(pool),
			closeFn:   pool.Close,
		}, nil

	case "clickhouse":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		return &Stores{
			Snapshots: chstore.NewSnapshotStore(conn),
			Battles:   chstore.NewBattleStore(conn),
			closeFn:   func() { conn.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
