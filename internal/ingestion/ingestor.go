// Package ingestion runs the polling loop that captures leaderboard
// snapshots, gated per cycle by the lifecycle detector.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"clanwatch/internal/domain"
	"clanwatch/internal/feed"
	"clanwatch/internal/lifecycle"
	"clanwatch/internal/observability"
	"clanwatch/internal/storage"
)

// Default configuration values.
const (
	DefaultInterval     = 10 * time.Minute
	DefaultCycleTimeout = 2 * time.Minute
)

// CycleResult reports what one ingestion cycle did.
type CycleResult struct {
	Decision *lifecycle.Decision
	Written  int
}

// Ingestor polls the leaderboard feed and writes accepted snapshots. One
// Ingestor runs one sequential loop; a cycle always finishes before the next
// tick is considered, so cycles never overlap.
type Ingestor struct {
	leaderboard  feed.LeaderboardFeed
	detector     *lifecycle.Detector
	snapshots    storage.SnapshotStore
	sentinel     string
	interval     time.Duration
	cycleTimeout time.Duration
	now          func() time.Time
}

// Options contains configuration for creating an Ingestor.
type Options struct {
	Leaderboard  feed.LeaderboardFeed
	Detector     *lifecycle.Detector
	Snapshots    storage.SnapshotStore
	SentinelClan string
	Interval     time.Duration
	CycleTimeout time.Duration
	Now          func() time.Time
}

// NewIngestor creates a new ingestor.
func NewIngestor(opts Options) *Ingestor {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	cycleTimeout := opts.CycleTimeout
	if cycleTimeout == 0 {
		cycleTimeout = DefaultCycleTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		leaderboard:  opts.Leaderboard,
		detector:     opts.Detector,
		snapshots:    opts.Snapshots,
		sentinel:     opts.SentinelClan,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		now:          now,
	}
}

// Run executes cycles on a fixed interval until the context is cancelled.
// A failed cycle is logged and retried implicitly on the next tick.
func (i *Ingestor) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", i.interval).
		Str("sentinel", i.sentinel).
		Msg("Starting ingestion loop")

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		i.runOnce(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("Ingestion loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (i *Ingestor) runOnce(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, i.cycleTimeout)
	defer cancel()

	start := i.now()
	result, err := i.RunCycle(cycleCtx)
	elapsed := i.now().Sub(start).Seconds()

	if err != nil {
		observability.RecordCycle("error", elapsed)
		log.Error().Err(err).Msg("Ingestion cycle failed")
		return
	}

	observability.RecordCycle(result.Decision.Reason, elapsed)
	if result.Written > 0 {
		observability.RecordSnapshotsWritten(result.Written, i.now().Unix())
	}
	if result.Decision.NewBattle {
		observability.RecordBattleDetected()
	}
}

// RunCycle performs exactly one fetch-detect-write pass.
func (i *Ingestor) RunCycle(ctx context.Context) (*CycleResult, error) {
	fetchStart := i.now()
	standings, err := i.leaderboard.Leaderboard(ctx)
	observability.RecordFeedLatency("leaderboard", i.now().Sub(fetchStart).Seconds())
	if err != nil {
		observability.RecordFeedError("leaderboard")
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	sentinelPoints, ok := findClan(standings, i.sentinel)
	if !ok {
		observability.RecordFeedError("leaderboard")
		return nil, fmt.Errorf("sentinel clan %s absent from leaderboard", i.sentinel)
	}

	decision, err := i.detector.Evaluate(ctx, sentinelPoints)
	if err != nil {
		return nil, fmt.Errorf("evaluate lifecycle: %w", err)
	}
	if !decision.Accept {
		log.Debug().Str("reason", decision.Reason).Msg("Cycle skipped")
		return &CycleResult{Decision: decision}, nil
	}

	capturedAt := i.now().UTC()
	batch := make([]*domain.Snapshot, 0, len(standings))
	for _, standing := range standings {
		batch = append(batch, &domain.Snapshot{
			ClanName:    standing.Name,
			BattleID:    decision.BattleID,
			Points:      standing.Points,
			MemberCount: standing.Members,
			CapturedAt:  capturedAt,
		})
	}

	if err := i.snapshots.InsertSnapshotBatch(ctx, batch); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Another loop already captured this instant
			log.Warn().Time("captured_at", capturedAt).Msg("Snapshot batch already present, skipping")
			return &CycleResult{Decision: decision}, nil
		}
		observability.RecordStoreError("insert_snapshot_batch")
		return nil, fmt.Errorf("insert snapshot batch: %w", err)
	}

	log.Info().
		Str("battle_id", decision.BattleID).
		Int("snapshots", len(batch)).
		Time("captured_at", capturedAt).
		Msg("Cycle accepted")

	return &CycleResult{Decision: decision, Written: len(batch)}, nil
}

func findClan(standings []feed.ClanStanding, name string) (int64, bool) {
	for _, s := range standings {
		if s.Name == name {
			return s.Points, true
		}
	}
	return 0, false
}
