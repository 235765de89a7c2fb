// Package service exposes the tracker's operations to transport layers and
// binaries. It owns battle resolution and the soft-failure policy for the
// timing feed; computation lives in ranking and ingestion.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"clanwatch/internal/domain"
	"clanwatch/internal/feed"
	"clanwatch/internal/ingestion"
	"clanwatch/internal/ranking"
	"clanwatch/internal/storage"
)

// Default query parameters, applied when a query leaves them zero.
const (
	DefaultGainWindowMinutes     = 60
	DefaultForecastWindowMinutes = 360
	DefaultTopN                  = 100

	// MaxComparisonClans bounds one comparison request.
	MaxComparisonClans = 3
)

// CountdownUnknown is returned when the timing feed cannot be reached;
// countdown is advisory and never fails a caller.
const CountdownUnknown = "Unknown"

// RankingQuery parameterizes GetRanking. An empty BattleID resolves to the
// current battle.
type RankingQuery struct {
	BattleID              string
	GainWindowMinutes     int
	ForecastWindowMinutes int
	TopN                  int
}

// PointsQuery parameterizes GetPointsNeeded.
type PointsQuery struct {
	BattleID              string
	ClanName              string
	TargetRank            int
	ForecastWindowMinutes int
}

// PointSample is one snapshot in a comparison series.
type PointSample struct {
	Points     int64     `json:"points"`
	CapturedAt time.Time `json:"captured_at"`
}

// ClanSeries is one clan's point history over the comparison window.
type ClanSeries struct {
	ClanName string        `json:"clan_name"`
	Samples  []PointSample `json:"samples"`
}

// Service wires the feeds, stores and compute components together.
type Service struct {
	snapshots storage.SnapshotStore
	battles   storage.BattleStore
	timing    feed.TimingFeed
	engine    *ranking.Engine
	solver    *ranking.Solver
	ingestor  *ingestion.Ingestor
	now       func() time.Time
}

// Options contains the service dependencies.
type Options struct {
	Snapshots storage.SnapshotStore
	Battles   storage.BattleStore
	Timing    feed.TimingFeed
	Engine    *ranking.Engine
	Solver    *ranking.Solver
	Ingestor  *ingestion.Ingestor
	Now       func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		snapshots: opts.Snapshots,
		battles:   opts.Battles,
		timing:    opts.Timing,
		engine:    opts.Engine,
		solver:    opts.Solver,
		ingestor:  opts.Ingestor,
		now:       now,
	}
}

// GetRanking returns the enriched leaderboard. Timing feed failures degrade
// to absent projections rather than an error.
func (s *Service) GetRanking(ctx context.Context, q RankingQuery) ([]*domain.RankedRow, error) {
	battleID, err := s.resolveBattle(ctx, q.BattleID)
	if err != nil {
		return nil, err
	}

	if q.GainWindowMinutes == 0 {
		q.GainWindowMinutes = DefaultGainWindowMinutes
	}
	if q.ForecastWindowMinutes == 0 {
		q.ForecastWindowMinutes = DefaultForecastWindowMinutes
	}
	if q.TopN == 0 {
		q.TopN = DefaultTopN
	}

	rows, err := s.engine.Rank(ctx, battleID, q.GainWindowMinutes, q.ForecastWindowMinutes, q.TopN, s.minutesRemaining(ctx))
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return rows, nil
}

// GetPointsNeeded answers how fast a clan must score to reach a target rank.
// Unlike ranking, the answer is meaningless without the battle clock, so a
// timing feed failure is a hard error here.
func (s *Service) GetPointsNeeded(ctx context.Context, q PointsQuery) (*ranking.PointsNeeded, error) {
	battleID, err := s.resolveBattle(ctx, q.BattleID)
	if err != nil {
		return nil, err
	}
	if q.ForecastWindowMinutes == 0 {
		q.ForecastWindowMinutes = DefaultForecastWindowMinutes
	}

	timing, err := s.timing.ActiveBattle(ctx)
	if err != nil {
		return nil, fmt.Errorf("battle clock needed for target rank: %w", ErrFeedUnavailable)
	}
	remaining := timing.Finish.Sub(s.now()).Minutes()

	result, err := s.solver.Solve(ctx, battleID, q.ClanName, q.TargetRank, q.ForecastWindowMinutes, remaining)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return result, nil
}

// RunIngestionCycle performs one detector-gated ingestion pass.
func (s *Service) RunIngestionCycle(ctx context.Context) (*ingestion.CycleResult, error) {
	return s.ingestor.RunCycle(ctx)
}

// GetCountdown formats the time remaining in the active battle. A timing
// feed failure yields CountdownUnknown, never an error.
func (s *Service) GetCountdown(ctx context.Context) string {
	timing, err := s.timing.ActiveBattle(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Countdown unavailable")
		return CountdownUnknown
	}
	return domain.FormatDuration(timing.Finish.Sub(s.now()))
}

// GetComparison returns the recent point history for up to three clans.
func (s *Service) GetComparison(ctx context.Context, clans []string, windowMinutes int) ([]ClanSeries, error) {
	if len(clans) == 0 || len(clans) > MaxComparisonClans {
		return nil, fmt.Errorf("comparison takes 1 to %d clans, got %d: %w", MaxComparisonClans, len(clans), ErrInvalidInput)
	}
	if windowMinutes <= 0 {
		return nil, fmt.Errorf("window minutes must be positive: %w", ErrInvalidInput)
	}
	for _, clan := range clans {
		if clan == "" {
			return nil, fmt.Errorf("empty clan name: %w", ErrInvalidInput)
		}
	}

	since := s.now().Add(-time.Duration(windowMinutes) * time.Minute)
	snaps, err := s.snapshots.SnapshotsSince(ctx, clans, since)
	if err != nil {
		return nil, classifyStoreErr(fmt.Errorf("load comparison snapshots: %w", err))
	}

	byClan := make(map[string][]PointSample, len(clans))
	for _, snap := range snaps {
		byClan[snap.ClanName] = append(byClan[snap.ClanName], PointSample{
			Points:     snap.Points,
			CapturedAt: snap.CapturedAt,
		})
	}

	series := make([]ClanSeries, 0, len(clans))
	for _, clan := range clans {
		series = append(series, ClanSeries{ClanName: clan, Samples: byClan[clan]})
	}
	return series, nil
}

// resolveBattle maps an empty battle id to the current battle.
func (s *Service) resolveBattle(ctx context.Context, battleID string) (string, error) {
	if battleID != "" {
		return battleID, nil
	}
	current, err := s.battles.CurrentBattle(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("no battle tracked yet: %w", ErrNotFound)
		}
		return "", classifyStoreErr(fmt.Errorf("resolve current battle: %w", err))
	}
	return current.BattleID, nil
}

// minutesRemaining asks the timing feed how long the battle has left.
// Failures soft-degrade to zero, which disables projections for the request.
func (s *Service) minutesRemaining(ctx context.Context) float64 {
	timing, err := s.timing.ActiveBattle(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Timing feed unavailable, projections disabled for request")
		return 0
	}
	remaining := timing.Finish.Sub(s.now()).Minutes()
	if remaining < 0 {
		return 0
	}
	return remaining
}
