// Package ranking computes the enriched leaderboard and target-rank
// projections. All computation is read-only and recomputed per request;
// concurrent callers share nothing but the snapshot store.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage"
)

// EligibilityWindow is the minimum continuous observation time within a
// battle before a clan's rate estimate is considered stable enough to
// forecast. The boundary is inclusive.
const EligibilityWindow = 6 * time.Hour

// maxCatchUpMinutes bounds catch-up estimates to what time.Duration can
// represent; anything above is reported as an arithmetic failure.
const maxCatchUpMinutes = float64(math.MaxInt64 / int64(time.Minute))

// Engine computes rankings against the snapshot store.
type Engine struct {
	snapshots storage.SnapshotStore
}

// NewEngine creates a ranking engine.
func NewEngine(snapshots storage.SnapshotStore) *Engine {
	return &Engine{snapshots: snapshots}
}

// entry is one clan's state at the latest instant, with its forecast score.
// Entries keep the store's points-descending order.
type entry struct {
	snap      *domain.Snapshot
	projected *float64
	score     float64
}

// Rank produces the enriched leaderboard for a battle. minutesRemaining is
// the wall-clock time left in the event; zero or negative disables
// projections. An unknown battle yields an empty result, not an error.
func (e *Engine) Rank(ctx context.Context, battleID string, gainWindowMinutes, forecastWindowMinutes, topN int, minutesRemaining float64) ([]*domain.RankedRow, error) {
	if gainWindowMinutes <= 0 || forecastWindowMinutes <= 0 {
		return nil, fmt.Errorf("window minutes must be positive: %w", storage.ErrInvalidInput)
	}

	entries, latest, err := e.board(ctx, battleID, forecastWindowMinutes, topN, minutesRemaining)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	rows := make([]*domain.RankedRow, len(entries))
	for i, ent := range entries {
		rows[i] = &domain.RankedRow{
			ClanName:        ent.snap.ClanName,
			Points:          ent.snap.Points,
			MemberCount:     ent.snap.MemberCount,
			CurrentRank:     i + 1,
			ProjectedPoints: ent.projected,
			CatchUp:         domain.CatchUpNA,
		}
		if i > 0 {
			rows[i].GapToAbove = entries[i-1].snap.Points - ent.snap.Points
		}

		gain, err := e.gain(ctx, ent.snap, latest, gainWindowMinutes)
		if err != nil {
			return nil, err
		}
		rows[i].Gain = gain
	}

	assignForecastRanks(entries, rows)

	for i := 1; i < len(rows); i++ {
		rows[i].CatchUp = catchUp(rows[i], rows[i-1], gainWindowMinutes)
	}

	return rows, nil
}

// board fetches the latest instant's snapshots and computes forecast scores.
// A battle with no snapshots returns an empty board and no error.
func (e *Engine) board(ctx context.Context, battleID string, forecastWindowMinutes, topN int, minutesRemaining float64) ([]entry, time.Time, error) {
	latest, err := e.snapshots.LatestCapturedAt(ctx, battleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("latest captured instant: %w", err)
	}

	snaps, err := e.snapshots.SnapshotsAt(ctx, battleID, latest, topN)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshots at %s: %w", latest.Format(time.RFC3339), err)
	}

	cutoff := latest.Add(-EligibilityWindow)
	entries := make([]entry, len(snaps))
	for i, snap := range snaps {
		ent := entry{snap: snap, score: float64(snap.Points)}

		eligible := !snap.FirstSeenAt.After(cutoff)
		if eligible && minutesRemaining > 0 && forecastWindowMinutes > 0 {
			baseline, err := e.lookback(ctx, snap, latest, forecastWindowMinutes)
			if err != nil {
				return nil, time.Time{}, err
			}
			if baseline != nil {
				rate := float64(snap.Points-baseline.Points) / float64(forecastWindowMinutes)
				projected := float64(snap.Points) + rate*minutesRemaining
				ent.projected = &projected
				ent.score = projected
			}
		}
		entries[i] = ent
	}

	return entries, latest, nil
}

// gain computes the point delta over the gain window, or nil when no
// snapshot exists at or before the window start.
func (e *Engine) gain(ctx context.Context, snap *domain.Snapshot, latest time.Time, gainWindowMinutes int) (*int64, error) {
	baseline, err := e.lookback(ctx, snap, latest, gainWindowMinutes)
	if err != nil || baseline == nil {
		return nil, err
	}
	g := snap.Points - baseline.Points
	return &g, nil
}

func (e *Engine) lookback(ctx context.Context, snap *domain.Snapshot, latest time.Time, windowMinutes int) (*domain.Snapshot, error) {
	at := latest.Add(-time.Duration(windowMinutes) * time.Minute)
	baseline, err := e.snapshots.LatestAtOrBefore(ctx, snap.ClanName, snap.BattleID, at)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookback for %s: %w", snap.ClanName, err)
	}
	return baseline, nil
}

// assignForecastRanks sorts every clan by forecast score, ineligible clans
// included as stationary entries, then reports ranks only for clans with a
// projection. Ineligible clans shift their neighbors' ranks but their own
// rank is suppressed as meaningless.
func assignForecastRanks(entries []entry, rows []*domain.RankedRow) {
	for pos, idx := range forecastOrder(entries) {
		if entries[idx].projected == nil {
			continue
		}
		rank := pos + 1
		rows[idx].ForecastRank = &rank
	}
}

// catchUp estimates how long the row needs to overtake the clan directly
// above it, given both gains over the same window. Unmet preconditions are
// the N/A sentinel; broken arithmetic is the Error sentinel. Neither is an
// error: one clan's bad data must not fail the response.
func catchUp(row, above *domain.RankedRow, gainWindowMinutes int) string {
	if row.Gain == nil || above.Gain == nil || *row.Gain <= *above.Gain {
		return domain.CatchUpNA
	}

	gainDiff := *row.Gain - *above.Gain
	minutes := float64(row.GapToAbove) * float64(gainWindowMinutes) / float64(gainDiff)
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 || minutes > maxCatchUpMinutes {
		return domain.CatchUpError
	}

	return domain.FormatDuration(time.Duration(minutes) * time.Minute)
}
