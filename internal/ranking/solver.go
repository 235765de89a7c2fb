package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"

	"clanwatch/internal/storage"
)

// PopulationSize is the upstream leaderboard depth; target ranks beyond it
// are rejected as invalid input.
const PopulationSize = 250

// PointsNeededKind discriminates the solver's typed result.
type PointsNeededKind string

const (
	// NeededRate means a concrete extra rate per hour was determined.
	NeededRate PointsNeededKind = "rate"

	// NeededAlreadyMet means the clan is already projected to meet or beat
	// the target rank.
	NeededAlreadyMet PointsNeededKind = "already_met"

	// NeededInfinite means no finite rate can close the gap in the time
	// remaining.
	NeededInfinite PointsNeededKind = "infinite"

	// NeededIndeterminate means one side of the comparison is
	// forecast-ineligible, so extrapolated and frozen scores would be
	// compared against each other.
	NeededIndeterminate PointsNeededKind = "indeterminate"

	// NeededFinalRank means the battle already ended; FinalRank holds the
	// clan's closing position instead of a projection.
	NeededFinalRank PointsNeededKind = "final_rank"
)

// PointsNeeded is the solver result. RatePerHour is meaningful only for
// NeededRate (rounded to the nearest integer) and NeededAlreadyMet (zero);
// FinalRank only for NeededFinalRank.
type PointsNeeded struct {
	Kind        PointsNeededKind
	RatePerHour int64
	FinalRank   int
}

// Solver answers "how fast must this clan score to reach a target rank".
type Solver struct {
	engine *Engine
}

// NewSolver creates a solver over the same store as the engine.
func NewSolver(engine *Engine) *Solver {
	return &Solver{engine: engine}
}

// Solve computes the extra points per hour needed for clanName to reach
// targetRank by the battle's end. The whole population participates, not a
// top-N slice: the target rank may sit far below the visible leaderboard.
func (s *Solver) Solve(ctx context.Context, battleID, clanName string, targetRank, forecastWindowMinutes int, minutesRemaining float64) (*PointsNeeded, error) {
	if clanName == "" {
		return nil, fmt.Errorf("clan name required: %w", storage.ErrInvalidInput)
	}
	if targetRank < 1 || targetRank > PopulationSize {
		return nil, fmt.Errorf("target rank %d outside [1, %d]: %w", targetRank, PopulationSize, storage.ErrInvalidInput)
	}
	if forecastWindowMinutes <= 0 {
		return nil, fmt.Errorf("forecast window must be positive: %w", storage.ErrInvalidInput)
	}

	entries, _, err := s.engine.board(ctx, battleID, forecastWindowMinutes, PopulationSize, minutesRemaining)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("battle %s has no snapshots: %w", battleID, storage.ErrNotFound)
	}

	userIdx := -1
	for i, ent := range entries {
		if ent.snap.ClanName == clanName {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		return nil, fmt.Errorf("clan %s not in population: %w", clanName, storage.ErrNotFound)
	}

	// Battle over: report the closing rank from the plain points order the
	// board already carries.
	if minutesRemaining <= 0 {
		return &PointsNeeded{Kind: NeededFinalRank, FinalRank: userIdx + 1}, nil
	}

	if targetRank > len(entries) {
		return nil, fmt.Errorf("target rank %d beyond population of %d: %w", targetRank, len(entries), storage.ErrInvalidInput)
	}

	order := forecastOrder(entries)
	target := entries[order[targetRank-1]]
	user := entries[userIdx]

	if target.projected == nil || user.projected == nil {
		return &PointsNeeded{Kind: NeededIndeterminate}, nil
	}

	diff := target.score - user.score
	if diff <= 0 {
		return &PointsNeeded{Kind: NeededAlreadyMet}, nil
	}
	if minutesRemaining <= 0 {
		return &PointsNeeded{Kind: NeededInfinite}, nil
	}

	hoursRemaining := minutesRemaining / 60
	return &PointsNeeded{
		Kind:        NeededRate,
		RatePerHour: int64(math.Round(diff / hoursRemaining)),
	}, nil
}

// forecastOrder returns entry indexes sorted by forecast score descending,
// clan name ascending on ties. Stationary clans take part like everyone
// else.
func forecastOrder(entries []entry) []int {
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := entries[order[a]], entries[order[b]]
		if ea.score != eb.score {
			return ea.score > eb.score
		}
		return ea.snap.ClanName < eb.snap.ClanName
	})
	return order
}
