package ranking

import (
	"context"
	"errors"
	"testing"

	"clanwatch/internal/storage"
)

// Target clan projects to 1500, the user clan to 1200, three hours remain:
// the user needs an extra 100 points per hour.
func TestSolver_DeterminedRate(t *testing.T) {
	// Over a 360 minute window with 180 minutes remaining, projected =
	// points + gain/2.
	store := seedStore(t,
		series{clan: "TARGET", points: map[int]int64{360: 300, 0: 1100}}, // projected 1100 + 800/2 = 1500
		series{clan: "USER", points: map[int]int64{360: 300, 0: 900}},    // projected 900 + 600/2 = 1200
	)
	solver := NewSolver(NewEngine(store))

	result, err := solver.Solve(context.Background(), testBattle, "USER", 1, 360, 180)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if result.Kind != NeededRate {
		t.Fatalf("kind = %q, want %q", result.Kind, NeededRate)
	}
	if result.RatePerHour != 100 {
		t.Errorf("rate = %d, want 100", result.RatePerHour)
	}
}

func TestSolver_AlreadyMet(t *testing.T) {
	store := seedStore(t,
		series{clan: "TARGET", points: map[int]int64{360: 300, 0: 900}},
		series{clan: "USER", points: map[int]int64{360: 300, 0: 1100}},
	)
	solver := NewSolver(NewEngine(store))

	result, err := solver.Solve(context.Background(), testBattle, "USER", 1, 360, 180)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if result.Kind != NeededAlreadyMet {
		t.Errorf("kind = %q, want %q", result.Kind, NeededAlreadyMet)
	}
	if result.RatePerHour != 0 {
		t.Errorf("rate = %d, want 0", result.RatePerHour)
	}
}

func TestSolver_IndeterminateWhenEitherSideIneligible(t *testing.T) {
	// USER observed for only two hours: its projection would be frozen
	// while the target's is extrapolated, so the comparison is unsound.
	store := seedStore(t,
		series{clan: "TARGET", points: map[int]int64{360: 300, 0: 1100}},
		series{clan: "USER", points: map[int]int64{120: 300, 0: 900}},
	)
	solver := NewSolver(NewEngine(store))

	result, err := solver.Solve(context.Background(), testBattle, "USER", 1, 360, 180)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if result.Kind != NeededIndeterminate {
		t.Errorf("kind = %q, want %q", result.Kind, NeededIndeterminate)
	}
}

func TestSolver_FinalRankWhenBattleEnded(t *testing.T) {
	store := seedStore(t,
		series{clan: "ALPHA", points: map[int]int64{0: 1000}},
		series{clan: "USER", points: map[int]int64{0: 800}},
		series{clan: "CHARLIE", points: map[int]int64{0: 600}},
	)
	solver := NewSolver(NewEngine(store))

	result, err := solver.Solve(context.Background(), testBattle, "USER", 1, 360, 0)
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if result.Kind != NeededFinalRank {
		t.Fatalf("kind = %q, want %q", result.Kind, NeededFinalRank)
	}
	if result.FinalRank != 2 {
		t.Errorf("final rank = %d, want 2", result.FinalRank)
	}
}

func TestSolver_InputErrors(t *testing.T) {
	store := seedStore(t, series{clan: "USER", points: map[int]int64{0: 800}})
	solver := NewSolver(NewEngine(store))
	ctx := context.Background()

	if _, err := solver.Solve(ctx, testBattle, "", 1, 360, 60); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty clan error = %v, want ErrInvalidInput", err)
	}
	if _, err := solver.Solve(ctx, testBattle, "USER", 0, 360, 60); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("rank 0 error = %v, want ErrInvalidInput", err)
	}
	if _, err := solver.Solve(ctx, testBattle, "USER", 251, 360, 60); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("rank 251 error = %v, want ErrInvalidInput", err)
	}
	if _, err := solver.Solve(ctx, testBattle, "USER", 2, 360, 60); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("rank beyond population error = %v, want ErrInvalidInput", err)
	}
	if _, err := solver.Solve(ctx, testBattle, "GHOST", 1, 360, 60); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown clan error = %v, want ErrNotFound", err)
	}
	if _, err := solver.Solve(ctx, "nope", "USER", 1, 360, 60); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown battle error = %v, want ErrNotFound", err)
	}
}
