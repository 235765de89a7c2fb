package ranking

import (
	"context"
	"testing"
	"time"

	"clanwatch/internal/domain"
	"clanwatch/internal/storage/memory"
)

var latestAt = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

const testBattle = "Battle25"

type series struct {
	clan   string
	points map[int]int64 // minutes before latestAt -> points
}

func seedStore(t *testing.T, sets ...series) *memory.SnapshotStore {
	t.Helper()
	store := memory.NewSnapshotStore()
	ctx := context.Background()

	// Group by instant so FirstSeenAt resolves in capture order.
	byOffset := map[int][]*domain.Snapshot{}
	var offsets []int
	for _, s := range sets {
		for offset, points := range s.points {
			if _, seen := byOffset[offset]; !seen {
				offsets = append(offsets, offset)
			}
			byOffset[offset] = append(byOffset[offset], &domain.Snapshot{
				ClanName:    s.clan,
				BattleID:    testBattle,
				Points:      points,
				MemberCount: 30,
				CapturedAt:  latestAt.Add(-time.Duration(offset) * time.Minute),
			})
		}
	}
	for i := 0; i < len(offsets); i++ {
		for j := i + 1; j < len(offsets); j++ {
			if offsets[j] > offsets[i] {
				offsets[i], offsets[j] = offsets[j], offsets[i]
			}
		}
	}
	for _, offset := range offsets {
		if err := store.InsertSnapshotBatch(ctx, byOffset[offset]); err != nil {
			t.Fatalf("seed snapshots at -%dm: %v", offset, err)
		}
	}
	return store
}

// Points 400 at T-360m, 900 at T-60m, 1000 at T. With a 60 minute gain
// window, a 360 minute forecast window and 120 minutes remaining, the gain
// is 100 and the projection lands on 1200.
func TestEngine_ProjectionArithmetic(t *testing.T) {
	store := seedStore(t, series{clan: "ALPHA", points: map[int]int64{360: 400, 60: 900, 0: 1000}})
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 0, 120)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	row := rows[0]
	if row.Gain == nil || *row.Gain != 100 {
		t.Errorf("gain = %v, want 100", row.Gain)
	}
	if row.ProjectedPoints == nil {
		t.Fatal("projection absent for eligible clan")
	}
	if got := *row.ProjectedPoints; got < 1199.9 || got > 1200.1 {
		t.Errorf("projected = %v, want 1200", got)
	}
	if row.ForecastRank == nil || *row.ForecastRank != 1 {
		t.Errorf("forecast rank = %v, want 1", row.ForecastRank)
	}
}

// Same series but first seen three hours ago: no projection, forecast rank
// suppressed, yet the clan still holds its place in the forecast sort.
func TestEngine_IneligibleClanIsStationary(t *testing.T) {
	store := seedStore(t,
		series{clan: "ALPHA", points: map[int]int64{180: 400, 60: 900, 0: 1000}},
		series{clan: "BRAVO", points: map[int]int64{400: 100, 60: 700, 0: 800}},
	)
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 0, 120)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	alpha, bravo := rows[0], rows[1]
	if alpha.ClanName != "ALPHA" {
		t.Fatalf("rank 1 = %s, want ALPHA", alpha.ClanName)
	}
	if alpha.ProjectedPoints != nil || alpha.ForecastRank != nil {
		t.Errorf("ineligible clan got projection %v rank %v", alpha.ProjectedPoints, alpha.ForecastRank)
	}

	// BRAVO projects past ALPHA's frozen 1000, so its forecast rank is 1
	// with stationary ALPHA occupying rank 2 invisibly.
	if bravo.ProjectedPoints == nil {
		t.Fatal("eligible clan missing projection")
	}
	if bravo.ForecastRank == nil || *bravo.ForecastRank != 1 {
		t.Errorf("forecast rank = %v, want 1", bravo.ForecastRank)
	}
}

func TestEngine_EligibilityBoundaryInclusive(t *testing.T) {
	// First seen exactly six hours before the latest instant.
	store := seedStore(t, series{clan: "ALPHA", points: map[int]int64{360: 400, 0: 1000}})
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 0, 120)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if rows[0].ProjectedPoints == nil {
		t.Error("clan first seen exactly 6h ago must be forecast-eligible")
	}
}

func TestEngine_GainNilWithoutHistory(t *testing.T) {
	store := seedStore(t, series{clan: "ALPHA", points: map[int]int64{30: 900, 0: 1000}})
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 0, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if rows[0].Gain != nil {
		t.Errorf("gain = %v, want nil when no snapshot at or before the window start", *rows[0].Gain)
	}
}

func TestEngine_GapToAbove(t *testing.T) {
	store := seedStore(t,
		series{clan: "ALPHA", points: map[int]int64{0: 1000}},
		series{clan: "BRAVO", points: map[int]int64{0: 800}},
		series{clan: "CHARLIE", points: map[int]int64{0: 750}},
	)
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 0, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if rows[0].GapToAbove != 0 {
		t.Errorf("rank 1 gap = %d, want 0", rows[0].GapToAbove)
	}
	if rows[1].GapToAbove != 200 || rows[2].GapToAbove != 50 {
		t.Errorf("gaps = %d, %d, want 200, 50", rows[1].GapToAbove, rows[2].GapToAbove)
	}
}

func TestEngine_CatchUp(t *testing.T) {
	// BRAVO trails by 200 but gains 150/h against ALPHA's 50/h: the gap
	// closes in (200*60)/100 = 120 minutes.
	store := seedStore(t,
		series{clan: "ALPHA", points: map[int]int64{60: 950, 0: 1000}},
		series{clan: "BRAVO", points: map[int]int64{60: 650, 0: 800}},
		series{clan: "CHARLIE", points: map[int]int64{60: 790, 0: 795}},
	)
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 0, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	if rows[0].CatchUp != domain.CatchUpNA {
		t.Errorf("rank 1 catch-up = %q, want %q", rows[0].CatchUp, domain.CatchUpNA)
	}
	if rows[1].CatchUp != "2h" {
		t.Errorf("catch-up = %q, want 2h", rows[1].CatchUp)
	}
	// CHARLIE gains slower than BRAVO above it
	if rows[2].CatchUp != domain.CatchUpNA {
		t.Errorf("catch-up = %q, want %q", rows[2].CatchUp, domain.CatchUpNA)
	}
}

func TestEngine_UnknownBattleEmptyResult(t *testing.T) {
	engine := NewEngine(memory.NewSnapshotStore())

	rows, err := engine.Rank(context.Background(), "nope", 60, 360, 0, 120)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows for unknown battle, want 0", len(rows))
	}
}

func TestEngine_InvalidWindows(t *testing.T) {
	engine := NewEngine(memory.NewSnapshotStore())

	if _, err := engine.Rank(context.Background(), testBattle, 0, 360, 0, 120); err == nil {
		t.Error("expected error for zero gain window")
	}
	if _, err := engine.Rank(context.Background(), testBattle, 60, -1, 0, 120); err == nil {
		t.Error("expected error for negative forecast window")
	}
}

func TestEngine_TopNLimit(t *testing.T) {
	store := seedStore(t,
		series{clan: "ALPHA", points: map[int]int64{0: 1000}},
		series{clan: "BRAVO", points: map[int]int64{0: 800}},
		series{clan: "CHARLIE", points: map[int]int64{0: 750}},
	)
	engine := NewEngine(store)

	rows, err := engine.Rank(context.Background(), testBattle, 60, 360, 2, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}
