package ingestion

import (
	"context"
	"testing"
	"time"

	"clanwatch/internal/feed"
	"clanwatch/internal/feed/stub"
	"clanwatch/internal/lifecycle"
	"clanwatch/internal/storage"
	"clanwatch/internal/storage/memory"
)

var (
	battleStart = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	battleEnd   = battleStart.Add(7 * 24 * time.Hour)
	midBattle   = battleStart.Add(48 * time.Hour)
)

type ingestorEnv struct {
	leaderboard *stub.LeaderboardFeed
	timing      *stub.TimingFeed
	snapshots   *memory.SnapshotStore
	battles     *memory.BattleStore
	ingestor    *Ingestor
}

func newIngestorEnv(t *testing.T) *ingestorEnv {
	t.Helper()
	env := &ingestorEnv{
		leaderboard: &stub.LeaderboardFeed{},
		timing:      &stub.TimingFeed{},
		snapshots:   memory.NewSnapshotStore(),
		battles:     memory.NewBattleStore(),
	}
	env.timing.SetTiming(&feed.BattleTiming{BattleID: "Battle25", Start: battleStart, Finish: battleEnd})
	env.leaderboard.SetStandings([]feed.ClanStanding{
		{Name: "ALPHA", Points: 12000, Members: 40},
		{Name: "NONG", Points: 9000, Members: 50},
		{Name: "BRAVO", Points: 7000, Members: 35},
	})

	clock := func() time.Time { return midBattle }
	detector := lifecycle.NewDetector(env.timing, env.snapshots, env.battles, "NONG",
		lifecycle.WithClock(clock))
	env.ingestor = NewIngestor(Options{
		Leaderboard:  env.leaderboard,
		Detector:     detector,
		Snapshots:    env.snapshots,
		SentinelClan: "NONG",
		Now:          clock,
	})
	return env
}

func TestIngestor_RunCycleWritesAcceptedBatch(t *testing.T) {
	env := newIngestorEnv(t)

	result, err := env.ingestor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !result.Decision.Accept {
		t.Fatalf("decision = %+v, want accept", result.Decision)
	}
	if result.Written != 3 {
		t.Errorf("written = %d, want 3", result.Written)
	}

	rows, err := env.snapshots.SnapshotsAt(context.Background(), "Battle25", midBattle, 0)
	if err != nil {
		t.Fatalf("SnapshotsAt() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("stored %d snapshots, want 3", len(rows))
	}
	if rows[0].ClanName != "ALPHA" || rows[0].Points != 12000 || rows[0].MemberCount != 40 {
		t.Errorf("unexpected top row: %+v", rows[0])
	}
}

func TestIngestor_SkippedCycleWritesNothing(t *testing.T) {
	env := newIngestorEnv(t)
	env.timing.SetError(feed.ErrUnavailable)

	result, err := env.ingestor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if result.Decision.Accept || result.Written != 0 {
		t.Errorf("result = %+v, want skip with no writes", result)
	}

	if _, err := env.snapshots.LatestCapturedAt(context.Background(), "Battle25"); err != storage.ErrNotFound {
		t.Errorf("LatestCapturedAt error = %v, want ErrNotFound", err)
	}
}

func TestIngestor_LeaderboardFailureIsSoft(t *testing.T) {
	env := newIngestorEnv(t)
	env.leaderboard.SetError(feed.ErrUnavailable)

	_, err := env.ingestor.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected error when leaderboard feed fails")
	}

	// Loop must survive and succeed on the next cycle
	env.leaderboard.SetStandings([]feed.ClanStanding{
		{Name: "NONG", Points: 9000, Members: 50},
	})
	result, err := env.ingestor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() after recovery error = %v", err)
	}
	if !result.Decision.Accept {
		t.Errorf("decision = %+v, want accept after recovery", result.Decision)
	}
}

func TestIngestor_MissingSentinelFailsCycle(t *testing.T) {
	env := newIngestorEnv(t)
	env.leaderboard.SetStandings([]feed.ClanStanding{
		{Name: "ALPHA", Points: 12000, Members: 40},
	})

	_, err := env.ingestor.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected error when sentinel clan is absent")
	}
}

func TestIngestor_DuplicateInstantIsSoft(t *testing.T) {
	env := newIngestorEnv(t)

	if _, err := env.ingestor.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}

	// Same clock instant again: the batch collides and the cycle degrades
	// to a no-op instead of failing.
	result, err := env.ingestor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if result.Written != 0 {
		t.Errorf("written = %d, want 0 on duplicate instant", result.Written)
	}
}

func TestIngestor_RunStopsOnCancel(t *testing.T) {
	env := newIngestorEnv(t)
	env.ingestor.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.ingestor.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
