// Package stub provides programmable in-memory feeds for tests.
package stub

import (
	"context"
	"sync"

	"clanwatch/internal/feed"
)

// LeaderboardFeed returns programmed standings or a programmed error.
type LeaderboardFeed struct {
	mu        sync.Mutex
	standings []feed.ClanStanding
	err       error
	calls     int
}

var _ feed.LeaderboardFeed = (*LeaderboardFeed)(nil)

// SetStandings programs the next Leaderboard results.
func (f *LeaderboardFeed) SetStandings(standings []feed.ClanStanding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.standings = standings
	f.err = nil
}

// SetError programs Leaderboard to fail.
func (f *LeaderboardFeed) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns how many times Leaderboard was invoked.
func (f *LeaderboardFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *LeaderboardFeed) Leaderboard(ctx context.Context) ([]feed.ClanStanding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]feed.ClanStanding, len(f.standings))
	copy(out, f.standings)
	return out, nil
}

// TimingFeed returns a programmed battle window or a programmed error.
type TimingFeed struct {
	mu     sync.Mutex
	timing *feed.BattleTiming
	err    error
}

var _ feed.TimingFeed = (*TimingFeed)(nil)

// SetTiming programs the next ActiveBattle result.
func (f *TimingFeed) SetTiming(timing *feed.BattleTiming) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timing = timing
	f.err = nil
}

// SetError programs ActiveBattle to fail.
func (f *TimingFeed) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *TimingFeed) ActiveBattle(ctx context.Context) (*feed.BattleTiming, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.timing == nil {
		return nil, feed.ErrUnavailable
	}
	t := *f.timing
	return &t, nil
}
