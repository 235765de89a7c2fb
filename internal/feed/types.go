package feed

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the upstream feed could not produce a usable
// answer: unreachable host, non-OK status after retries, or a malformed
// payload.
var ErrUnavailable = errors.New("feed unavailable")

// ClanStanding is one leaderboard row as reported by the upstream API.
type ClanStanding struct {
	Name    string `json:"Name"`
	Points  int64  `json:"Points"`
	Members int    `json:"Members"`
}

// BattleTiming describes the active battle window. BattleID is the upstream
// event config name; Start and Finish bound the scoring window.
type BattleTiming struct {
	BattleID string
	Start    time.Time
	Finish   time.Time
}

// LeaderboardFeed produces the current top clan standings.
type LeaderboardFeed interface {
	Leaderboard(ctx context.Context) ([]ClanStanding, error)
}

// TimingFeed produces the active battle window.
type TimingFeed interface {
	ActiveBattle(ctx context.Context) (*BattleTiming, error)
}
