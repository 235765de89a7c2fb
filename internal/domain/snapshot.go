package domain

import "time"

// Snapshot records one clan's point total at one instant within one battle.
// Snapshots are append-only: once written they are never updated or deleted.
type Snapshot struct {
	ClanName    string    // clan display name, unique within the feed
	BattleID    string    // opaque event identifier from the timing feed
	Points      int64     // point total at capture time, >= 0
	MemberCount int       // member count reported by the feed (0 when absent)
	CapturedAt  time.Time // UTC capture instant; shared by all rows of one cycle
	FirstSeenAt time.Time // earliest CapturedAt for this (clan, battle); set by the store
}

// BattleRecord registers one detected battle. At most one record is current
// at any time; SetCurrentBattle flips the previous one in the same operation.
type BattleRecord struct {
	BattleID  string
	StartedAt time.Time
	IsCurrent bool
}
