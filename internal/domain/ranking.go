package domain

// Catch-up time sentinels. Expected "can't compute" states are values,
// not errors: a single clan's missing gain must not fail the whole response.
const (
	// CatchUpNA means the preconditions for a catch-up estimate failed
	// (rank 1, missing gain on either side, or not actually gaining faster).
	CatchUpNA = "N/A"

	// CatchUpError means the preconditions held but the arithmetic itself
	// produced an unusable result.
	CatchUpError = "Error"
)

// RankedRow is one enriched leaderboard entry, recomputed per request.
type RankedRow struct {
	ClanName    string
	Points      int64
	MemberCount int
	CurrentRank int // 1-based position in the points-descending sort

	// Gain is the point delta over the gain window. Nil when no snapshot
	// exists at or before (latest - window); never coerced to zero.
	Gain *int64

	GapToAbove int64  // points(rank-1) - points(rank); 0 for rank 1
	CatchUp    string // formatted duration, CatchUpNA or CatchUpError

	// ProjectedPoints is the linear extrapolation to the battle's end.
	// Nil for forecast-ineligible clans or when no baseline exists.
	ProjectedPoints *float64

	// ForecastRank is the 1-based position in the forecast-score sort.
	// Nil for forecast-ineligible clans, even though they participate
	// in the sort as stationary entries.
	ForecastRank *int
}
