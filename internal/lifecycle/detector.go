// Package lifecycle decides, once per ingestion cycle, whether snapshots may
// be written and under which battle id. Battle rollovers upstream are not
// flagged explicitly; the detector infers them from the sentinel clan's point
// movement.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"clanwatch/internal/domain"
	"clanwatch/internal/feed"
	"clanwatch/internal/storage"
)

// DefaultRolloverMargin is the relative sentinel-point delta above which a
// battle rollover is assumed rather than upstream propagation lag.
const DefaultRolloverMargin = 0.10

// Decision reasons, used for logging and metrics labels.
const (
	ReasonTimingUnavailable = "timing_unavailable"
	ReasonOutsideWindow     = "outside_window"
	ReasonFirstBattle       = "first_battle"
	ReasonTracking          = "tracking"
	ReasonRollover          = "rollover"
	ReasonPropagationLag    = "propagation_lag"
)

// Decision is the outcome of one detector evaluation. When Accept is true,
// BattleID names the battle the cycle's snapshots belong to.
type Decision struct {
	Accept    bool
	BattleID  string
	NewBattle bool
	Reason    string
}

// Detector reconstructs its state from the store every cycle, so a restart
// between cycles loses nothing.
type Detector struct {
	timing    feed.TimingFeed
	snapshots storage.SnapshotStore
	battles   storage.BattleStore
	sentinel  string
	margin    float64
	now       func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithMargin overrides the rollover margin.
func WithMargin(margin float64) Option {
	return func(d *Detector) {
		d.margin = margin
	}
}

// WithClock overrides the wall-clock source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a detector gating ingestion on the given sentinel clan.
func NewDetector(timing feed.TimingFeed, snapshots storage.SnapshotStore, battles storage.BattleStore, sentinel string, opts ...Option) *Detector {
	d := &Detector{
		timing:    timing,
		snapshots: snapshots,
		battles:   battles,
		sentinel:  sentinel,
		margin:    DefaultRolloverMargin,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate runs the gating rules in order and returns the first match.
// sentinelPoints is the sentinel clan's freshly fetched point total. Feed
// failures produce a skip decision, not an error; store failures are returned
// to the caller, which treats them as a soft per-cycle failure.
func (d *Detector) Evaluate(ctx context.Context, sentinelPoints int64) (*Decision, error) {
	timing, err := d.timing.ActiveBattle(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Timing feed unavailable, skipping cycle")
		return &Decision{Reason: ReasonTimingUnavailable}, nil
	}

	now := d.now()
	if now.Before(timing.Start) || now.After(timing.Finish) {
		return &Decision{Reason: ReasonOutsideWindow}, nil
	}

	if _, err := d.battles.CurrentBattle(ctx); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return d.startBattle(ctx, timing, ReasonFirstBattle)
		}
		return nil, fmt.Errorf("load current battle: %w", err)
	}

	// Rules 4 and 5 key on the timing feed's battle id, never the store's
	// current record: when upstream flips to a new event, the old record is
	// still current until the rollover below registers the new one.
	_, err = d.snapshots.MostRecentSnapshot(ctx, d.sentinel, timing.BattleID)
	if err == nil {
		return &Decision{Accept: true, BattleID: timing.BattleID, Reason: ReasonTracking}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load sentinel snapshot for %s: %w", timing.BattleID, err)
	}

	// The timing feed's battle has no sentinel snapshot yet. Compare the
	// fetched sentinel points against its newest snapshot across all battles
	// to tell a genuine rollover from the upstream still serving the
	// previous event's frozen totals.
	last, err := d.snapshots.MostRecentSnapshot(ctx, d.sentinel, "")
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return d.startBattle(ctx, timing, ReasonFirstBattle)
		}
		return nil, fmt.Errorf("load sentinel snapshot unfiltered: %w", err)
	}

	delta := sentinelPoints - last.Points
	if delta < 0 {
		delta = -delta
	}
	margin := d.margin * float64(last.Points)
	if float64(delta) > margin {
		log.Info().
			Str("battle_id", timing.BattleID).
			Int64("sentinel_points", sentinelPoints).
			Int64("last_points", last.Points).
			Msg("Sentinel jump exceeds margin, starting new battle")
		return d.startBattle(ctx, timing, ReasonRollover)
	}

	return &Decision{Reason: ReasonPropagationLag}, nil
}

// startBattle registers the timing feed's battle as current. The upsert
// flips any previous current record in the same step.
func (d *Detector) startBattle(ctx context.Context, timing *feed.BattleTiming, reason string) (*Decision, error) {
	record := &domain.BattleRecord{
		BattleID:  timing.BattleID,
		StartedAt: timing.Start,
		IsCurrent: true,
	}
	if err := d.battles.UpsertBattleRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("register battle %s: %w", timing.BattleID, err)
	}
	log.Info().Str("battle_id", timing.BattleID).Str("reason", reason).Msg("Tracking battle")
	return &Decision{Accept: true, BattleID: timing.BattleID, NewBattle: true, Reason: reason}, nil
}
