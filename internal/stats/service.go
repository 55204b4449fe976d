// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meadstats/meadstats/internal/config"
	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
	"github.com/meadstats/meadstats/internal/snapshots"
)

// CheckinSource is the slice of the checkin store the service reads.
type CheckinSource interface {
	HighWaterMark(ctx context.Context, userID int) (time.Time, error)
	CheckinsForUser(ctx context.Context, userID int) ([]models.Checkin, error)
}

// SnapshotStore persists computed snapshots between requests.
type SnapshotStore interface {
	Get(userID int) (*models.Snapshot, error)
	Save(snapshot *models.Snapshot) error
}

// Service answers stats queries from cached snapshots, recomputing
// from the checkin store when the snapshot is stale and the
// configuration demands freshness. Sync failures never surface here:
// stats always reflect whatever data is durably stored.
type Service struct {
	source CheckinSource
	store  SnapshotStore
	cfg    *config.StatsConfig
	loc    *time.Location
}

// New builds the stats service. The configured timezone must already
// be validated.
func New(source CheckinSource, store SnapshotStore, cfg *config.StatsConfig) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid stats timezone %q: %w", cfg.Timezone, err)
	}
	return &Service{source: source, store: store, cfg: cfg, loc: loc}, nil
}

// GetStats returns the user's snapshot and whether it is stale
// relative to the store's high-water mark. With serve_stale enabled a
// stale snapshot is returned as-is and flagged; otherwise it is
// recomputed synchronously.
func (s *Service) GetStats(ctx context.Context, userID int) (*models.Snapshot, bool, error) {
	hwm, err := s.source.HighWaterMark(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("checking data state for user %d: %w", userID, err)
	}

	snapshot, err := s.store.Get(userID)
	if err != nil && !errors.Is(err, snapshots.ErrSnapshotNotFound) {
		// A broken snapshot store degrades to recompute-on-read.
		logging.Warn().Err(err).Int("user_id", userID).Msg("Snapshot load failed, recomputing")
		snapshot = nil
	}

	if snapshot != nil && s.fresh(snapshot, hwm) {
		return snapshot, false, nil
	}

	if snapshot != nil && s.cfg.ServeStale {
		metrics.StatsServedStale.Inc()
		return snapshot, true, nil
	}

	recomputed, err := s.Recompute(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return recomputed, false, nil
}

// Recompute rebuilds the user's snapshot from every stored checkin and
// persists it. Persistence failures are logged, not fatal: the caller
// still gets a correct snapshot.
func (s *Service) Recompute(ctx context.Context, userID int) (*models.Snapshot, error) {
	start := time.Now()

	checkins, err := s.source.CheckinsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading checkins for user %d: %w", userID, err)
	}

	snapshot := Compute(userID, checkins, s.loc, s.cfg.TopN)
	metrics.AggregateRecomputes.WithLabelValues("full").Inc()

	if err := s.store.Save(snapshot); err != nil {
		logging.Warn().Err(err).Int("user_id", userID).Msg("Failed to persist snapshot")
	}

	logging.Debug().
		Int("user_id", userID).
		Int("checkins", len(checkins)).
		Dur("elapsed", time.Since(start)).
		Msg("Snapshot recomputed")

	return snapshot, nil
}

// ApplyBatch folds newly inserted checkins into the user's snapshot.
// It falls back to a full recompute when no usable snapshot exists,
// when the reference timezone changed, or when the batch reaches
// behind the snapshot's high-water mark (an out-of-order backfill the
// incremental fold cannot express for already-derived buckets).
func (s *Service) ApplyBatch(ctx context.Context, userID int, batch []models.Checkin) error {
	if len(batch) == 0 {
		return nil
	}

	snapshot, err := s.store.Get(userID)
	if err != nil || snapshot.Timezone != s.loc.String() || reachesBehind(batch, snapshot.HighWaterMark) {
		_, rerr := s.Recompute(ctx, userID)
		return rerr
	}

	Apply(snapshot, batch, s.loc, s.cfg.TopN)
	metrics.AggregateRecomputes.WithLabelValues("incremental").Inc()

	if err := s.store.Save(snapshot); err != nil {
		logging.Warn().Err(err).Int("user_id", userID).Msg("Failed to persist snapshot")
	}
	return nil
}

// fresh reports whether the snapshot reflects the store's current
// high-water mark under the current reference timezone.
func (s *Service) fresh(snapshot *models.Snapshot, hwm time.Time) bool {
	return snapshot.HighWaterMark.Equal(hwm) && snapshot.Timezone == s.loc.String()
}

// reachesBehind reports whether any batch record is not strictly newer
// than the snapshot's high-water mark.
func reachesBehind(batch []models.Checkin, hwm time.Time) bool {
	for i := range batch {
		if !batch[i].CheckedInAt.After(hwm) {
			return true
		}
	}
	return false
}
