// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/models"
)

// Scheduler periodically sweeps all registered users and syncs the
// eligible ones. It runs as a suture service: Serve blocks until the
// context is canceled.
type Scheduler struct {
	coordinator *Coordinator
	store       Store
	interval    time.Duration
}

// NewScheduler builds the background sync sweep.
func NewScheduler(coordinator *Coordinator, store Store, interval time.Duration) *Scheduler {
	return &Scheduler{coordinator: coordinator, store: store, interval: interval}
}

// Serve runs an initial sweep, then one per interval.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) String() string {
	return "sync-scheduler"
}

// sweep syncs every eligible user sequentially. The source rate
// limiter paces the work; parallel runs would only queue on it.
func (s *Scheduler) sweep(ctx context.Context) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Sync sweep could not list users")
		return
	}

	for i := range users {
		if ctx.Err() != nil {
			return
		}
		user := &users[i]
		if !s.eligible(ctx, user) {
			continue
		}

		if _, err := s.coordinator.SyncUser(ctx, user.ID); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				logging.Debug().Int("user_id", user.ID).Msg("Skipping user with active sync")
				continue
			}
			// SyncUser already logged the failure detail.
			continue
		}
	}
}

// eligible excludes users with rejected credentials and users whose
// last run failed; both need operator or user action before the
// background sweep should touch them again.
func (s *Scheduler) eligible(ctx context.Context, user *models.User) bool {
	if user.CredentialInvalid {
		return false
	}
	state, err := s.store.GetSyncState(ctx, user.ID)
	if err != nil {
		logging.Warn().Err(err).Int("user_id", user.ID).Msg("Could not load sync state for sweep")
		return false
	}
	return state.Status != models.SyncFailed
}
