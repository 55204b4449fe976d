// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package sync pulls checkin history from the external source into the
// store. Runs are exclusive per user, retried within a bounded budget,
// and durable per page: a failed run keeps every page it stored.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/meadstats/meadstats/internal/config"
	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
	"github.com/meadstats/meadstats/internal/untappd"
)

// Store is the slice of the checkin store the coordinator writes.
type Store interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	SetCredentialInvalid(ctx context.Context, userID int, invalid bool) error
	GetSyncState(ctx context.Context, userID int) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	UpsertCheckins(ctx context.Context, userID int, checkins []models.Checkin) ([]models.Checkin, error)
	HighWaterMark(ctx context.Context, userID int) (time.Time, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Aggregator folds newly stored checkins into the user's snapshot.
type Aggregator interface {
	ApplyBatch(ctx context.Context, userID int, batch []models.Checkin) error
}

// Decryptor recovers a user's plaintext access token.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// Result summarizes a completed sync run.
type Result struct {
	Inserted int
	Pages    int
	Cursor   time.Time
}

// Coordinator drives sync runs: one at a time per user, newest-first
// paging, per-page durable upserts, bounded retries on upstream
// failures.
type Coordinator struct {
	source     untappd.Source
	store      Store
	aggregator Aggregator
	decryptor  Decryptor
	cfg        *config.SyncConfig
	pageSize   int

	mu      stdsync.Mutex
	running map[int]bool

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a sync coordinator.
func New(source untappd.Source, store Store, aggregator Aggregator, decryptor Decryptor, cfg *config.SyncConfig, pageSize int) *Coordinator {
	return &Coordinator{
		source:     source,
		store:      store,
		aggregator: aggregator,
		decryptor:  decryptor,
		cfg:        cfg,
		pageSize:   pageSize,
		running:    make(map[int]bool),
		sleep:      sleepCtx,
	}
}

// SyncUser runs one sync for the user. A second call for the same user
// while a run is active returns ErrSyncInProgress without touching any
// state; runs for different users proceed concurrently.
func (c *Coordinator) SyncUser(ctx context.Context, userID int) (*Result, error) {
	if !c.acquire(userID) {
		metrics.SyncRuns.WithLabelValues("rejected").Inc()
		return nil, ErrSyncInProgress
	}
	defer c.release(userID)

	start := time.Now()
	result, err := c.run(ctx, userID)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.SyncRuns.WithLabelValues("success").Inc()
	case errors.Is(err, ErrCredentialInvalid):
		metrics.SyncRuns.WithLabelValues("auth_failed").Inc()
	default:
		metrics.SyncRuns.WithLabelValues("failed").Inc()
	}
	return result, err
}

func (c *Coordinator) acquire(userID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running[userID] {
		return false
	}
	c.running[userID] = true
	return true
}

func (c *Coordinator) release(userID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, userID)
}

func (c *Coordinator) run(ctx context.Context, userID int) (*Result, error) {
	runID := uuid.NewString()
	logging.Info().Str("run_id", runID).Int("user_id", userID).Msg("Sync started")

	user, err := c.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %d: %w", userID, err)
	}

	token := ""
	if user.AccessToken != "" {
		token, err = c.decryptor.Decrypt(user.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("decrypting credentials for user %d: %w", userID, err)
		}
	}

	state, err := c.store.GetSyncState(ctx, userID)
	if err != nil {
		return nil, err
	}
	state.Status = models.SyncRunning
	state.LastRunAt = time.Now().UTC()
	state.LastError = ""
	state.RetryCount = 0
	if err := c.store.SaveSyncState(ctx, state); err != nil {
		return nil, err
	}

	result, runErr := c.pageLoop(ctx, user, token, state)
	if runErr != nil {
		return nil, c.fail(ctx, state, user, runErr)
	}

	// The run completed: advance the cursor to the store's mark. On
	// failure the cursor stays put and the next run re-walks from the
	// top until it reaches known checkins.
	hwm, err := c.store.HighWaterMark(ctx, userID)
	if err != nil {
		return nil, c.fail(ctx, state, user, err)
	}
	state.Cursor = hwm
	state.Status = models.SyncIdle
	state.LastError = ""
	if err := c.store.SaveSyncState(ctx, state); err != nil {
		return nil, err
	}
	result.Cursor = hwm

	now := time.Now().UTC()
	user.LastUpdate = &now
	if err := c.store.UpsertUser(ctx, user); err != nil {
		logging.Warn().Err(err).Int("user_id", userID).Msg("Failed to stamp user after sync")
	}

	logging.Info().
		Str("run_id", runID).
		Int("user_id", userID).
		Int("inserted", result.Inserted).
		Int("pages", result.Pages).
		Time("cursor", result.Cursor).
		Msg("Sync completed")
	return result, nil
}

// pageLoop walks the source newest-first, storing each page before
// fetching the next. With an established cursor the walk stops at the
// first page that adds nothing new; a full scan walks the entire feed
// to pick up rating and count revisions on old checkins.
func (c *Coordinator) pageLoop(ctx context.Context, user *models.User, token string, state *models.SyncState) (*Result, error) {
	result := &Result{}
	cursor := untappd.Cursor{}
	fullScan := c.cfg.FullScan || state.Cursor.IsZero()

	// Refresh the profile first; it also validates credentials before
	// any page work happens.
	profile, err := c.fetchUserWithRetry(ctx, token, state)
	if err != nil {
		return result, err
	}
	profile.ID = user.ID
	profile.AccessToken = ""
	profile.CredentialInvalid = false
	profile.LastUpdate = user.LastUpdate
	if err := c.store.UpsertUser(ctx, profile); err != nil {
		return result, err
	}
	*user = *profile

	for {
		page, err := c.fetchPageWithRetry(ctx, token, cursor, state)
		if err != nil {
			return result, err
		}
		result.Pages++
		metrics.SyncPagesFetched.Inc()

		if len(page.Checkins) > 0 {
			inserted, err := c.store.UpsertCheckins(ctx, user.ID, page.Checkins)
			if err != nil {
				return result, err
			}
			result.Inserted += len(inserted)
			metrics.SyncCheckinsInserted.Add(float64(len(inserted)))

			if len(inserted) > 0 {
				if err := c.aggregator.ApplyBatch(ctx, user.ID, inserted); err != nil {
					// Aggregation is derived state; a failure here
					// must not abort ingestion.
					logging.Warn().Err(err).Int("user_id", user.ID).Msg("Snapshot update failed during sync")
				}
			}

			// Known territory: every record on this page was already
			// stored, so everything older is stored too.
			if !fullScan && len(inserted) == 0 {
				return result, nil
			}
		}

		if !page.HasMore {
			return result, nil
		}
		cursor = page.NextCursor
	}
}

// fail records the failed run. Auth rejections additionally flag the
// user's credentials so the scheduler stops retrying a dead token.
func (c *Coordinator) fail(ctx context.Context, state *models.SyncState, user *models.User, runErr error) error {
	state.Status = models.SyncFailed
	state.LastError = runErr.Error()
	if err := c.store.SaveSyncState(ctx, state); err != nil {
		logging.Error().Err(err).Int("user_id", state.UserID).Msg("Failed to persist failed sync state")
	}

	var authErr *untappd.AuthError
	if errors.As(runErr, &authErr) {
		if err := c.store.SetCredentialInvalid(ctx, user.ID, true); err != nil {
			logging.Error().Err(err).Int("user_id", user.ID).Msg("Failed to flag invalid credentials")
		}
		logging.Warn().Int("user_id", user.ID).Msg("Sync failed: credentials rejected")
		return fmt.Errorf("%w: %s", ErrCredentialInvalid, runErr)
	}

	logging.Error().Err(runErr).Int("user_id", state.UserID).Msg("Sync failed")
	return runErr
}

func (c *Coordinator) fetchPageWithRetry(ctx context.Context, token string, cursor untappd.Cursor, state *models.SyncState) (*untappd.Page, error) {
	var page *untappd.Page
	err := c.withRetry(ctx, state, func() error {
		var err error
		page, err = c.source.FetchPage(ctx, token, cursor, c.pageSize)
		return err
	})
	return page, err
}

func (c *Coordinator) fetchUserWithRetry(ctx context.Context, token string, state *models.SyncState) (*models.User, error) {
	var user *models.User
	err := c.withRetry(ctx, state, func() error {
		var err error
		user, err = c.source.UserInfo(ctx, token)
		return err
	})
	return user, err
}

// withRetry runs fn within the run's shared retry budget. Rate limits
// wait out the source's Retry-After; transient failures back off
// exponentially from the configured base delay. Auth rejections and
// context cancellation never retry.
func (c *Coordinator) withRetry(ctx context.Context, state *models.SyncState, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !untappd.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		if state.RetryCount >= c.cfg.RetryAttempts {
			return fmt.Errorf("retry budget exhausted after %d attempts: %w", state.RetryCount, err)
		}

		delay := c.cfg.RetryDelay << state.RetryCount
		var rl *untappd.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			delay = rl.RetryAfter
		}
		state.RetryCount++

		logging.Warn().
			Err(err).
			Int("user_id", state.UserID).
			Int("attempt", state.RetryCount).
			Dur("delay", delay).
			Msg("Source request failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
