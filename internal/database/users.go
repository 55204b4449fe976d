// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
)

const userColumns = `id, user_name, first_name, last_name, avatar, avatar_hd,
	total_badges, total_friends, total_checkins, total_beers,
	access_token, credential_invalid, last_update`

// UpsertUser inserts or refreshes a user record. Profile fields are
// overwritten from the source; the access token is only replaced when
// the incoming record carries one.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	defer observe("upsert_user", time.Now())

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (
			id, user_name, first_name, last_name, avatar, avatar_hd,
			total_badges, total_friends, total_checkins, total_beers,
			access_token, credential_invalid, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_name = excluded.user_name,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			avatar = excluded.avatar,
			avatar_hd = excluded.avatar_hd,
			total_badges = excluded.total_badges,
			total_friends = excluded.total_friends,
			total_checkins = excluded.total_checkins,
			total_beers = excluded.total_beers,
			access_token = CASE WHEN excluded.access_token = ''
				THEN users.access_token ELSE excluded.access_token END,
			credential_invalid = excluded.credential_invalid,
			last_update = excluded.last_update`,
		user.ID, user.UserName, user.FirstName, user.LastName,
		user.Avatar, user.AvatarHD,
		user.TotalBadges, user.TotalFriends, user.TotalCheckins, user.TotalBeers,
		user.AccessToken, user.CredentialInvalid, user.LastUpdate,
	)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("upsert_user").Inc()
		return fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
	}
	return nil
}

// GetUserByID returns the user with the given Untappd id.
func (db *DB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	defer observe("get_user", time.Now())

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByName returns the user with the given Untappd username.
func (db *DB) GetUserByName(ctx context.Context, userName string) (*models.User, error) {
	defer observe("get_user", time.Now())

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_name = ?`, userName)
	return scanUser(row)
}

// ListUsers returns all registered users ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	defer observe("list_users", time.Now())

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY user_name`)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("list_users").Inc()
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer closeQuietly(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetCredentialInvalid flags or clears the user's credential state.
func (db *DB) SetCredentialInvalid(ctx context.Context, userID int, invalid bool) error {
	defer observe("set_credential_invalid", time.Now())

	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET credential_invalid = ? WHERE id = ?`, invalid, userID)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("set_credential_invalid").Inc()
		return fmt.Errorf("failed to update credential state for user %d: %w", userID, err)
	}
	return nil
}

// GetSyncState returns the sync bookkeeping record for the user. A
// user that has never synced gets a zero-cursor idle state.
func (db *DB) GetSyncState(ctx context.Context, userID int) (*models.SyncState, error) {
	defer observe("get_sync_state", time.Now())

	var (
		state     = models.SyncState{UserID: userID}
		cursor    sql.NullTime
		lastRunAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT cursor, status, last_run_at, last_error, retry_count
		FROM sync_state WHERE user_id = ?`, userID,
	).Scan(&cursor, &state.Status, &lastRunAt, &state.LastError, &state.RetryCount)

	if errors.Is(err, sql.ErrNoRows) {
		state.Status = models.SyncIdle
		return &state, nil
	}
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("get_sync_state").Inc()
		return nil, fmt.Errorf("failed to load sync state for user %d: %w", userID, err)
	}

	if cursor.Valid {
		state.Cursor = cursor.Time.UTC()
	}
	if lastRunAt.Valid {
		state.LastRunAt = lastRunAt.Time.UTC()
	}
	return &state, nil
}

// SaveSyncState persists the full sync bookkeeping record.
func (db *DB) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	defer observe("save_sync_state", time.Now())

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, cursor, status, last_run_at, last_error, retry_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			cursor = excluded.cursor,
			status = excluded.status,
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error,
			retry_count = excluded.retry_count`,
		state.UserID, nullTime(state.Cursor), string(state.Status),
		nullTime(state.LastRunAt), state.LastError, state.RetryCount,
	)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("save_sync_state").Inc()
		return fmt.Errorf("failed to save sync state for user %d: %w", state.UserID, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user       models.User
		lastUpdate sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.UserName, &user.FirstName, &user.LastName,
		&user.Avatar, &user.AvatarHD,
		&user.TotalBadges, &user.TotalFriends, &user.TotalCheckins, &user.TotalBeers,
		&user.AccessToken, &user.CredentialInvalid, &lastUpdate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("get_user").Inc()
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if lastUpdate.Valid {
		t := lastUpdate.Time.UTC()
		user.LastUpdate = &t
	}
	return &user, nil
}

// observe records query duration for the given operation label.
func observe(operation string, start time.Time) {
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// nullTime maps the zero time onto SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
