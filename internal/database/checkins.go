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
	"strings"
	"time"

	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
)

const checkinColumns = `id, user_id, beer_id, beer_name, beer_style, beer_abv,
	brewery_id, brewery_name, brewery_country, venue_id, venue_name,
	checked_in_at, rating, count`

// UpsertCheckins durably stores one page of checkins for the user in a
// single transaction and returns the records that were newly inserted.
// Existing rows get their rating, count, and beer metadata refreshed;
// identity fields (user, checkin id, timestamp) never change.
func (db *DB) UpsertCheckins(ctx context.Context, userID int, checkins []models.Checkin) ([]models.Checkin, error) {
	if len(checkins) == 0 {
		return nil, nil
	}
	defer observe("upsert_checkins", time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("upsert_checkins").Inc()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := existingCheckinIDs(ctx, tx, userID, checkins)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("upsert_checkins").Inc()
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO checkins (`+checkinColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			beer_name = excluded.beer_name,
			beer_style = excluded.beer_style,
			beer_abv = excluded.beer_abv,
			brewery_name = excluded.brewery_name,
			brewery_country = excluded.brewery_country,
			venue_id = excluded.venue_id,
			venue_name = excluded.venue_name,
			rating = excluded.rating,
			count = excluded.count`)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("upsert_checkins").Inc()
		return nil, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer closeQuietly(stmt)

	var inserted []models.Checkin
	for _, c := range checkins {
		c.UserID = userID
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.UserID, c.BeerID, c.BeerName, c.BeerStyle, c.BeerABV,
			c.BreweryID, c.BreweryName, c.BreweryCountry,
			c.VenueID, c.VenueName,
			c.CheckedInAt.UTC(), c.Rating, c.Count,
		); err != nil {
			metrics.StoreQueryErrors.WithLabelValues("upsert_checkins").Inc()
			return nil, fmt.Errorf("failed to upsert checkin %d: %w", c.ID, err)
		}
		if _, ok := existing[c.ID]; !ok {
			inserted = append(inserted, c)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.StoreQueryErrors.WithLabelValues("upsert_checkins").Inc()
		return nil, fmt.Errorf("failed to commit checkin page: %w", err)
	}
	return inserted, nil
}

// existingCheckinIDs returns which of the batch's ids are already
// stored for the user.
func existingCheckinIDs(ctx context.Context, tx *sql.Tx, userID int, checkins []models.Checkin) (map[int64]struct{}, error) {
	placeholders := make([]string, len(checkins))
	args := make([]any, 0, len(checkins)+1)
	args = append(args, userID)
	for i, c := range checkins {
		placeholders[i] = "?"
		args = append(args, c.ID)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM checkins WHERE user_id = ? AND id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing checkins: %w", err)
	}
	defer closeQuietly(rows)

	existing := make(map[int64]struct{}, len(checkins))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan checkin id: %w", err)
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// HighWaterMark returns the timestamp of the user's newest stored
// checkin, the zero time when none exist.
func (db *DB) HighWaterMark(ctx context.Context, userID int) (time.Time, error) {
	defer observe("high_water_mark", time.Now())

	var hwm sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(checked_in_at) FROM checkins WHERE user_id = ?`, userID,
	).Scan(&hwm)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("high_water_mark").Inc()
		return time.Time{}, fmt.Errorf("failed to query high-water mark for user %d: %w", userID, err)
	}
	if !hwm.Valid {
		return time.Time{}, nil
	}
	return hwm.Time.UTC(), nil
}

// CheckinsSince returns the user's checkins strictly newer than the
// given timestamp, oldest first. A zero timestamp returns everything.
func (db *DB) CheckinsSince(ctx context.Context, userID int, since time.Time) ([]models.Checkin, error) {
	defer observe("checkins_since", time.Now())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+checkinColumns+` FROM checkins
		WHERE user_id = ? AND checked_in_at > ?
		ORDER BY checked_in_at ASC, id ASC`,
		userID, since.UTC())
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("checkins_since").Inc()
		return nil, fmt.Errorf("failed to query checkins for user %d: %w", userID, err)
	}
	defer closeQuietly(rows)

	return scanCheckins(rows)
}

// CheckinsForUser returns every stored checkin for the user, oldest
// first.
func (db *DB) CheckinsForUser(ctx context.Context, userID int) ([]models.Checkin, error) {
	return db.CheckinsSince(ctx, userID, time.Time{})
}

// CheckinCount returns how many checkins are stored for the user.
func (db *DB) CheckinCount(ctx context.Context, userID int) (int, error) {
	defer observe("checkin_count", time.Now())

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checkins WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		metrics.StoreQueryErrors.WithLabelValues("checkin_count").Inc()
		return 0, fmt.Errorf("failed to count checkins for user %d: %w", userID, err)
	}
	return count, nil
}

func scanCheckins(rows *sql.Rows) ([]models.Checkin, error) {
	var checkins []models.Checkin
	for rows.Next() {
		var c models.Checkin
		err := rows.Scan(
			&c.ID, &c.UserID, &c.BeerID, &c.BeerName, &c.BeerStyle, &c.BeerABV,
			&c.BreweryID, &c.BreweryName, &c.BreweryCountry,
			&c.VenueID, &c.VenueName,
			&c.CheckedInAt, &c.Rating, &c.Count,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		c.CheckedInAt = c.CheckedInAt.UTC()
		checkins = append(checkins, c)
	}
	return checkins, rows.Err()
}
