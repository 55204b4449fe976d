// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// createTables creates the core tables and indexes. All statements are
// idempotent so startup is safe against an existing database file.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			user_name VARCHAR NOT NULL,
			first_name VARCHAR NOT NULL DEFAULT '',
			last_name VARCHAR NOT NULL DEFAULT '',
			avatar VARCHAR NOT NULL DEFAULT '',
			avatar_hd VARCHAR NOT NULL DEFAULT '',
			total_badges INTEGER NOT NULL DEFAULT 0,
			total_friends INTEGER NOT NULL DEFAULT 0,
			total_checkins INTEGER NOT NULL DEFAULT 0,
			total_beers INTEGER NOT NULL DEFAULT 0,
			access_token VARCHAR NOT NULL DEFAULT '',
			credential_invalid BOOLEAN NOT NULL DEFAULT FALSE,
			last_update TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS checkins (
			id BIGINT NOT NULL,
			user_id INTEGER NOT NULL,
			beer_id INTEGER NOT NULL,
			beer_name VARCHAR NOT NULL,
			beer_style VARCHAR NOT NULL DEFAULT '',
			beer_abv DOUBLE NOT NULL DEFAULT 0,
			brewery_id INTEGER NOT NULL DEFAULT 0,
			brewery_name VARCHAR NOT NULL DEFAULT '',
			brewery_country VARCHAR NOT NULL DEFAULT '',
			venue_id INTEGER NOT NULL DEFAULT 0,
			venue_name VARCHAR NOT NULL DEFAULT '',
			checked_in_at TIMESTAMP NOT NULL,
			rating DOUBLE NOT NULL DEFAULT 0,
			count INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS sync_state (
			user_id INTEGER PRIMARY KEY,
			cursor TIMESTAMP,
			status VARCHAR NOT NULL DEFAULT 'idle',
			last_run_at TIMESTAMP,
			last_error VARCHAR NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_checkins_user_time
			ON checkins (user_id, checked_in_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_user_name
			ON users (user_name)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}
