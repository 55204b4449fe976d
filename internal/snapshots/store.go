// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package snapshots persists per-user aggregate snapshots in BadgerDB.
// Snapshots are derived data: losing the store only costs a recompute
// from the checkin store.
package snapshots

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/meadstats/meadstats/internal/models"
)

const snapshotKeyPrefix = "snapshot:"

// ErrSnapshotNotFound is returned when no snapshot exists for a user.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store is a BadgerDB-backed snapshot store keyed by user id.
type Store struct {
	db *badger.DB
}

// Open opens a BadgerDB at the given path. An empty path opens an
// in-memory store, used by tests and as a degraded fallback.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for snapshots: %w", err)
	}
	return &Store{db: db}, nil
}

// Save persists the user's snapshot, replacing any previous one.
func (s *Store) Save(snapshot *models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snapshot.UserID), data)
	})
}

// Get loads the user's snapshot, ErrSnapshotNotFound when none exists.
func (s *Store) Get(userID int) (*models.Snapshot, error) {
	var snapshot models.Snapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snapshot)
		})
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Delete removes the user's snapshot. Deleting a missing snapshot is
// not an error.
func (s *Store) Delete(userID int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(userID))
	})
}

// Close closes the underlying BadgerDB.
func (s *Store) Close() error {
	return s.db.Close()
}

func snapshotKey(userID int) []byte {
	return []byte(snapshotKeyPrefix + strconv.Itoa(userID))
}
