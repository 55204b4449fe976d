// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package sync

import "errors"

var (
	// ErrSyncInProgress is returned when a sync is requested for a
	// user whose run lock is already held.
	ErrSyncInProgress = errors.New("sync already in progress for user")

	// ErrCredentialInvalid is returned when a run hit an upstream auth
	// rejection; the user must re-authenticate before syncing again.
	ErrCredentialInvalid = errors.New("user credentials rejected by source")
)
