// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package models

import "time"

// APIResponse is the standardized response wrapper used by all HTTP
// endpoints.
//
// Status is "success" or "error". Data carries the payload on success;
// Error carries structured details on failure. Metadata is always
// present for observability.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`

	// Stale marks responses served from an aggregate snapshot that
	// lags the checkin store's high-water mark.
	Stale bool `json:"stale,omitempty"`
}

// APIError carries a machine-readable code plus a human-readable
// message.
//
// Codes used by the sync endpoints mirror the sync error taxonomy so
// the frontend can react specifically. AUTH_ERROR should prompt the
// user to re-authenticate with Untappd:
//   - SYNC_IN_PROGRESS: a run is already active for the user
//   - AUTH_ERROR: Untappd rejected the stored credential
//   - RATE_LIMITED: Untappd rate limit exhausted the retry budget
//   - UPSTREAM_ERROR: Untappd transient failures exhausted the retry budget
//   - STORE_ERROR: the checkin store is unavailable
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatsResponse is the payload of the user stats endpoint.
type StatsResponse struct {
	User  *User     `json:"user"`
	Stats *Snapshot `json:"stats"`
}

// SyncResponse is the payload of a successful sync trigger.
type SyncResponse struct {
	Inserted int       `json:"inserted"`
	Cursor   time.Time `json:"cursor"`
}
