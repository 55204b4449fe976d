// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package api serves the Meadstats HTTP API: user profiles, aggregate
// stats, sync triggers, health, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meadstats/meadstats/internal/database"
	"github.com/meadstats/meadstats/internal/models"
	syncpkg "github.com/meadstats/meadstats/internal/sync"
	"github.com/meadstats/meadstats/internal/untappd"
)

// UserStore is the slice of the checkin store the handlers read.
type UserStore interface {
	GetUserByName(ctx context.Context, userName string) (*models.User, error)
	GetSyncState(ctx context.Context, userID int) (*models.SyncState, error)
	Ping(ctx context.Context) error
}

// StatsProvider answers aggregate stats queries.
type StatsProvider interface {
	GetStats(ctx context.Context, userID int) (*models.Snapshot, bool, error)
}

// Syncer triggers sync runs.
type Syncer interface {
	SyncUser(ctx context.Context, userID int) (*syncpkg.Result, error)
}

// Handler holds the HTTP handler dependencies.
type Handler struct {
	store  UserStore
	stats  StatsProvider
	syncer Syncer
}

// NewHandler builds the API handler set.
func NewHandler(store UserStore, stats StatsProvider, syncer Syncer) *Handler {
	return &Handler{store: store, stats: stats, syncer: syncer}
}

// Health reports liveness and store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "checkin store unreachable", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": "healthy"}, Metadata{})
}

// GetUser returns a user's profile and sync state.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	state, err := h.store.GetSyncState(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load sync state", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"user":       user,
		"sync_state": state,
	}, timing(start))
}

// GetStats returns the user's aggregate snapshot. Responses computed
// from a snapshot behind the store's high-water mark carry the stale
// metadata flag.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	snapshot, stale, err := h.stats.GetStats(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to compute stats", err)
		return
	}

	meta := timing(start)
	meta.stale = stale
	respondSuccess(w, http.StatusOK, &models.StatsResponse{User: user, Stats: snapshot}, meta)
}

// TriggerSync starts a sync run for the user and blocks until it
// finishes. Sync failures map onto the source error taxonomy so the
// frontend can distinguish a busy user from a revoked token.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	result, err := h.syncer.SyncUser(r.Context(), user.ID)
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, &models.SyncResponse{
		Inserted: result.Inserted,
		Cursor:   result.Cursor,
	}, timing(start))
}

func (h *Handler) respondSyncError(w http.ResponseWriter, err error) {
	var (
		rateErr  *untappd.RateLimitedError
		transErr *untappd.TransientError
	)
	switch {
	case errors.Is(err, syncpkg.ErrSyncInProgress):
		respondError(w, http.StatusConflict, "SYNC_IN_PROGRESS", "a sync is already running for this user", nil)
	case errors.Is(err, syncpkg.ErrCredentialInvalid):
		respondError(w, http.StatusUnauthorized, "AUTH_ERROR", "Untappd rejected the stored credentials, please re-authenticate", err)
	case errors.As(err, &rateErr):
		respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Untappd rate limit exceeded, try again later", err)
	case errors.As(err, &transErr):
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Untappd is unavailable, try again later", err)
	default:
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "sync failed", err)
	}
}

// lookupUser resolves the {username} route parameter. A miss writes
// the 404 response and reports !ok.
func (h *Handler) lookupUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	username := chi.URLParam(r, "username")
	if username == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username is required", nil)
		return nil, false
	}

	user, err := h.store.GetUserByName(r.Context(), username)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load user", err)
		return nil, false
	}
	return user, true
}
