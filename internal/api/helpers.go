// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/models"
)

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps a payload in the standard envelope.
func respondSuccess(w http.ResponseWriter, status int, data interface{}, meta Metadata) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: meta.queryTimeMS,
			Stale:       meta.stale,
		},
	})
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// Metadata carries per-request envelope extras.
type Metadata struct {
	queryTimeMS int64
	stale       bool
}

func timing(start time.Time) Metadata {
	return Metadata{queryTimeMS: time.Since(start).Milliseconds()}
}
