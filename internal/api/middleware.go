// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/meadstats/meadstats/internal/auth"
	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/metrics"
)

// prometheusMetrics records request counts and latency per route.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// The route pattern keeps metric labels low-cardinality:
		// "/api/v1/users/{username}/stats", not one label per user.
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// authenticate requires a valid bearer token and is applied to
// mutating endpoints. Read endpoints stay public, matching Untappd
// profiles being public data.
func authenticate(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, http.StatusUnauthorized, "AUTH_ERROR", "missing bearer token", nil)
				return
			}
			if _, err := jwtManager.ValidateToken(token); err != nil {
				respondError(w, http.StatusUnauthorized, "AUTH_ERROR", "invalid or expired token", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
