// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meadstats/meadstats/internal/auth"
	"github.com/meadstats/meadstats/internal/config"
)

// NewRouter wires the full HTTP surface.
func NewRouter(handler *Handler, jwtManager *auth.JWTManager, cfg *config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", handler.Health)

	r.Route("/api/v1/users/{username}", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(prometheusMetrics)

		r.Get("/", handler.GetUser)
		r.Get("/stats", handler.GetStats)

		// Sync is the only mutating operation; it requires a session.
		r.With(authenticate(jwtManager)).Post("/sync", handler.TriggerSync)
	})

	return r
}
