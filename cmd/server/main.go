// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package main is the entry point for the Meadstats server.
//
// Meadstats pulls a user's Untappd checkin history into a local DuckDB
// store, keeps it fresh with periodic incremental syncs, and serves
// aggregate drinking statistics (top breweries and styles, calendar
// breakdowns, streaks, cumulative graphs) over a REST API.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, config file,
//     environment variables)
//  2. Database: DuckDB checkin store (users, checkins, sync state)
//  3. Snapshots: BadgerDB store for computed aggregate snapshots
//  4. Untappd client: rate-limited source adapter behind a circuit
//     breaker
//  5. Sync coordinator and background scheduler
//  6. HTTP server: REST API plus Prometheus metrics
//
// The HTTP server and the sync scheduler run under a suture
// supervision tree; either one crashing restarts it in isolation.
//
// # Configuration
//
// Required environment variables:
//   - UNTAPPD_CLIENT_ID / UNTAPPD_CLIENT_SECRET: Untappd API app
//     credentials
//   - SECURITY_JWT_SECRET: 32+ character secret for session tokens and
//     credential encryption
//
// See config.yaml.example for the full set of tunables.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: in-flight requests get
// 10 seconds to finish, active sync runs are canceled (durable pages
// are already stored), and both stores are closed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/meadstats/meadstats/internal/api"
	"github.com/meadstats/meadstats/internal/auth"
	"github.com/meadstats/meadstats/internal/config"
	"github.com/meadstats/meadstats/internal/database"
	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/snapshots"
	"github.com/meadstats/meadstats/internal/stats"
	"github.com/meadstats/meadstats/internal/supervisor"
	syncpkg "github.com/meadstats/meadstats/internal/sync"
	"github.com/meadstats/meadstats/internal/untappd"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Msg("Starting Meadstats")

	encryptor, err := config.NewCredentialEncryptor(cfg.Security.JWTSecret)
	if err != nil {
		return err
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Database close failed")
		}
	}()

	snapshotStore, err := snapshots.Open(cfg.Snapshot.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := snapshotStore.Close(); err != nil {
			logging.Warn().Err(err).Msg("Snapshot store close failed")
		}
	}()

	source := untappd.NewCircuitBreakerClient(untappd.NewClient(&cfg.Untappd))

	statsService, err := stats.New(db, snapshotStore, &cfg.Stats)
	if err != nil {
		return err
	}

	coordinator := syncpkg.New(source, db, statsService, encryptor, &cfg.Sync, cfg.Untappd.PageSize)
	scheduler := syncpkg.NewScheduler(coordinator, db, cfg.Sync.Interval)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return err
	}

	handler := api.NewHandler(db, statsService, coordinator)
	router := api.NewRouter(handler, jwtManager, &cfg.Security)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.Add(supervisor.NewHTTPService(router, &cfg.Server))
	tree.Add(scheduler)

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
