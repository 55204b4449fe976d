// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package config provides configuration management for Meadstats.
//
// Configuration is loaded via Koanf v2 with layered sources, highest
// priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (UNTAPPD_CLIENT_ID -> untappd.client_id)
//
// The loaded configuration is validated with go-playground/validator
// before use; the server refuses to start on invalid configuration.
package config

import "time"

// Config is the root configuration for the Meadstats server.
type Config struct {
	Untappd  UntappdConfig  `koanf:"untappd"`
	Database DatabaseConfig `koanf:"database"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Sync     SyncConfig     `koanf:"sync"`
	Stats    StatsConfig    `koanf:"stats"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// UntappdConfig configures the Untappd API client.
type UntappdConfig struct {
	// BaseURL is the Untappd API endpoint.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// ClientID and ClientSecret authenticate app-level requests.
	// Per-user requests use the user's stored access token instead.
	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`

	// PageSize is the number of records requested per page.
	// The Untappd user/beers endpoint caps this at 50.
	PageSize int `koanf:"page_size" validate:"min=1,max=50"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// RequestsPerHour paces outgoing requests. Untappd allows 100
	// requests per hour per access token.
	RequestsPerHour int `koanf:"requests_per_hour" validate:"min=1"`
}

// DatabaseConfig configures the DuckDB checkin store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is DuckDB's memory limit (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`
}

// SnapshotConfig configures the Badger aggregate snapshot store.
type SnapshotConfig struct {
	// Path is the Badger directory. Empty = in-memory (tests).
	Path string `koanf:"path"`
}

// SyncConfig configures the sync coordinator and background scheduler.
type SyncConfig struct {
	// Interval between background sync sweeps over eligible users.
	Interval time.Duration `koanf:"interval" validate:"min=1m"`

	// RetryAttempts bounds retries for rate-limited or transient
	// failures within a single run.
	RetryAttempts int `koanf:"retry_attempts" validate:"min=0,max=10"`

	// RetryDelay is the base delay for exponential backoff on
	// transient failures.
	RetryDelay time.Duration `koanf:"retry_delay" validate:"min=100ms"`

	// FullScan disables the newest-first overlap-stop optimization and
	// walks the full history every run. Slower but immune to sources
	// that reorder old records on modification.
	FullScan bool `koanf:"full_scan"`
}

// StatsConfig configures the aggregation engine and query service.
type StatsConfig struct {
	// Timezone is the reference timezone for calendar-day grouping
	// (streaks, per-day graph). IANA name, e.g. "Europe/Oslo".
	Timezone string `koanf:"timezone" validate:"required"`

	// TopN is the size of the top-brewery/style/venue tables.
	TopN int `koanf:"top_n" validate:"min=1,max=100"`

	// ServeStale controls GetStats behavior when the snapshot lags the
	// store: true serves the stale snapshot with a staleness flag,
	// false recomputes synchronously before responding.
	ServeStale bool `koanf:"serve_stale"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// SecurityConfig configures authentication and request limits.
type SecurityConfig struct {
	// JWTSecret signs and verifies session tokens, and derives the
	// key that encrypts stored Untappd access tokens. 32+ characters.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=32"`

	// SessionTimeout bounds how long issued session tokens stay valid.
	SessionTimeout time.Duration `koanf:"session_timeout" validate:"min=1m"`

	// RateLimitReqs / RateLimitWindow bound requests per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`

	// CORSOrigins lists allowed origins for the frontend.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Untappd: UntappdConfig{
			BaseURL:         "https://api.untappd.com/v4",
			PageSize:        50,
			Timeout:         30 * time.Second,
			RequestsPerHour: 100,
		},
		Database: DatabaseConfig{
			Path:      "/data/meadstats.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Snapshot: SnapshotConfig{
			Path: "/data/snapshots",
		},
		Sync: SyncConfig{
			Interval:      6 * time.Hour,
			RetryAttempts: 5,
			RetryDelay:    2 * time.Second,
			FullScan:      false,
		},
		Stats: StatsConfig{
			Timezone:   "UTC",
			TopN:       10,
			ServeStale: true,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5000,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
