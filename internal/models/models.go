// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package models defines the core data structures shared across the
// Meadstats application: users, checkins, sync state, and aggregate
// snapshots, plus the standard API response wrapper.
package models

import (
	"time"
)

// SyncStatus is the per-user sync state machine value.
type SyncStatus string

// Sync state machine: Idle -> Running -> {Idle, Failed}. A Failed user
// is excluded from background sync until the flag is cleared.
const (
	SyncIdle    SyncStatus = "idle"
	SyncRunning SyncStatus = "running"
	SyncFailed  SyncStatus = "failed"
)

// User is a registered Untappd user tracked by Meadstats. The ID is the
// Untappd numeric user id (natural key).
type User struct {
	ID            int        `json:"id"`
	UserName      string     `json:"user_name"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Avatar        string     `json:"avatar"`
	AvatarHD      string     `json:"avatar_hd"`
	TotalBadges   int        `json:"total_badges"`
	TotalFriends  int        `json:"total_friends"`
	TotalCheckins int        `json:"total_checkins"`
	TotalBeers    int        `json:"total_beers"`
	LastUpdate    *time.Time `json:"last_update,omitempty"`

	// AccessToken is the user's Untappd OAuth token, AES-GCM encrypted
	// at rest. Never serialized to API responses.
	AccessToken string `json:"-"`

	// CredentialInvalid is set when a sync run hit an auth failure;
	// the user must re-authenticate with Untappd to clear it.
	CredentialInvalid bool `json:"credential_invalid"`
}

// Checkin is one consumption event pulled from the Untappd API.
// ID is Untappd's first_checkin_id, unique per (UserID, ID); a checkin
// is immutable once stored except for rating/count updates on re-sync.
type Checkin struct {
	ID     int64 `json:"id"`
	UserID int   `json:"user_id"`

	BeerID    int     `json:"beer_id"`
	BeerName  string  `json:"beer_name"`
	BeerStyle string  `json:"beer_style"`
	BeerABV   float64 `json:"beer_abv"`

	BreweryID      int    `json:"brewery_id"`
	BreweryName    string `json:"brewery_name"`
	BreweryCountry string `json:"brewery_country"`

	// Venue is optional; zero VenueID means no venue was recorded.
	VenueID   int    `json:"venue_id,omitempty"`
	VenueName string `json:"venue_name,omitempty"`

	// CheckedInAt is when the beer was first had (Untappd first_had).
	CheckedInAt time.Time `json:"checked_in_at"`

	// Rating is the user's score, 0 when unrated.
	Rating float64 `json:"rating"`

	// Count is how many times the user has had this beer.
	Count int `json:"count"`
}

// HasVenue reports whether the checkin carries venue information.
func (c *Checkin) HasVenue() bool {
	return c.VenueID != 0
}

// SyncState is the per-user sync bookkeeping record. Mutated only by
// the sync coordinator while it holds the user's run lock.
type SyncState struct {
	UserID int `json:"user_id"`

	// Cursor is the timestamp of the newest fully-ingested checkin:
	// the resume point for incremental syncs. Zero means never synced.
	Cursor time.Time `json:"cursor"`

	Status     SyncStatus `json:"status"`
	LastRunAt  time.Time  `json:"last_run_at"`
	LastError  string     `json:"last_error,omitempty"`
	RetryCount int        `json:"retry_count"`
}

// FrequencyEntry is one row of a top-N breakdown table.
type FrequencyEntry struct {
	Key           string  `json:"key"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// PeriodStat is one bucket of a calendar breakdown (weekday, hour,
// month, year).
type PeriodStat struct {
	Period        int     `json:"period"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// GraphPoint is one day of the cumulative checkin graph.
type GraphPoint struct {
	Date     string `json:"date"` // YYYY-MM-DD in the reference timezone
	Count    int    `json:"count"`
	CountDay int    `json:"count_day"`
}

// Snapshot is the computed statistics view for one user, tagged with
// the data state it reflects. HighWaterMark is the latest checkin
// timestamp folded into the snapshot; the stats service compares it to
// the store's high-water mark to detect staleness.
type Snapshot struct {
	UserID int `json:"user_id"`

	TotalCheckins     int `json:"total_checkins"`
	DistinctBeers     int `json:"distinct_beers"`
	DistinctBreweries int `json:"distinct_breweries"`
	DistinctStyles    int `json:"distinct_styles"`
	DistinctVenues    int `json:"distinct_venues"`
	DistinctCountries int `json:"distinct_countries"`

	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	TopBreweries []FrequencyEntry `json:"top_breweries"`
	TopStyles    []FrequencyEntry `json:"top_styles"`
	TopVenues    []FrequencyEntry `json:"top_venues"`
	TopCountries []FrequencyEntry `json:"top_countries"`

	Weekdays []PeriodStat `json:"weekdays"`
	Hours    []PeriodStat `json:"hours"`
	Months   []PeriodStat `json:"months"`
	Years    []PeriodStat `json:"years"`

	Graph []GraphPoint `json:"graph"`

	// Internal accumulator state carried between incremental updates.
	// Days maps YYYY-MM-DD to that day's checkin count. The frequency
	// maps double as the distinct-count sets.
	Days      map[string]int           `json:"days"`
	Breweries map[string]*FrequencyAcc `json:"breweries"`
	Styles    map[string]*FrequencyAcc `json:"styles"`
	Venues    map[string]*FrequencyAcc `json:"venues"`
	Countries map[string]*FrequencyAcc `json:"countries"`
	Beers     map[int64]int            `json:"beers"`

	WeekdayAcc map[int]*FrequencyAcc `json:"weekday_acc"`
	HourAcc    map[int]*FrequencyAcc `json:"hour_acc"`
	MonthAcc   map[int]*FrequencyAcc `json:"month_acc"`
	YearAcc    map[int]*FrequencyAcc `json:"year_acc"`

	// Timezone is the reference timezone the calendar buckets were
	// computed in. A snapshot computed under a different timezone than
	// the current configuration is stale regardless of its mark.
	Timezone string `json:"timezone"`

	HighWaterMark time.Time `json:"high_water_mark"`
	ComputedAt    time.Time `json:"computed_at"`
}

// FrequencyAcc accumulates count and rating sum for one breakdown key.
type FrequencyAcc struct {
	Count      int     `json:"count"`
	RatingSum  float64 `json:"rating_sum"`
	RatedCount int     `json:"rated_count"`
}

// AverageRating returns the mean of the non-zero ratings folded into
// the accumulator, 0 when none were rated.
func (a *FrequencyAcc) AverageRating() float64 {
	if a.RatedCount == 0 {
		return 0
	}
	return a.RatingSum / float64(a.RatedCount)
}
