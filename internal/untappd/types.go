// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package untappd

import "github.com/goccy/go-json"

// Wire types for the Untappd v4 API. Every response carries a meta
// wrapper with an HTTP-like code; payloads live under "response".

// apiEnvelope is the common Untappd response wrapper.
type apiEnvelope struct {
	Meta struct {
		Code        int    `json:"code"`
		ErrorDetail string `json:"error_detail"`
		ErrorType   string `json:"error_type"`
	} `json:"meta"`
	Response json.RawMessage `json:"response"`
}

// beersPayload is the "response" body of user/beers.
type beersPayload struct {
	TotalCount int `json:"total_count"`
	Beers      struct {
		Count int               `json:"count"`
		Items []json.RawMessage `json:"items"`
	} `json:"beers"`
}

// rawBeerItem is one entry of the user/beers list: a distinct beer with
// its first checkin. Date format: "Sat, 04 Aug 2018 14:44:31 -0400".
type rawBeerItem struct {
	FirstCheckinID int64   `json:"first_checkin_id"`
	FirstHad       string  `json:"first_had"`
	Count          int     `json:"count"`
	RatingScore    float64 `json:"rating_score"`

	Beer struct {
		BID       int     `json:"bid"`
		BeerName  string  `json:"beer_name"`
		BeerLabel string  `json:"beer_label"`
		BeerABV   float64 `json:"beer_abv"`
		BeerStyle string  `json:"beer_style"`
	} `json:"beer"`

	Brewery struct {
		BreweryID   int    `json:"brewery_id"`
		BreweryName string `json:"brewery_name"`
		CountryName string `json:"country_name"`
	} `json:"brewery"`

	// Venue is absent for most records; Untappd sends an empty array
	// instead of an object when there is no venue, so it is parsed
	// leniently in parseVenue.
	Venue json.RawMessage `json:"venue"`
}

// rawVenue is the venue object when present.
type rawVenue struct {
	VenueID   int    `json:"venue_id"`
	VenueName string `json:"venue_name"`
}

// userPayload is the "response" body of user/info.
type userPayload struct {
	User struct {
		UID          int    `json:"uid"`
		UserName     string `json:"user_name"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		UserAvatar   string `json:"user_avatar"`
		UserAvatarHD string `json:"user_avatar_hd"`
		Stats        struct {
			TotalBadges   int `json:"total_badges"`
			TotalFriends  int `json:"total_friends"`
			TotalCheckins int `json:"total_checkins"`
			TotalBeers    int `json:"total_beers"`
		} `json:"stats"`
	} `json:"user"`
}
