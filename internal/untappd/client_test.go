// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package untappd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meadstats/meadstats/internal/config"
)

// testConfig returns a client config pointing at the given test server.
func testConfig(serverURL string) *config.UntappdConfig {
	return &config.UntappdConfig{
		BaseURL:         serverURL,
		ClientID:        "client-id",
		ClientSecret:    "client-secret",
		PageSize:        50,
		Timeout:         5 * time.Second,
		RequestsPerHour: 3600000, // effectively unpaced in tests
	}
}

// beersBody builds a user/beers envelope with the given items.
func beersBody(totalCount int, items ...string) string {
	joined := ""
	for i, item := range items {
		if i > 0 {
			joined += ","
		}
		joined += item
	}
	return fmt.Sprintf(`{
		"meta": {"code": 200},
		"response": {
			"total_count": %d,
			"beers": {"count": %d, "items": [%s]}
		}
	}`, totalCount, len(items), joined)
}

// beerItem builds one well-formed user/beers item.
func beerItem(checkinID int64, firstHad string, venue string) string {
	return fmt.Sprintf(`{
		"first_checkin_id": %d,
		"first_had": %q,
		"count": 2,
		"rating_score": 3.75,
		"beer": {"bid": 42, "beer_name": "Westvleteren 12", "beer_style": "Quadrupel", "beer_abv": 10.2},
		"brewery": {"brewery_id": 7, "brewery_name": "Westvleteren", "country_name": "Belgium"},
		"venue": %s
	}`, checkinID, firstHad, venue)
}

func TestFetchPageParsesRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "tok" {
			t.Errorf("expected access_token=tok, got %q", got)
		}
		fmt.Fprint(w, beersBody(120,
			beerItem(1001, "Sat, 04 Aug 2018 14:44:31 -0400", `{"venue_id": 9, "venue_name": "Kulminator"}`),
			beerItem(1000, "Fri, 03 Aug 2018 10:00:00 -0400", `[]`),
		))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	page, err := client.FetchPage(context.Background(), "tok", Cursor{}, 50)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if len(page.Checkins) != 2 {
		t.Fatalf("expected 2 checkins, got %d", len(page.Checkins))
	}
	if !page.HasMore {
		t.Error("expected HasMore with total_count 120")
	}
	if page.NextCursor.Offset != 2 {
		t.Errorf("expected next offset 2, got %d", page.NextCursor.Offset)
	}

	first := page.Checkins[0]
	if first.ID != 1001 {
		t.Errorf("expected checkin id 1001, got %d", first.ID)
	}
	if first.BeerStyle != "Quadrupel" {
		t.Errorf("unexpected style %q", first.BeerStyle)
	}
	if first.BreweryCountry != "Belgium" {
		t.Errorf("unexpected country %q", first.BreweryCountry)
	}
	if !first.HasVenue() || first.VenueName != "Kulminator" {
		t.Errorf("expected venue on first checkin, got %+v", first)
	}
	wantTime := time.Date(2018, 8, 4, 18, 44, 31, 0, time.UTC)
	if !first.CheckedInAt.Equal(wantTime) {
		t.Errorf("expected UTC-normalized time %v, got %v", wantTime, first.CheckedInAt)
	}

	if page.Checkins[1].HasVenue() {
		t.Error("empty-array venue should parse as no venue")
	}
}

func TestFetchPageSkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, beersBody(3,
			beerItem(1001, "Sat, 04 Aug 2018 14:44:31 -0400", `[]`),
			beerItem(0, "Sat, 04 Aug 2018 14:44:31 -0400", `[]`), // missing natural key
			beerItem(999, "not a date", `[]`),
		))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	page, err := client.FetchPage(context.Background(), "tok", Cursor{}, 50)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if len(page.Checkins) != 1 {
		t.Errorf("expected 1 valid checkin, got %d", len(page.Checkins))
	}
	if page.ParseFailures != 2 {
		t.Errorf("expected 2 parse failures, got %d", page.ParseFailures)
	}
}

func TestFetchPageLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, beersBody(51, beerItem(1, "Sat, 04 Aug 2018 14:44:31 -0400", `[]`)))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	page, err := client.FetchPage(context.Background(), "tok", Cursor{Offset: 50}, 50)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if page.HasMore {
		t.Error("expected HasMore=false at end of feed")
	}
}

func TestFetchPageRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.FetchPage(context.Background(), "tok", Cursor{}, 50)

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.RetryAfter != 30*time.Second {
		t.Errorf("expected 30s retry-after, got %s", rl.RetryAfter)
	}
}

func TestFetchPageAuthFailure(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewClient(testConfig(srv.URL))
		_, err := client.FetchPage(context.Background(), "tok", Cursor{}, 50)
		srv.Close()

		var ae *AuthError
		if !errors.As(err, &ae) {
			t.Fatalf("status %d: expected AuthError, got %v", status, err)
		}
		if ae.Status != status {
			t.Errorf("expected status %d recorded, got %d", status, ae.Status)
		}
	}
}

func TestFetchPageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.FetchPage(context.Background(), "tok", Cursor{}, 50)

	var tr *TransientError
	if !errors.As(err, &tr) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("transient errors must be retryable")
	}
}

func TestFetchPageEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"meta": {"code": 500, "error_detail": "upstream broke", "error_type": "internal_error"}}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.FetchPage(context.Background(), "tok", Cursor{}, 50)

	var tr *TransientError
	if !errors.As(err, &tr) {
		t.Fatalf("expected TransientError for envelope error, got %v", err)
	}
}

func TestUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"meta": {"code": 200},
			"response": {"user": {
				"uid": 77, "user_name": "Boren", "first_name": "B", "last_name": "N",
				"user_avatar": "a", "user_avatar_hd": "ahd",
				"stats": {"total_badges": 5, "total_friends": 10, "total_checkins": 500, "total_beers": 400}
			}}
		}`)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	user, err := client.UserInfo(context.Background(), "tok")
	if err != nil {
		t.Fatalf("UserInfo failed: %v", err)
	}

	if user.ID != 77 || user.UserName != "Boren" {
		t.Errorf("unexpected user %+v", user)
	}
	if user.TotalBeers != 400 {
		t.Errorf("expected total beers 400, got %d", user.TotalBeers)
	}
}

func TestAppCredentialsUsedWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client_id") != "client-id" || q.Get("client_secret") != "client-secret" {
			t.Errorf("expected app credentials in query, got %v", q)
		}
		if q.Get("access_token") != "" {
			t.Error("access_token must be absent without a user token")
		}
		fmt.Fprint(w, beersBody(0))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	if _, err := client.FetchPage(context.Background(), "", Cursor{}, 50); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"0", 0},
		{"-5", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
