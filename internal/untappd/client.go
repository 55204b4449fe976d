// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package untappd wraps the Untappd v4 HTTP API as a paginated checkin
// source for the sync coordinator.
//
// The client is stateless across calls apart from its request pacer:
// Untappd allows 100 requests per hour per token, so outgoing requests
// are paced with a token-bucket limiter before they leave the process.
// Failures are classified into the taxonomy in errors.go; retry policy
// belongs to the caller, not this package.
package untappd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/meadstats/meadstats/internal/config"
	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
)

// firstHadLayout is Untappd's timestamp format: "Sat, 04 Aug 2018 14:44:31 -0400".
const firstHadLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// maxErrorBodySize bounds how much of an error response body is read
// for diagnostics.
const maxErrorBodySize = 64 * 1024

// Cursor is the opaque resume token for paging through a user's
// checkin feed. It wraps the API's offset; the zero Cursor starts at
// the most recent checkin.
type Cursor struct {
	Offset int `json:"offset"`
}

// Page is one fetched page of checkins, newest first.
type Page struct {
	Checkins   []models.Checkin
	NextCursor Cursor
	HasMore    bool

	// ParseFailures counts malformed records skipped in this page.
	ParseFailures int
}

// Source is the checkin source consumed by the sync coordinator.
// Implemented by Client and by CircuitBreakerClient.
type Source interface {
	// FetchPage returns up to pageSize checkins starting at cursor,
	// newest first. A zero cursor starts from the most recent checkin.
	FetchPage(ctx context.Context, token string, cursor Cursor, pageSize int) (*Page, error)

	// UserInfo fetches the authenticated user's profile.
	UserInfo(ctx context.Context, token string) (*models.User, error)
}

// Client is the production Untappd API client.
//
// Thread safety: safe for concurrent use; each request builds its own
// http.Request and the limiter is internally synchronized.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

var _ Source = (*Client)(nil)

// NewClient creates an Untappd API client from configuration.
func NewClient(cfg *config.UntappdConfig) *Client {
	// Burst of 10 smooths page bursts at the start of a sync run while
	// keeping the hourly average at the configured budget.
	perReq := time.Hour / time.Duration(cfg.RequestsPerHour)
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Every(perReq), 10),
	}
}

// FetchPage fetches one page of the user's beer feed (user/beers),
// newest first, and converts it into canonical checkin records.
// Malformed records are skipped and counted, not fatal to the page.
func (c *Client) FetchPage(ctx context.Context, token string, cursor Cursor, pageSize int) (*Page, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(cursor.Offset))
	params.Set("limit", strconv.Itoa(pageSize))

	raw, err := c.get(ctx, "user/beers", token, params)
	if err != nil {
		return nil, err
	}

	var payload beersPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decoding user/beers payload: %w", err)}
	}

	page := &Page{
		Checkins:   make([]models.Checkin, 0, len(payload.Beers.Items)),
		NextCursor: Cursor{Offset: cursor.Offset + payload.Beers.Count},
		HasMore:    cursor.Offset+payload.Beers.Count < payload.TotalCount && payload.Beers.Count > 0,
	}

	for _, item := range payload.Beers.Items {
		checkin, err := parseBeerItem(item)
		if err != nil {
			page.ParseFailures++
			metrics.UntappdRequestsTotal.WithLabelValues("user/beers", "parse_error").Inc()
			logging.Warn().Err(err).Msg("Skipping malformed checkin record")
			continue
		}
		page.Checkins = append(page.Checkins, checkin)
	}

	return page, nil
}

// UserInfo fetches the authenticated user's profile (user/info).
func (c *Client) UserInfo(ctx context.Context, token string) (*models.User, error) {
	raw, err := c.get(ctx, "user/info", token, url.Values{"compact": []string{"true"}})
	if err != nil {
		return nil, err
	}

	var payload userPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decoding user/info payload: %w", err)}
	}

	u := payload.User
	return &models.User{
		ID:            u.UID,
		UserName:      u.UserName,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Avatar:        u.UserAvatar,
		AvatarHD:      u.UserAvatarHD,
		TotalBadges:   u.Stats.TotalBadges,
		TotalFriends:  u.Stats.TotalFriends,
		TotalCheckins: u.Stats.TotalCheckins,
		TotalBeers:    u.Stats.TotalBeers,
	}, nil
}

// get performs a paced GET against the given API method and returns the
// raw "response" payload. Authentication uses the user access token
// when present, the app credentials otherwise.
func (c *Client) get(ctx context.Context, method, token string, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransientError{Err: err}
	}

	if params == nil {
		params = url.Values{}
	}
	if token != "" {
		params.Set("access_token", token)
	} else {
		params.Set("client_id", c.clientID)
		params.Set("client_secret", c.clientSecret)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("building %s request: %w", method, err)}
	}
	req.Header.Set("User-Agent", "meadstats")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is not a source failure; let it through.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		metrics.UntappdRequestsTotal.WithLabelValues(method, "transient").Inc()
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()
	metrics.UntappdRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err := classifyStatus(method, resp); err != nil {
		return nil, err
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.UntappdRequestsTotal.WithLabelValues(method, "transient").Inc()
		return nil, &TransientError{Err: fmt.Errorf("decoding %s envelope: %w", method, err)}
	}
	if envelope.Meta.Code != http.StatusOK {
		metrics.UntappdRequestsTotal.WithLabelValues(method, "transient").Inc()
		return nil, &TransientError{
			Status: envelope.Meta.Code,
			Err:    fmt.Errorf("%s: %s (%s)", method, envelope.Meta.ErrorDetail, envelope.Meta.ErrorType),
		}
	}

	metrics.UntappdRequestsTotal.WithLabelValues(method, "success").Inc()
	return envelope.Response, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(method string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.UntappdRequestsTotal.WithLabelValues(method, "rate_limited").Inc()
		metrics.UntappdRateLimitWaits.Inc()
		return &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		metrics.UntappdRequestsTotal.WithLabelValues(method, "auth_error").Inc()
		return &AuthError{Status: resp.StatusCode}

	default:
		metrics.UntappdRequestsTotal.WithLabelValues(method, "transient").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &TransientError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s returned HTTP %d: %s", method, resp.StatusCode, string(body)),
		}
	}
}

// parseRetryAfter parses a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// parseBeerItem converts one raw user/beers entry into a canonical
// checkin record.
func parseBeerItem(raw json.RawMessage) (models.Checkin, error) {
	var item rawBeerItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.Checkin{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if item.FirstCheckinID == 0 {
		return models.Checkin{}, fmt.Errorf("%w: missing first_checkin_id", ErrParse)
	}

	checkedInAt, err := time.Parse(firstHadLayout, item.FirstHad)
	if err != nil {
		return models.Checkin{}, fmt.Errorf("%w: bad first_had %q", ErrParse, item.FirstHad)
	}

	checkin := models.Checkin{
		ID:             item.FirstCheckinID,
		BeerID:         item.Beer.BID,
		BeerName:       item.Beer.BeerName,
		BeerStyle:      item.Beer.BeerStyle,
		BeerABV:        item.Beer.BeerABV,
		BreweryID:      item.Brewery.BreweryID,
		BreweryName:    item.Brewery.BreweryName,
		BreweryCountry: item.Brewery.CountryName,
		CheckedInAt:    checkedInAt.UTC(),
		Rating:         item.RatingScore,
		Count:          item.Count,
	}

	if venue, ok := parseVenue(item.Venue); ok {
		checkin.VenueID = venue.VenueID
		checkin.VenueName = venue.VenueName
	}

	return checkin, nil
}

// parseVenue handles Untappd's venue quirk: an empty JSON array when no
// venue is attached, an object otherwise.
func parseVenue(raw json.RawMessage) (rawVenue, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return rawVenue{}, false
	}
	var v rawVenue
	if err := json.Unmarshal(raw, &v); err != nil || v.VenueID == 0 {
		return rawVenue{}, false
	}
	return v, true
}
