// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package untappd

import (
	"errors"
	"fmt"
	"time"
)

// The client classifies every failure into one of these kinds so the
// sync coordinator can decide between retry, backoff, and abort without
// inspecting HTTP details.

// RateLimitedError signals HTTP 429. RetryAfter is taken from the
// Retry-After header when present, zero otherwise.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("untappd: rate limited, retry after %s", e.RetryAfter)
	}
	return "untappd: rate limited"
}

// TransientError signals a retryable failure: HTTP 5xx, network errors,
// or an unreadable response.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("untappd: transient failure (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("untappd: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError signals HTTP 401/403: the stored credential is invalid and
// the run must not be retried until the user re-authenticates.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("untappd: authentication rejected (HTTP %d)", e.Status)
}

// ErrParse marks a malformed record that was skipped. Record-level
// parse failures never fail a whole page; the client counts them and
// continues.
var ErrParse = errors.New("untappd: malformed record skipped")

// IsRetryable reports whether the error is worth retrying within a
// sync run (rate limits and transient failures).
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	var tr *TransientError
	return errors.As(err, &rl) || errors.As(err, &tr)
}
