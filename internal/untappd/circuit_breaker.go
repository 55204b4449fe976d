// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package untappd

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/meadstats/meadstats/internal/logging"
	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
)

// CircuitBreakerClient wraps a Client with a circuit breaker so a down
// or degraded Untappd API cannot tie up every sync run in retries.
//
// Only transient failures count against the breaker: rate limits and
// auth rejections are well-defined API answers, not signs of an
// unhealthy upstream.
type CircuitBreakerClient struct {
	client *Client
	pages  *gobreaker.CircuitBreaker[*Page]
	users  *gobreaker.CircuitBreaker[*models.User]
}

var _ Source = (*CircuitBreakerClient)(nil)

const breakerName = "untappd-api"

// NewCircuitBreakerClient wraps the client with a shared breaker
// policy: opens at a 60% failure rate over at least 10 requests, waits
// two minutes before probing half-open.
func NewCircuitBreakerClient(client *Client) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var tr *TransientError
			return !errors.As(err, &tr)
		},
	}

	return &CircuitBreakerClient{
		client: client,
		pages:  gobreaker.NewCircuitBreaker[*Page](settings),
		users:  gobreaker.NewCircuitBreaker[*models.User](settings),
	}
}

// FetchPage delegates to the wrapped client under breaker protection.
func (c *CircuitBreakerClient) FetchPage(ctx context.Context, token string, cursor Cursor, pageSize int) (*Page, error) {
	page, err := c.pages.Execute(func() (*Page, error) {
		return c.client.FetchPage(ctx, token, cursor, pageSize)
	})
	return page, translateBreakerErr(err)
}

// UserInfo delegates to the wrapped client under breaker protection.
func (c *CircuitBreakerClient) UserInfo(ctx context.Context, token string) (*models.User, error) {
	user, err := c.users.Execute(func() (*models.User, error) {
		return c.client.UserInfo(ctx, token)
	})
	return user, translateBreakerErr(err)
}

// translateBreakerErr maps breaker-open rejections into the transient
// taxonomy so the coordinator's bounded retry applies.
func translateBreakerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &TransientError{Err: err}
	}
	return err
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
