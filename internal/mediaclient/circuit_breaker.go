// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/metrics"
)

// Ensure CircuitBreakerClient implements MediaClient
var _ MediaClient = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps a MediaClient with circuit breaker pattern.
// 4xx responses count as successes: the server answered, the request was
// wrong. Context cancellation is not counted as a failure either.
//
// DETERMINISM NOTE: The circuit breaker uses real time (via sony/gobreaker) for its
// interval and timeout calculations.
type CircuitBreakerClient struct {
	client MediaClient
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewCircuitBreakerClient wraps client. name labels the breaker metrics.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(client MediaClient, name string) *CircuitBreakerClient {
	if name == "" {
		name = client.ServerType() + "-api"
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening media server circuit")
			}
			return shouldTrip
		},

		IsSuccessful: isBreakerSuccess,

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: name}
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnsupported) {
		return true
	}
	if ce, ok := AsClientError(err); ok && ce.IsClientSide() {
		return true
	}
	return false
}

// execute runs fn through the breaker and type-asserts the result.
func execute[T any](cbc *CircuitBreakerClient, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cbc.cb.Execute(func() (any, error) {
		return fn()
	})

	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Str("breaker", cbc.name).Msg("[CIRCUIT BREAKER] Media server request rejected")
		case isBreakerSuccess(err):
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
		default:
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		}
		return zero, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)

	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to a gauge value
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Unwrap returns the wrapped adapter.
func (cbc *CircuitBreakerClient) Unwrap() MediaClient { return cbc.client }

// State returns the current circuit breaker state
func (cbc *CircuitBreakerClient) State() gobreaker.State { return cbc.cb.State() }

// Counts returns the current circuit breaker counts
func (cbc *CircuitBreakerClient) Counts() gobreaker.Counts { return cbc.cb.Counts() }

// Name returns the circuit breaker name
func (cbc *CircuitBreakerClient) Name() string { return cbc.name }

// ServerType and KeyField make no network calls.
func (cbc *CircuitBreakerClient) ServerType() string { return cbc.client.ServerType() }

func (cbc *CircuitBreakerClient) KeyField() media.KeyField { return cbc.client.KeyField() }

func (cbc *CircuitBreakerClient) Libraries(ctx context.Context) (map[string]string, error) {
	return execute(cbc, func() (map[string]string, error) { return cbc.client.Libraries(ctx) })
}

// ScanLibraries bypasses the breaker: it targets credentials that may not
// belong to the wrapped server at all.
func (cbc *CircuitBreakerClient) ScanLibraries(ctx context.Context, url, token string) (map[string]string, error) {
	return cbc.client.ScanLibraries(ctx, url, token)
}

func (cbc *CircuitBreakerClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	return execute(cbc, func() (string, error) { return cbc.client.CreateUser(ctx, u) })
}

func (cbc *CircuitBreakerClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	_, err := execute(cbc, func() (any, error) { return nil, cbc.client.GrantAccess(ctx, id, grant) })
	return err
}

func (cbc *CircuitBreakerClient) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	_, err := execute(cbc, func() (any, error) { return nil, cbc.client.UpdateUser(ctx, id, patch) })
	return err
}

func (cbc *CircuitBreakerClient) DeleteUser(ctx context.Context, id string) error {
	_, err := execute(cbc, func() (any, error) { return nil, cbc.client.DeleteUser(ctx, id) })
	return err
}

func (cbc *CircuitBreakerClient) EnableUser(ctx context.Context, id string) (bool, error) {
	return execute(cbc, func() (bool, error) { return cbc.client.EnableUser(ctx, id) })
}

func (cbc *CircuitBreakerClient) DisableUser(ctx context.Context, id string) (bool, error) {
	return execute(cbc, func() (bool, error) { return cbc.client.DisableUser(ctx, id) })
}

func (cbc *CircuitBreakerClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	return execute(cbc, func() (map[string]any, error) { return cbc.client.GetUser(ctx, id) })
}

func (cbc *CircuitBreakerClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	return execute(cbc, func() (media.MediaUserDetails, error) { return cbc.client.GetUserDetails(ctx, id) })
}

func (cbc *CircuitBreakerClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	return execute(cbc, func() ([]media.MediaUserDetails, error) { return cbc.client.ListRemoteUsers(ctx) })
}

func (cbc *CircuitBreakerClient) NowPlaying(ctx context.Context) ([]media.Session, error) {
	return execute(cbc, func() ([]media.Session, error) { return cbc.client.NowPlaying(ctx) })
}

func (cbc *CircuitBreakerClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return execute(cbc, func() (media.Statistics, error) { return cbc.client.Statistics(ctx) })
}

func (cbc *CircuitBreakerClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	return execute(cbc, func() (media.Statistics, error) { return cbc.client.ReadonlyStatistics(ctx) })
}
