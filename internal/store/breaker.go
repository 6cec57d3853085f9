// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/metrics"
	"github.com/tomtom215/nrtsync/internal/schema"
)

// BreakerSettings configures WithCircuitBreaker.
type BreakerSettings struct {
	// MaxRequests allowed while half-open.
	MaxRequests uint32
	// Interval after which closed-state counts reset.
	Interval time.Duration
	// Timeout before an open breaker moves to half-open.
	Timeout time.Duration
	// MinRequests before the failure ratio is considered.
	MinRequests uint32
	// FailureRatio at or above which the breaker opens.
	FailureRatio float64
}

// DefaultBreakerSettings opens after a 60% failure rate over at least ten
// requests and probes again after two minutes.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

type breakerStore struct {
	next Store
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// WithCircuitBreaker wraps s in a circuit breaker named name. Only retryable
// failures count against the breaker; a rejected statement proves the store
// is reachable. While open, calls fail fast with a non-retryable *Error.
func WithCircuitBreaker(s Store, name string, settings BreakerSettings) Store {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= settings.FailureRatio {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).Msg("Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	})

	return &breakerStore{next: s, name: name, cb: cb}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the current breaker state.
func (b *breakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *breakerStore) execute(op, table string, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, &Error{Op: op, Table: table, Message: "circuit breaker " + b.name + " is open", Err: err}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.cb.Counts().ConsecutiveFailures))
		return result, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

func (b *breakerStore) TableExists(ctx context.Context, table string) (bool, error) {
	res, err := b.execute(OpTableExists, table, func() (any, error) {
		return b.next.TableExists(ctx, table)
	})
	if err != nil {
		return false, err
	}
	exists, _ := res.(bool)
	return exists, nil
}

func (b *breakerStore) CreateTable(ctx context.Context, table string, s *schema.Schema) error {
	_, err := b.execute(OpCreateTable, table, func() (any, error) {
		return nil, b.next.CreateTable(ctx, table, s)
	})
	return err
}

func (b *breakerStore) CreateIndex(ctx context.Context, table string, columns []string, unique bool) error {
	_, err := b.execute(OpCreateIndex, table, func() (any, error) {
		return nil, b.next.CreateIndex(ctx, table, columns, unique)
	})
	return err
}

func (b *breakerStore) QueryColumn(ctx context.Context, table, column string, order *Order) ([]string, error) {
	res, err := b.execute(OpQueryColumn, table, func() (any, error) {
		return b.next.QueryColumn(ctx, table, column, order)
	})
	if err != nil {
		return nil, err
	}
	values, _ := res.([]string)
	return values, nil
}

func (b *breakerStore) InsertRows(ctx context.Context, table string, s *schema.Schema, rows []schema.Row) error {
	_, err := b.execute(OpInsertRows, table, func() (any, error) {
		return nil, b.next.InsertRows(ctx, table, s, rows)
	})
	return err
}

func (b *breakerStore) DeleteWhere(ctx context.Context, table string, p Predicate) (int, error) {
	res, err := b.execute(OpDeleteWhere, table, func() (any, error) {
		return b.next.DeleteWhere(ctx, table, p)
	})
	n, _ := res.(int)
	return n, err
}

func (b *breakerStore) RowIDColumn() string {
	return b.next.RowIDColumn()
}
