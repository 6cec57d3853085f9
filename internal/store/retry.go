// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/metrics"
	"github.com/tomtom215/nrtsync/internal/schema"
)

// RetryPolicy configures exponential backoff at the store boundary. This is
// the only place store operations are retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay > 0 && p.InitialDelay > p.MaxDelay {
		p.InitialDelay = p.MaxDelay
	}
	return p
}

// Backoff returns the delay before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

type retryStore struct {
	next   Store
	policy RetryPolicy
}

// WithRetry wraps s so that retryable failures are repeated according to
// policy. Non-retryable failures are returned immediately. For InsertRows,
// rows reported as written by a failed attempt are not sent again.
func WithRetry(s Store, policy RetryPolicy) Store {
	return &retryStore{next: s, policy: policy.normalized()}
}

// do runs fn until it succeeds, fails permanently, or attempts run out. The
// wait between attempts is cancellable through ctx.
func (r *retryStore) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}

		if attempt < r.policy.MaxAttempts {
			delay := r.policy.Backoff(attempt)
			if ra := retryAfter(err); ra > delay {
				delay = ra
			}
			metrics.StoreRetries.WithLabelValues(op).Inc()
			logging.Warn().Err(err).Str("op", op).Int("attempt", attempt).
				Int("max_attempts", r.policy.MaxAttempts).Dur("delay", delay).Msg("Retrying store operation")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("max retry attempts reached: %w", err)
}

func (r *retryStore) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.do(ctx, OpTableExists, func() error {
		var err error
		exists, err = r.next.TableExists(ctx, table)
		return err
	})
	return exists, err
}

func (r *retryStore) CreateTable(ctx context.Context, table string, s *schema.Schema) error {
	return r.do(ctx, OpCreateTable, func() error {
		return r.next.CreateTable(ctx, table, s)
	})
}

func (r *retryStore) CreateIndex(ctx context.Context, table string, columns []string, unique bool) error {
	return r.do(ctx, OpCreateIndex, func() error {
		return r.next.CreateIndex(ctx, table, columns, unique)
	})
}

func (r *retryStore) QueryColumn(ctx context.Context, table, column string, order *Order) ([]string, error) {
	var values []string
	err := r.do(ctx, OpQueryColumn, func() error {
		var err error
		values, err = r.next.QueryColumn(ctx, table, column, order)
		return err
	})
	return values, err
}

func (r *retryStore) InsertRows(ctx context.Context, table string, s *schema.Schema, rows []schema.Row) error {
	written := 0
	err := r.do(ctx, OpInsertRows, func() error {
		err := r.next.InsertRows(ctx, table, s, rows[written:])
		if err != nil {
			written += RowsWritten(err)
		}
		return err
	})
	if err != nil {
		// Report the total across attempts, not just the last one.
		var se *Error
		if errors.As(err, &se) {
			se.RowsWritten = written
			return err
		}
		// Cancelled between attempts: keep the partial count.
		return &Error{Op: OpInsertRows, Table: table, RowsWritten: written, Message: "insert interrupted", Err: err}
	}
	return nil
}

func (r *retryStore) DeleteWhere(ctx context.Context, table string, p Predicate) (int, error) {
	var n int
	err := r.do(ctx, OpDeleteWhere, func() error {
		var err error
		n, err = r.next.DeleteWhere(ctx, table, p)
		return err
	})
	return n, err
}

func (r *retryStore) RowIDColumn() string {
	return r.next.RowIDColumn()
}
