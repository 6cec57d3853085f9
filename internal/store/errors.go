// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operation names used in errors and metrics.
const (
	OpTableExists = "table_exists"
	OpCreateTable = "create_table"
	OpCreateIndex = "create_index"
	OpQueryColumn = "query_column"
	OpInsertRows  = "insert_rows"
	OpDeleteWhere = "delete_where"
)

// Error is a failed store operation.
type Error struct {
	Op      string
	Table   string
	Status  int // transport status code, 0 when not applicable
	Message string

	// Retryable marks failures that can be repeated without side effects.
	Retryable bool

	// RetryAfter is the server's requested wait before a retry, if any.
	RetryAfter time.Duration

	// RowsWritten is the number of rows durably inserted before an
	// InsertRows failure.
	RowsWritten int

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("store ")
	b.WriteString(e.Op)
	if e.Table != "" {
		b.WriteString(" ")
		b.WriteString(e.Table)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a retryable store failure.
func IsRetryable(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Retryable
}

// retryAfter extracts the server-requested retry delay from err.
func retryAfter(err error) time.Duration {
	var se *Error
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// RowsWritten extracts the partial-insert row count from err.
func RowsWritten(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.RowsWritten
	}
	return 0
}

// Wrap converts any error into a non-retryable *Error for op, leaving an
// existing *Error untouched.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Table: table, Err: err}
}
