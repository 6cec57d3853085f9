// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
)

func TestBlocks(t *testing.T) {
	t.Parallel()

	rows := make([]schema.Row, 2501)
	blocks := Blocks(rows, 1000)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	if len(blocks[0]) != 1000 || len(blocks[2]) != 501 {
		t.Errorf("block sizes = %d, %d, %d", len(blocks[0]), len(blocks[1]), len(blocks[2]))
	}
	if len(Blocks(nil, 1000)) != 0 {
		t.Error("expected no blocks for no rows")
	}
	if len(Blocks(make([]schema.Row, 5), 0)) != 1 {
		t.Error("non-positive size should fall back to the default")
	}
}

func TestPredicateValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       Predicate
		wantErr bool
	}{
		{"less", LessThan("acq_time", time.Now()), false},
		{"in", In("cartodb_id", "1", "2"), false},
		{"in empty", In("cartodb_id"), true},
		{"bad column", LessThan("a;drop", 1), true},
		{"less with two values", Predicate{Column: "a", Cmp: CmpLess, Values: []any{1, 2}}, true},
		{"unknown op", Predicate{Column: "a", Cmp: "LIKE", Values: []any{"x"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorFormattingAndHelpers(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := &Error{Op: OpInsertRows, Table: "fires", Status: 503, Message: "unavailable", Retryable: true, RowsWritten: 1000, Err: cause}

	msg := err.Error()
	for _, want := range []string{"insert_rows", "fires", "status 503", "unavailable", "connection reset"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}

	wrapped := errors.Join(errors.New("context"), err)
	if !IsRetryable(wrapped) {
		t.Error("expected wrapped error to be retryable")
	}
	if RowsWritten(wrapped) != 1000 {
		t.Errorf("RowsWritten = %d, want 1000", RowsWritten(wrapped))
	}
	if IsRetryable(cause) {
		t.Error("plain errors are not retryable")
	}

	w := Wrap(OpQueryColumn, "fires", cause)
	var se *Error
	if !errors.As(w, &se) || se.Retryable || se.Op != OpQueryColumn {
		t.Errorf("Wrap() = %#v", w)
	}
	if Wrap(OpQueryColumn, "fires", err) != error(err) {
		t.Error("Wrap must not rewrap *Error")
	}
	if Wrap(OpQueryColumn, "fires", nil) != nil {
		t.Error("Wrap(nil) must be nil")
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	tests := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{int64(42), "42"},
		{1.25, "1.25"},
		{ts, "2024-01-02T02:04:05Z"},
		{[]byte("raw"), "raw"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
