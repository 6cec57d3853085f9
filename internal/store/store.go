// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package store defines the contract between the sync engine and the
// persistent tabular store, plus the decorators that apply the retry policy
// and circuit breaker at that boundary.
//
// Backends live in subpackages (carto, sqlstore). Memory is an in-process
// implementation for tests and dry runs.
//
// Every backend failure is reported as *Error. Callers decide what to do
// by inspecting it with errors.As, typically through IsRetryable.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// DefaultBatchSize is the maximum number of rows sent in one insert statement.
const DefaultBatchSize = 1000

// Store is a persistent tabular store.
type Store interface {
	// TableExists reports whether table has been created.
	TableExists(ctx context.Context, table string) (bool, error)

	// CreateTable creates table with the given schema and runs the backend's
	// finalize step. A table that has not been finalized is not usable.
	CreateTable(ctx context.Context, table string, s *schema.Schema) error

	// CreateIndex creates an index on columns of table.
	CreateIndex(ctx context.Context, table string, columns []string, unique bool) error

	// QueryColumn returns every non-NULL value of column in the requested
	// order. Values are not deduplicated.
	QueryColumn(ctx context.Context, table, column string, order *Order) ([]string, error)

	// InsertRows appends rows in blocks of the backend's batch size. A failed
	// block aborts the remaining blocks; the returned *Error reports how many
	// rows were written before it.
	InsertRows(ctx context.Context, table string, s *schema.Schema, rows []schema.Row) error

	// DeleteWhere removes the rows matching p and returns how many were removed.
	DeleteWhere(ctx context.Context, table string, p Predicate) (int, error)

	// RowIDColumn names the backend's internal row identifier column.
	RowIDColumn() string
}

// Order is a single-column sort. Descending sorts place NULLs last.
type Order struct {
	Column string
	Desc   bool
}

// Comparison is the operator of a Predicate.
type Comparison string

const (
	CmpLess Comparison = "<"
	CmpIn   Comparison = "IN"
)

// Predicate is a typed single-column filter. Backends render it as a
// parameterised condition; it is never a raw SQL fragment.
type Predicate struct {
	Column string
	Cmp    Comparison
	Values []any
}

// LessThan matches rows whose column is strictly less than v.
func LessThan(column string, v any) Predicate {
	return Predicate{Column: column, Cmp: CmpLess, Values: []any{v}}
}

// In matches rows whose column equals one of values.
func In(column string, values ...any) Predicate {
	return Predicate{Column: column, Cmp: CmpIn, Values: values}
}

// Validate checks the predicate is well formed.
func (p Predicate) Validate() error {
	if !schema.ValidIdentifier(p.Column) {
		return fmt.Errorf("invalid predicate column %q", p.Column)
	}
	switch p.Cmp {
	case CmpLess:
		if len(p.Values) != 1 {
			return fmt.Errorf("%s predicate takes exactly one value, got %d", p.Cmp, len(p.Values))
		}
	case CmpIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("%s predicate requires at least one value", p.Cmp)
		}
	default:
		return fmt.Errorf("unknown comparison %q", p.Cmp)
	}
	return nil
}

// Blocks splits rows into consecutive slices of at most size rows.
func Blocks(rows []schema.Row, size int) [][]schema.Row {
	if size <= 0 {
		size = DefaultBatchSize
	}
	blocks := make([][]schema.Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		blocks = append(blocks, rows[start:end])
	}
	return blocks
}

// FormatValue renders a stored value the way QueryColumn reports it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
