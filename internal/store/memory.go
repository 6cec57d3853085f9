// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// MemoryRowIDColumn is the internal row identifier column of Memory tables.
const MemoryRowIDColumn = "_row_id"

type memTable struct {
	schema  *schema.Schema
	rows    []memRow
	nextID  int64
	uniques [][]int
}

type memRow struct {
	id     int64
	values schema.Row
}

// Memory is a Store held entirely in process memory. Unique indexes are
// enforced. Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	tables    map[string]*memTable
	batchSize int

	// BeforeBlock, when set, is called before each insert block is applied.
	// Returning an error fails that block. Used to simulate failures.
	BeforeBlock func(table string, block int) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable), batchSize: DefaultBatchSize}
}

// SetBatchSize overrides the insert block size.
func (m *Memory) SetBatchSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.batchSize = n
	}
}

func (m *Memory) RowIDColumn() string {
	return MemoryRowIDColumn
}

func (m *Memory) TableExists(_ context.Context, table string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[strings.ToLower(table)]
	return ok, nil
}

func (m *Memory) CreateTable(_ context.Context, table string, s *schema.Schema) error {
	if !schema.ValidIdentifier(table) {
		return &Error{Op: OpCreateTable, Table: table, Message: "invalid table name"}
	}
	if _, clash := s.Index(MemoryRowIDColumn); clash {
		return &Error{Op: OpCreateTable, Table: table, Message: "column " + MemoryRowIDColumn + " is reserved"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(table)
	if _, ok := m.tables[key]; ok {
		return &Error{Op: OpCreateTable, Table: table, Message: "table already exists"}
	}
	m.tables[key] = &memTable{schema: s, nextID: 1}
	return nil
}

func (m *Memory) table(op, name string) (*memTable, error) {
	t, ok := m.tables[strings.ToLower(name)]
	if !ok {
		return nil, &Error{Op: op, Table: name, Message: "table does not exist"}
	}
	return t, nil
}

func (m *Memory) CreateIndex(_ context.Context, table string, columns []string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(OpCreateIndex, table)
	if err != nil {
		return err
	}
	idx := make([]int, len(columns))
	for i, col := range columns {
		pos, ok := t.schema.Index(col)
		if !ok {
			return &Error{Op: OpCreateIndex, Table: table, Message: fmt.Sprintf("unknown column %q", col)}
		}
		idx[i] = pos
	}
	if unique {
		seen := make(map[string]struct{}, len(t.rows))
		for _, r := range t.rows {
			k := uniqueKey(r.values, idx)
			if _, dup := seen[k]; dup {
				return &Error{Op: OpCreateIndex, Table: table, Message: "existing rows violate unique index"}
			}
			seen[k] = struct{}{}
		}
		t.uniques = append(t.uniques, idx)
	}
	return nil
}

func uniqueKey(values schema.Row, idx []int) string {
	parts := make([]string, len(idx))
	for i, p := range idx {
		parts[i] = FormatValue(values[p])
	}
	return strings.Join(parts, "\x00")
}

// column returns the accessor for a column name, including the row id.
func (t *memTable) column(name string) (func(memRow) any, bool) {
	if strings.EqualFold(name, MemoryRowIDColumn) {
		return func(r memRow) any { return r.id }, true
	}
	pos, ok := t.schema.Index(name)
	if !ok {
		return nil, false
	}
	return func(r memRow) any { return r.values[pos] }, true
}

func (m *Memory) QueryColumn(_ context.Context, table, column string, order *Order) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.table(OpQueryColumn, table)
	if err != nil {
		return nil, err
	}
	get, ok := t.column(column)
	if !ok {
		return nil, &Error{Op: OpQueryColumn, Table: table, Message: fmt.Sprintf("unknown column %q", column)}
	}

	rows := make([]memRow, len(t.rows))
	copy(rows, t.rows)
	if order != nil {
		key, ok := t.column(order.Column)
		if !ok {
			return nil, &Error{Op: OpQueryColumn, Table: table, Message: fmt.Sprintf("unknown order column %q", order.Column)}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := key(rows[i]), key(rows[j])
			// NULLs sort last in both directions.
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			}
			if order.Desc {
				return compareValues(b, a) < 0
			}
			return compareValues(a, b) < 0
		})
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if v := get(r); v != nil {
			out = append(out, FormatValue(v))
		}
	}
	return out, nil
}

func (m *Memory) InsertRows(_ context.Context, table string, s *schema.Schema, rows []schema.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(OpInsertRows, table)
	if err != nil {
		return err
	}
	if s.Len() != t.schema.Len() {
		return &Error{Op: OpInsertRows, Table: table, Message: "schema does not match table"}
	}

	written := 0
	for n, block := range Blocks(rows, m.batchSize) {
		if m.BeforeBlock != nil {
			if err := m.BeforeBlock(table, n); err != nil {
				return &Error{Op: OpInsertRows, Table: table, RowsWritten: written, Err: err}
			}
		}
		if err := t.insertBlock(block); err != nil {
			return &Error{Op: OpInsertRows, Table: table, RowsWritten: written, Message: err.Error()}
		}
		written += len(block)
	}
	return nil
}

// insertBlock applies all rows of block or none of them.
func (t *memTable) insertBlock(block []schema.Row) error {
	normalized := make([]schema.Row, len(block))
	for i, row := range block {
		r, err := t.schema.Normalize(row)
		if err != nil {
			return err
		}
		normalized[i] = r
	}

	for _, idx := range t.uniques {
		seen := make(map[string]struct{}, len(t.rows)+len(block))
		for _, r := range t.rows {
			seen[uniqueKey(r.values, idx)] = struct{}{}
		}
		for _, r := range normalized {
			k := uniqueKey(r, idx)
			if _, dup := seen[k]; dup {
				return fmt.Errorf("duplicate key violates unique index: %q", strings.ReplaceAll(k, "\x00", ","))
			}
			seen[k] = struct{}{}
		}
	}

	for _, r := range normalized {
		t.rows = append(t.rows, memRow{id: t.nextID, values: r})
		t.nextID++
	}
	return nil
}

func (m *Memory) DeleteWhere(_ context.Context, table string, p Predicate) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, &Error{Op: OpDeleteWhere, Table: table, Message: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(OpDeleteWhere, table)
	if err != nil {
		return 0, err
	}
	get, ok := t.column(p.Column)
	if !ok {
		return 0, &Error{Op: OpDeleteWhere, Table: table, Message: fmt.Sprintf("unknown column %q", p.Column)}
	}

	match, err := t.matcher(p)
	if err != nil {
		return 0, &Error{Op: OpDeleteWhere, Table: table, Message: err.Error()}
	}

	kept := t.rows[:0]
	deleted := 0
	for _, r := range t.rows {
		if match(get(r)) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return deleted, nil
}

func (t *memTable) matcher(p Predicate) (func(any) bool, error) {
	switch p.Cmp {
	case CmpLess:
		bound := p.Values[0]
		if ts, ok := bound.(time.Time); ok {
			bound = ts.UTC()
		}
		return func(v any) bool {
			return v != nil && compareValues(v, bound) < 0
		}, nil
	case CmpIn:
		set := make(map[string]struct{}, len(p.Values))
		for _, v := range p.Values {
			set[FormatValue(v)] = struct{}{}
		}
		return func(v any) bool {
			if v == nil {
				return false
			}
			_, ok := set[FormatValue(v)]
			return ok
		}, nil
	}
	return nil, fmt.Errorf("unknown comparison %q", p.Cmp)
}

// Rows returns a copy of the table contents in insertion order. Intended
// for tests and inspection.
func (m *Memory) Rows(table string) []schema.Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[strings.ToLower(table)]
	if !ok {
		return nil
	}
	out := make([]schema.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = append(schema.Row(nil), r.values...)
	}
	return out
}

// compareValues orders canonical values. Mixed kinds fall back to their
// string form.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := asTime(b); ok {
			return x.Compare(y)
		}
	case int64:
		if y, ok := asFloat(b); ok {
			return compareFloat(float64(x), y)
		}
	case float64:
		if y, ok := asFloat(b); ok {
			return compareFloat(x, y)
		}
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		ts, err := schema.ParseTime(t)
		return ts, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
