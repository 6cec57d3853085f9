// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package schema defines the table model shared by the sync engine and every
// store backend: an ordered list of typed columns and the positional rows
// that conform to it.
//
// A Schema is immutable once constructed. Column order is significant: a Row
// is a positional slice whose i-th value belongs to the i-th column, and the
// store writes columns in exactly that order.
//
// Values are normalized before they reach a store (see Normalize):
//
//	geometry  -> GeoJSON text (string)
//	text      -> string
//	numeric   -> int64 or float64
//	timestamp -> time.Time in UTC
//
// nil is NULL for every type.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ColumnType is the closed set of column types a table may declare.
type ColumnType string

const (
	Geometry  ColumnType = "geometry"
	Text      ColumnType = "text"
	Numeric   ColumnType = "numeric"
	Timestamp ColumnType = "timestamp"
)

// Valid reports whether t is one of the supported column types.
func (t ColumnType) Valid() bool {
	switch t {
	case Geometry, Text, Numeric, Timestamp:
		return true
	}
	return false
}

// ParseColumnType converts a configuration string to a ColumnType.
func ParseColumnType(s string) (ColumnType, error) {
	t := ColumnType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown column type %q (expected geometry, text, numeric or timestamp)", s)
	}
	return t, nil
}

// Column is a single named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Row is a positional list of values matching a Schema.
type Row []any

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// maxIdentifierLength matches the PostgreSQL identifier limit.
const maxIdentifierLength = 63

// ValidIdentifier reports whether name is safe to use unquoted as a table or
// column identifier.
func ValidIdentifier(name string) bool {
	return len(name) <= maxIdentifierLength && identifierPattern.MatchString(name)
}

// Schema is an ordered, immutable list of columns.
type Schema struct {
	columns []Column
	index   map[string]int
}

// New builds a Schema. Column names must be valid identifiers and unique
// (case-insensitively, since the backing stores fold case).
func New(columns ...Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("schema must declare at least one column")
	}

	s := &Schema{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if !ValidIdentifier(col.Name) {
			return nil, fmt.Errorf("invalid column name %q", col.Name)
		}
		if !col.Type.Valid() {
			return nil, fmt.Errorf("column %q: unknown type %q", col.Name, col.Type)
		}
		key := strings.ToLower(col.Name)
		if _, dup := s.index[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		s.columns[i] = col
		s.index[key] = i
	}
	return s, nil
}

// MustNew is like New but panics on error. Intended for tests and fixed schemas.
func MustNew(columns ...Column) *Schema {
	s, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.columns)
}

// Columns returns a copy of the ordered column list.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Column returns the i-th column.
func (s *Schema) Column(i int) Column {
	return s.columns[i]
}

// Names returns the ordered column names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[strings.ToLower(name)]
	return i, ok
}

// Lookup returns the named column.
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.Index(name)
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Normalize validates row against the schema and returns a new row holding
// the canonical value for every column. The input row is not modified.
func (s *Schema) Normalize(row Row) (Row, error) {
	if len(row) != len(s.columns) {
		return nil, &MismatchError{
			Column: "",
			Index:  -1,
			Reason: fmt.Sprintf("row has %d values, schema has %d columns", len(row), len(s.columns)),
		}
	}

	out := make(Row, len(row))
	for i, col := range s.columns {
		v, err := NormalizeValue(col.Type, row[i])
		if err != nil {
			return nil, &MismatchError{Column: col.Name, Index: i, Reason: err.Error()}
		}
		out[i] = v
	}
	return out, nil
}

// MismatchError reports a row that does not conform to its schema. The sync
// engine rejects such rows individually and continues with the batch.
type MismatchError struct {
	Column string
	Index  int
	Reason string
}

func (e *MismatchError) Error() string {
	if e.Column == "" {
		return "schema mismatch: " + e.Reason
	}
	return fmt.Sprintf("schema mismatch in column %q: %s", e.Column, e.Reason)
}
