// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package schema

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		Column{Name: "the_geom", Type: Geometry},
		Column{Name: "uid", Type: Text},
		Column{Name: "brightness", Type: Numeric},
		Column{Name: "acq_time", Type: Timestamp},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNewRejectsInvalidColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cols []Column
	}{
		{"empty", nil},
		{"bad identifier", []Column{{Name: "drop table", Type: Text}}},
		{"leading digit", []Column{{Name: "1col", Type: Text}}},
		{"unknown type", []Column{{Name: "a", Type: "blob"}}},
		{"duplicate case-insensitive", []Column{{Name: "a", Type: Text}, {Name: "A", Type: Numeric}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.cols...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSchemaLookup(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if i, ok := s.Index("ACQ_TIME"); !ok || i != 3 {
		t.Errorf("Index(ACQ_TIME) = %d, %v", i, ok)
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Error("expected missing column lookup to fail")
	}
	names := s.Names()
	names[0] = "mutated"
	if s.Column(0).Name != "the_geom" {
		t.Error("Names() must return a copy")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	geom := map[string]any{"type": "Point", "coordinates": []any{1.5, 2.5}}
	row := Row{geom, "abc", "12.5", "2024-03-01T10:00:00+02:00"}

	out, err := s.Normalize(row)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out[0].(string)), &decoded); err != nil {
		t.Fatalf("geometry not JSON: %v", err)
	}
	if decoded["type"] != "Point" {
		t.Errorf("geometry type = %v", decoded["type"])
	}
	if out[2] != 12.5 {
		t.Errorf("numeric = %v (%T)", out[2], out[2])
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if ts, ok := out[3].(time.Time); !ok || !ts.Equal(want) || ts.Location() != time.UTC {
		t.Errorf("timestamp = %v", out[3])
	}
	if _, ok := row[0].(map[string]any); !ok {
		t.Error("input row must not be modified")
	}
}

func TestNormalizeNulls(t *testing.T) {
	t.Parallel()

	out, err := testSchema(t).Normalize(Row{nil, nil, nil, nil})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for i, v := range out {
		if v != nil {
			t.Errorf("column %d = %v, want nil", i, v)
		}
	}
}

func TestNormalizeMismatch(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	tests := []struct {
		name   string
		row    Row
		column string
	}{
		{"short row", Row{nil}, ""},
		{"geometry not json", Row{"POINT(1 2)", "a", 1, nil}, "the_geom"},
		{"geometry without type", Row{`{"coordinates":[1,2]}`, "a", 1, nil}, "the_geom"},
		{"numeric word", Row{nil, "a", "twelve", nil}, "brightness"},
		{"numeric NaN", Row{nil, "a", math.NaN(), nil}, "brightness"},
		{"bad timestamp", Row{nil, "a", 1, "yesterday"}, "acq_time"},
		{"text from map", Row{nil, map[string]any{}, 1, nil}, "uid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Normalize(tt.row)
			var mm *MismatchError
			if !errors.As(err, &mm) {
				t.Fatalf("expected MismatchError, got %v", err)
			}
			if mm.Column != tt.column {
				t.Errorf("Column = %q, want %q", mm.Column, tt.column)
			}
		})
	}
}

func TestNormalizeNumericKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want any
	}{
		{int32(7), int64(7)},
		{uint16(9), int64(9)},
		{json.Number("42"), int64(42)},
		{json.Number("4.2e1"), 42.0},
		{" -3 ", int64(-3)},
		{float32(0.5), 0.5},
	}
	for _, tt := range tests {
		got, err := NormalizeValue(Numeric, tt.in)
		if err != nil {
			t.Errorf("NormalizeValue(%v) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeValue(%v) = %v (%T), want %v", tt.in, got, got, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, in := range []string{
		"2024-01-02T03:04:05Z",
		"2024-01-02T03:04:05",
		"2024-01-02 03:04:05",
		"2024-01-02 03:04:05+00",
		"2024-01-02T05:04:05+02:00",
	} {
		got, err := ParseTime(in)
		if err != nil {
			t.Errorf("ParseTime(%q) error = %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTime(""); err == nil {
		t.Error("expected error for empty timestamp")
	}
}

func TestParseColumnType(t *testing.T) {
	t.Parallel()

	if ct, err := ParseColumnType(" Geometry "); err != nil || ct != Geometry {
		t.Errorf("ParseColumnType = %v, %v", ct, err)
	}
	if _, err := ParseColumnType("jsonb"); err == nil {
		t.Error("expected error for unsupported type")
	}
}
