// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package record holds the typed source record and the translator that maps
// it onto a positional schema row.
//
// A Record is what a fetcher yields for one source item. Fields are looked up
// by dotted path so nested source documents (GeoJSON features, API envelopes)
// can be addressed without flattening them first:
//
//	r.Get("properties.acq_date")
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// ErrFieldMissing is returned when a required field is absent or null.
var ErrFieldMissing = errors.New("field missing")

// Record is one item produced by a source.
type Record map[string]any

// Get resolves a dotted path. A path segment that addresses a non-object
// value, or a key that is absent, yields ok=false.
func (r Record) Get(path string) (any, bool) {
	if v, ok := r[path]; ok {
		return v, true
	}

	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

// String returns the field at path formatted as a string. Numbers are
// rendered without exponent so they can form stable keys.
func (r Record) String(path string) (string, error) {
	v, ok := r.Get(path)
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrFieldMissing, path)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case bool:
		return strconv.FormatBool(s), nil
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("field %s: cannot format %T as string", path, v)
	}
}

// Float returns the numeric field at path.
func (r Record) Float(path string) (float64, error) {
	v, ok := r.Get(path)
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrFieldMissing, path)
	}
	n, err := schema.NormalizeValue(schema.Numeric, v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", path, err)
	}
	switch f := n.(type) {
	case int64:
		return float64(f), nil
	case float64:
		return f, nil
	}
	return 0, fmt.Errorf("field %s: not numeric", path)
}

// Time returns the timestamp field at path in UTC.
func (r Record) Time(path string) (time.Time, error) {
	v, ok := r.Get(path)
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrFieldMissing, path)
	}
	ts, err := schema.NormalizeValue(schema.Timestamp, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", path, err)
	}
	return ts.(time.Time), nil
}
