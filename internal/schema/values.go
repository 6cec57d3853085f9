// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// TimeLayouts are the timestamp formats accepted from sources and returned
// by stores, tried in order.
var TimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses s with the first matching layout in TimeLayouts. Values
// without a zone are taken as UTC. The result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NormalizeValue converts v to the canonical representation for t.
func NormalizeValue(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Geometry:
		return normalizeGeometry(v)
	case Text:
		return normalizeText(v)
	case Numeric:
		return normalizeNumeric(v)
	case Timestamp:
		return normalizeTimestamp(v)
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
}

func normalizeGeometry(v any) (any, error) {
	var raw []byte
	switch g := v.(type) {
	case string:
		raw = []byte(g)
	case []byte:
		raw = g
	case json.RawMessage:
		raw = g
	case map[string]any:
		b, err := json.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encode geometry: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("unsupported geometry value of type %T", v)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("geometry is not GeoJSON: %w", err)
	}
	if probe.Type == "" {
		return nil, errors.New("geometry is missing a GeoJSON type")
	}
	return string(raw), nil
}

func normalizeText(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", s), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("unsupported text value of type %T", v)
	}
}

func normalizeNumeric(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return float64(n), nil
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return float64(n), nil
		}
		return int64(n), nil
	case float32:
		return checkFinite(float64(n))
	case float64:
		return checkFinite(n)
	case json.Number:
		return parseNumber(string(n))
	case string:
		return parseNumber(n)
	default:
		return nil, fmt.Errorf("unsupported numeric value of type %T", v)
	}
}

func checkFinite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("numeric value %v is not finite", f)
	}
	return f, nil
}

func parseNumber(s string) (any, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	return checkFinite(f)
}

func normalizeTimestamp(v any) (any, error) {
	switch ts := v.(type) {
	case time.Time:
		if ts.IsZero() {
			return nil, errors.New("zero timestamp")
		}
		return ts.UTC(), nil
	case string:
		return ParseTime(ts)
	default:
		return nil, fmt.Errorf("unsupported timestamp value of type %T", v)
	}
}
