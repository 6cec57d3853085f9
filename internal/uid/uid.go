// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package uid derives the stable unique identifier that deduplicates source
// records across sync runs.
//
// A Strategy must be pure: the same logical record always yields the same
// UID. Natural keys are only as stable as the fields they are built from; if
// a source rewrites a key field between publications the record will be
// inserted again under its new UID, and nothing here can detect that.
package uid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/nrtsync/internal/record"
)

// Strategy computes the UID of a record.
type Strategy func(r record.Record) (string, error)

// Kind names a built-in strategy in configuration.
type Kind string

const (
	KindNaturalKey  Kind = "natural_key"
	KindDecimalDate Kind = "decimal_date"
	KindContentHash Kind = "content_hash"
)

// DefaultSeparator joins key parts.
const DefaultSeparator = "_"

// decimalDatePrecision is the number of fractional digits in a decimal year.
// Six digits resolve to roughly 30 seconds.
const decimalDatePrecision = 6

// NaturalKey joins the string form of fields with sep. Every field must be
// present and non-empty.
func NaturalKey(sep string, fields ...string) Strategy {
	return func(r record.Record) (string, error) {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			s, err := r.String(f)
			if err != nil {
				return "", err
			}
			if s == "" {
				return "", fmt.Errorf("%w: %s is empty", record.ErrFieldMissing, f)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, sep), nil
	}
}

// DecimalDate renders timeField as a fractional year (2024.123456) and
// appends the key fields, joined with sep.
func DecimalDate(sep, timeField string, keyFields ...string) Strategy {
	key := NaturalKey(sep, keyFields...)
	return func(r record.Record) (string, error) {
		ts, err := r.Time(timeField)
		if err != nil {
			return "", err
		}
		dd := strings.TrimRight(strings.TrimRight(
			fmt.Sprintf("%.*f", decimalDatePrecision, DecimalYear(ts)), "0"), ".")
		if len(keyFields) == 0 {
			return dd, nil
		}
		k, err := key(r)
		if err != nil {
			return "", err
		}
		return dd + sep + k, nil
	}
}

// DecimalYear converts t to a fractional year in UTC.
func DecimalYear(t time.Time) float64 {
	t = t.UTC()
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	return float64(t.Year()) + float64(t.Sub(start))/float64(end.Sub(start))
}

// ContentHash hashes the canonical JSON of the selected fields (or of the
// whole record when fields is empty) with SHA-256. Object keys are sorted by
// the encoder so field order in the source does not matter.
func ContentHash(fields ...string) Strategy {
	return func(r record.Record) (string, error) {
		var subject any = map[string]any(r)
		if len(fields) > 0 {
			sel := make(map[string]any, len(fields))
			for _, f := range fields {
				v, ok := r.Get(f)
				if !ok {
					return "", fmt.Errorf("%w: %s", record.ErrFieldMissing, f)
				}
				sel[f] = v
			}
			subject = sel
		}
		b, err := json.Marshal(subject)
		if err != nil {
			return "", fmt.Errorf("encode record for hashing: %w", err)
		}
		sum := sha256.Sum256(b)
		return hex.EncodeToString(sum[:]), nil
	}
}

// Spec is the configuration form of a strategy.
type Spec struct {
	Kind      Kind
	Fields    []string
	Separator string
	TimeField string
}

// FromSpec builds the strategy described by spec.
func FromSpec(spec Spec) (Strategy, error) {
	sep := spec.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	switch spec.Kind {
	case KindNaturalKey:
		if len(spec.Fields) == 0 {
			return nil, errors.New("natural_key strategy requires at least one field")
		}
		return NaturalKey(sep, spec.Fields...), nil
	case KindDecimalDate:
		if spec.TimeField == "" {
			return nil, errors.New("decimal_date strategy requires time_field")
		}
		return DecimalDate(sep, spec.TimeField, spec.Fields...), nil
	case KindContentHash:
		return ContentHash(spec.Fields...), nil
	default:
		return nil, fmt.Errorf("unknown uid strategy %q", spec.Kind)
	}
}
