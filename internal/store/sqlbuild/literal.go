// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// Quote renders s as a single-quoted SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Literal renders a value of column type t as an SQL literal after
// normalizing it.
func (d Dialect) Literal(t schema.ColumnType, v any) (string, error) {
	nv, err := schema.NormalizeValue(t, v)
	if err != nil {
		return "", err
	}
	if nv == nil {
		return "NULL", nil
	}
	switch t {
	case schema.Geometry:
		return d.GeometryExpr(Quote(nv.(string))), nil
	case schema.Text:
		return Quote(nv.(string)), nil
	case schema.Timestamp:
		return Quote(nv.(time.Time).UTC().Format(TimeLayout)), nil
	case schema.Numeric:
		return numericLiteral(nv)
	}
	return "", fmt.Errorf("unknown column type %q", t)
}

func numericLiteral(v any) (string, error) {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("not a numeric value: %T", v)
}

// inferType picks the column type for an untyped predicate value.
func inferType(v any) schema.ColumnType {
	switch v.(type) {
	case time.Time:
		return schema.Timestamp
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return schema.Numeric
	}
	return schema.Text
}
