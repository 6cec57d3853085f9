// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package sqlbuild renders the statements every SQL-speaking store backend
// needs from typed inputs: validated identifiers, schema-typed values and
// structured predicates. Callers never concatenate SQL themselves.
//
// Two binding modes exist. Bind mode emits placeholders and an argument list
// for database/sql drivers. Inline mode renders every value as an escaped
// literal, for transports that accept statement text only (the Carto SQL
// API). Both modes share the same per-type rules:
//
//	nil        NULL
//	geometry   GeoJSON, wrapped in the dialect's geometry constructor
//	text       single-quoted, embedded quotes doubled
//	timestamp  single-quoted UTC timestamp
//	numeric    verified number, written verbatim
package sqlbuild

import (
	"fmt"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Name string

	// Types maps column types to the backend's DDL type names.
	Types map[schema.ColumnType]string

	// RowID is the internal row identifier column. When RowIDDDL is empty
	// the backend adds the column itself during finalize.
	RowID    string
	RowIDDDL string

	// Sequence, when set, is created before the table and serves RowIDDDL.
	// The table name is substituted for %s.
	Sequence string

	// TablesQuery counts tables named by the single %s operand.
	TablesQuery string

	// Placeholder returns the n-th (1-based) bind placeholder.
	Placeholder func(n int) string

	// GeometryExpr wraps a GeoJSON operand (literal or placeholder).
	GeometryExpr func(operand string) string

	// BindTime converts a timestamp to the driver argument type.
	BindTime func(t time.Time) any
}

// TimeLayout is the fixed-width UTC layout used for timestamp literals and
// for backends that store timestamps as text. Fixed width keeps lexical and
// chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func identity(operand string) string { return operand }

// Carto is PostgreSQL with PostGIS, as exposed by the CARTO SQL API.
// cdb_cartodbfytable adds the cartodb_id row identifier.
var Carto = Dialect{
	Name: "carto",
	Types: map[schema.ColumnType]string{
		schema.Geometry:  "geometry(Geometry,4326)",
		schema.Text:      "text",
		schema.Numeric:   "numeric",
		schema.Timestamp: "timestamptz",
	},
	RowID:       "cartodb_id",
	TablesQuery: "SELECT COUNT(*) AS n FROM information_schema.tables WHERE lower(table_name) = %s",
	Placeholder: dollar,
	GeometryExpr: func(operand string) string {
		return "ST_SetSRID(ST_GeomFromGeoJSON(" + operand + "),4326)"
	},
	BindTime: func(t time.Time) any { return t.UTC().Format(TimeLayout) },
}

// DuckDB stores geometry as GeoJSON text so the spatial extension is not
// required at runtime.
var DuckDB = Dialect{
	Name: "duckdb",
	Types: map[schema.ColumnType]string{
		schema.Geometry:  "VARCHAR",
		schema.Text:      "VARCHAR",
		schema.Numeric:   "DOUBLE",
		schema.Timestamp: "TIMESTAMP",
	},
	RowID:        "_row_id",
	RowIDDDL:     "_row_id BIGINT PRIMARY KEY DEFAULT nextval('%s_row_id_seq')",
	Sequence:     "%s_row_id_seq",
	TablesQuery:  "SELECT COUNT(*) AS n FROM information_schema.tables WHERE lower(table_name) = %s",
	Placeholder:  questionMark,
	GeometryExpr: identity,
	BindTime:     func(t time.Time) any { return t.UTC() },
}

// SQLite stores timestamps as fixed-width text.
var SQLite = Dialect{
	Name: "sqlite",
	Types: map[schema.ColumnType]string{
		schema.Geometry:  "TEXT",
		schema.Text:      "TEXT",
		schema.Numeric:   "REAL",
		schema.Timestamp: "TEXT",
	},
	RowID:        "_row_id",
	RowIDDDL:     "_row_id INTEGER PRIMARY KEY AUTOINCREMENT",
	TablesQuery:  "SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND lower(name) = %s",
	Placeholder:  questionMark,
	GeometryExpr: identity,
	BindTime:     func(t time.Time) any { return t.UTC().Format(TimeLayout) },
}

// DialectByName returns a built-in dialect.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case Carto.Name:
		return Carto, nil
	case DuckDB.Name:
		return DuckDB, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unknown SQL dialect %q", name)
}
