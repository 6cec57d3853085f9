// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sqlbuild

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/store"
)

var fireSchema = schema.MustNew(
	schema.Column{Name: "the_geom", Type: schema.Geometry},
	schema.Column{Name: "uid", Type: schema.Text},
	schema.Column{Name: "frp", Type: schema.Numeric},
	schema.Column{Name: "acq_time", Type: schema.Timestamp},
)

func TestLiteralEscaping(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.UTC)
	tests := []struct {
		name string
		typ  schema.ColumnType
		in   any
		want string
	}{
		{"null", schema.Text, nil, "NULL"},
		{"text quote doubling", schema.Text, "O'Brien's", "'O''Brien''s'"},
		{"injection attempt", schema.Text, "x'); DROP TABLE t; --", "'x''); DROP TABLE t; --'"},
		{"numeric int", schema.Numeric, 42, "42"},
		{"numeric string", schema.Numeric, "3.5", "3.5"},
		{"timestamp", schema.Timestamp, ts, "'2024-02-03T04:05:06.000007Z'"},
		{"geometry", schema.Geometry, `{"type":"Point","coordinates":[1,2]}`,
			`ST_SetSRID(ST_GeomFromGeoJSON('{"type":"Point","coordinates":[1,2]}'),4326)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Carto.Literal(tt.typ, tt.in)
			if err != nil {
				t.Fatalf("Literal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Literal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLiteralRejectsNonNumeric(t *testing.T) {
	t.Parallel()

	if _, err := Carto.Literal(schema.Numeric, "1; DROP TABLE t"); err == nil {
		t.Error("expected numeric validation error")
	}
}

func TestInlineInsert(t *testing.T) {
	t.Parallel()

	b := NewInline(Carto)
	stmt, err := b.Insert("fires", fireSchema, []schema.Row{
		{map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}}, "a'1", 1.5, "2024-01-01T00:00:00Z"},
		{nil, "b", nil, nil},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if len(stmt.Args) != 0 {
		t.Errorf("inline insert must not have args, got %v", stmt.Args)
	}
	want := "INSERT INTO fires (the_geom, uid, frp, acq_time) VALUES " +
		`(ST_SetSRID(ST_GeomFromGeoJSON('{"coordinates":[1,2],"type":"Point"}'),4326), 'a''1', 1.5, '2024-01-01T00:00:00.000000Z'), ` +
		"(NULL, 'b', NULL, NULL)"
	if stmt.SQL != want {
		t.Errorf("SQL =\n%s\nwant\n%s", stmt.SQL, want)
	}
}

func TestBindInsert(t *testing.T) {
	t.Parallel()

	b := New(SQLite)
	stmt, err := b.Insert("fires", fireSchema, []schema.Row{
		{`{"type":"Point","coordinates":[0,0]}`, "a", 2, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if stmt.SQL != "INSERT INTO fires (the_geom, uid, frp, acq_time) VALUES (?, ?, ?, ?)" {
		t.Errorf("SQL = %s", stmt.SQL)
	}
	if len(stmt.Args) != 4 {
		t.Fatalf("args = %v", stmt.Args)
	}
	if stmt.Args[2] != int64(2) {
		t.Errorf("numeric arg = %v (%T)", stmt.Args[2], stmt.Args[2])
	}
	if stmt.Args[3] != "2024-01-01T00:00:00.000000Z" {
		t.Errorf("timestamp arg = %v", stmt.Args[3])
	}
}

func TestBindInsertCartoPlaceholders(t *testing.T) {
	t.Parallel()

	stmt, err := New(Carto).Insert("fires", fireSchema, []schema.Row{
		{`{"type":"Point","coordinates":[0,0]}`, "a", 1, nil},
		{nil, "b", 2, nil},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !strings.Contains(stmt.SQL, "(ST_SetSRID(ST_GeomFromGeoJSON($1),4326), $2, $3, $4), ($5, $6, $7, $8)") {
		t.Errorf("SQL = %s", stmt.SQL)
	}
}

func TestInsertMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewInline(Carto).Insert("fires", fireSchema, []schema.Row{{nil, "a", "many", nil}})
	var mm *schema.MismatchError
	if !errors.As(err, &mm) || mm.Column != "frp" {
		t.Errorf("expected mismatch on frp, got %v", err)
	}
	if _, err := NewInline(Carto).Insert("fires", fireSchema, []schema.Row{{nil}}); !errors.As(err, &mm) {
		t.Errorf("expected mismatch on short row, got %v", err)
	}
	if _, err := NewInline(Carto).Insert("fires", fireSchema, nil); err == nil {
		t.Error("expected error for empty insert")
	}
}

func TestCreateTable(t *testing.T) {
	t.Parallel()

	stmts, err := NewInline(Carto).CreateTable("fires", fireSchema)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if len(stmts) != 1 || stmts[0].SQL != "CREATE TABLE fires (the_geom geometry(Geometry,4326), uid text, frp numeric, acq_time timestamptz)" {
		t.Errorf("carto DDL = %+v", stmts)
	}

	stmts, err = New(DuckDB).CreateTable("fires", fireSchema)
	if err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}
	if len(stmts) != 2 || stmts[0].SQL != "CREATE SEQUENCE fires_row_id_seq" {
		t.Fatalf("duckdb DDL = %+v", stmts)
	}
	if !strings.HasPrefix(stmts[1].SQL, "CREATE TABLE fires (_row_id BIGINT PRIMARY KEY DEFAULT nextval('fires_row_id_seq'), the_geom VARCHAR") {
		t.Errorf("duckdb table DDL = %s", stmts[1].SQL)
	}

	if _, err := New(SQLite).CreateTable("fires; drop", fireSchema); err == nil {
		t.Error("expected invalid table error")
	}
	reserved := schema.MustNew(schema.Column{Name: "_row_id", Type: schema.Numeric})
	if _, err := New(SQLite).CreateTable("t", reserved); err == nil {
		t.Error("expected reserved column error")
	}
}

func TestCreateIndexAndSelect(t *testing.T) {
	t.Parallel()

	b := NewInline(Carto)
	idx, err := b.CreateIndex("fires", []string{"uid"}, true)
	if err != nil || idx.SQL != "CREATE UNIQUE INDEX fires_uid_uidx ON fires (uid)" {
		t.Errorf("CreateIndex = %+v, %v", idx, err)
	}
	if _, err := b.CreateIndex("fires", nil, false); err == nil {
		t.Error("expected error for index without columns")
	}

	sel, err := b.SelectColumn("fires", "cartodb_id", &store.Order{Column: "acq_time", Desc: true})
	if err != nil {
		t.Fatalf("SelectColumn() error = %v", err)
	}
	want := "SELECT cartodb_id FROM fires WHERE cartodb_id IS NOT NULL ORDER BY acq_time DESC NULLS LAST"
	if sel.SQL != want {
		t.Errorf("SelectColumn = %s", sel.SQL)
	}
	if _, err := b.SelectColumn("fires", "uid", &store.Order{Column: "x y"}); err == nil {
		t.Error("expected invalid order column error")
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stmt, err := NewInline(Carto).Delete("fires", store.LessThan("acq_time", cutoff))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if stmt.SQL != "DELETE FROM fires WHERE acq_time < '2024-01-01T00:00:00.000000Z'" {
		t.Errorf("Delete(<) = %s", stmt.SQL)
	}

	stmt, err = New(SQLite).Delete("fires", store.In("_row_id", int64(4), int64(9)))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if stmt.SQL != "DELETE FROM fires WHERE _row_id IN (?, ?)" || len(stmt.Args) != 2 {
		t.Errorf("Delete(IN) = %+v", stmt)
	}

	if _, err := New(SQLite).Delete("fires", store.In("_row_id")); err == nil {
		t.Error("expected invalid predicate error")
	}
}

func TestTableExists(t *testing.T) {
	t.Parallel()

	stmt, err := NewInline(Carto).TableExists("Fires")
	if err != nil {
		t.Fatalf("TableExists() error = %v", err)
	}
	if !strings.HasSuffix(stmt.SQL, "lower(table_name) = 'fires'") {
		t.Errorf("TableExists = %s", stmt.SQL)
	}
	if _, err := DialectByName("oracle"); err == nil {
		t.Error("expected unknown dialect error")
	}
}
