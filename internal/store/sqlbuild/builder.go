// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sqlbuild

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/store"
)

// Statement is SQL text with its bind arguments. Args is empty in inline mode.
type Statement struct {
	SQL  string
	Args []any
}

// Builder renders statements for one dialect.
type Builder struct {
	d      Dialect
	inline bool
}

// New returns a builder that emits bind placeholders.
func New(d Dialect) *Builder {
	return &Builder{d: d}
}

// NewInline returns a builder that renders values as literals.
func NewInline(d Dialect) *Builder {
	return &Builder{d: d, inline: true}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect {
	return b.d
}

// binder accumulates arguments for one statement.
type binder struct {
	b    *Builder
	args []any
}

func (bd *binder) bind(t schema.ColumnType, v any) (string, error) {
	if bd.b.inline {
		return bd.b.d.Literal(t, v)
	}
	nv, err := schema.NormalizeValue(t, v)
	if err != nil {
		return "", err
	}
	if ts, ok := nv.(time.Time); ok {
		nv = bd.b.d.BindTime(ts)
	}
	bd.args = append(bd.args, nv)
	ph := bd.b.d.Placeholder(len(bd.args))
	if t == schema.Geometry && nv != nil {
		ph = bd.b.d.GeometryExpr(ph)
	}
	return ph, nil
}

func checkIdent(kind, name string) error {
	if !schema.ValidIdentifier(name) {
		return fmt.Errorf("invalid %s identifier %q", kind, name)
	}
	return nil
}

// TableExists checks the information schema for table.
func (b *Builder) TableExists(table string) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	bd := &binder{b: b}
	ph, err := bd.bind(schema.Text, strings.ToLower(table))
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  fmt.Sprintf(b.d.TablesQuery, ph),
		Args: bd.args,
	}, nil
}

// CreateTable returns the statements that create table, in execution order.
func (b *Builder) CreateTable(table string, s *schema.Schema) ([]Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return nil, err
	}

	var stmts []Statement
	defs := make([]string, 0, s.Len()+1)
	if b.d.RowIDDDL != "" {
		if _, clash := s.Index(b.d.RowID); clash {
			return nil, fmt.Errorf("column %q is reserved for the row identifier", b.d.RowID)
		}
		if b.d.Sequence != "" {
			stmts = append(stmts, Statement{SQL: "CREATE SEQUENCE " + fmt.Sprintf(b.d.Sequence, table)})
		}
		ddl := b.d.RowIDDDL
		if strings.Contains(ddl, "%s") {
			ddl = fmt.Sprintf(ddl, table)
		}
		defs = append(defs, ddl)
	}
	for _, col := range s.Columns() {
		typ, ok := b.d.Types[col.Type]
		if !ok {
			return nil, fmt.Errorf("dialect %s has no type for %q", b.d.Name, col.Type)
		}
		defs = append(defs, col.Name+" "+typ)
	}

	stmts = append(stmts, Statement{SQL: "CREATE TABLE " + table + " (" + strings.Join(defs, ", ") + ")"})
	return stmts, nil
}

// IndexName derives a deterministic index name for columns of table.
func IndexName(table string, columns []string, unique bool) string {
	suffix := "_idx"
	if unique {
		suffix = "_uidx"
	}
	return table + "_" + strings.Join(columns, "_") + suffix
}

// CreateIndex creates an index on columns of table.
func (b *Builder) CreateIndex(table string, columns []string, unique bool) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	if len(columns) == 0 {
		return Statement{}, fmt.Errorf("index on %s requires at least one column", table)
	}
	for _, c := range columns {
		if err := checkIdent("column", c); err != nil {
			return Statement{}, err
		}
	}

	kw := "CREATE INDEX "
	if unique {
		kw = "CREATE UNIQUE INDEX "
	}
	return Statement{
		SQL: kw + IndexName(table, columns, unique) + " ON " + table + " (" + strings.Join(columns, ", ") + ")",
	}, nil
}

// SelectColumn selects the non-NULL values of column, optionally ordered.
func (b *Builder) SelectColumn(table, column string, order *store.Order) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	if err := checkIdent("column", column); err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + column + " FROM " + table + " WHERE " + column + " IS NOT NULL")
	if order != nil {
		if err := checkIdent("column", order.Column); err != nil {
			return Statement{}, err
		}
		dir := " ASC"
		if order.Desc {
			dir = " DESC"
		}
		sb.WriteString(" ORDER BY " + order.Column + dir + " NULLS LAST")
	}
	return Statement{SQL: sb.String()}, nil
}

// Insert renders a single multi-row INSERT for rows. Callers split rows
// into blocks first (store.Blocks).
func (b *Builder) Insert(table string, s *schema.Schema, rows []schema.Row) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	if len(rows) == 0 {
		return Statement{}, fmt.Errorf("insert into %s requires at least one row", table)
	}

	bd := &binder{b: b}
	if !b.inline {
		bd.args = make([]any, 0, len(rows)*s.Len())
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + table + " (" + strings.Join(s.Names(), ", ") + ") VALUES ")
	for i, row := range rows {
		if len(row) != s.Len() {
			return Statement{}, &schema.MismatchError{
				Index:  -1,
				Reason: fmt.Sprintf("row %d has %d values, schema has %d columns", i, len(row), s.Len()),
			}
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row {
			col := s.Column(j)
			expr, err := bd.bind(col.Type, v)
			if err != nil {
				return Statement{}, &schema.MismatchError{Column: col.Name, Index: j, Reason: err.Error()}
			}
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(expr)
		}
		sb.WriteByte(')')
	}
	return Statement{SQL: sb.String(), Args: bd.args}, nil
}

// Delete renders a DELETE for rows matching p.
func (b *Builder) Delete(table string, p store.Predicate) (Statement, error) {
	if err := checkIdent("table", table); err != nil {
		return Statement{}, err
	}
	if err := p.Validate(); err != nil {
		return Statement{}, err
	}

	bd := &binder{b: b}
	operands := make([]string, len(p.Values))
	for i, v := range p.Values {
		expr, err := bd.bind(inferType(v), v)
		if err != nil {
			return Statement{}, fmt.Errorf("predicate value %d: %w", i, err)
		}
		operands[i] = expr
	}

	var cond string
	switch p.Cmp {
	case store.CmpLess:
		cond = p.Column + " < " + operands[0]
	case store.CmpIn:
		cond = p.Column + " IN (" + strings.Join(operands, ", ") + ")"
	}
	return Statement{SQL: "DELETE FROM " + table + " WHERE " + cond, Args: bd.args}, nil
}
