// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package sqlstore implements store.Store on database/sql for embedded
// engines: DuckDB (github.com/duckdb/duckdb-go/v2) and SQLite
// (modernc.org/sqlite, pure Go).
//
// Statements come from sqlbuild in bind mode. Each insert block runs in its
// own transaction so a failed block leaves earlier blocks committed and
// nothing of itself.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/metrics"
	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/store"
	"github.com/tomtom215/nrtsync/internal/store/sqlbuild"
)

// Config selects the engine and database file.
type Config struct {
	// Dialect is "duckdb" or "sqlite".
	Dialect string
	// Path is the database file; empty or ":memory:" opens an in-memory database.
	Path      string
	BatchSize int
}

// Store is a store.Store on an embedded SQL engine.
type Store struct {
	db        *sql.DB
	dialect   sqlbuild.Dialect
	sql       *sqlbuild.Builder
	batchSize int
}

func inMemory(path string) bool {
	return path == "" || path == ":memory:"
}

// dsn builds the driver name and connection string for cfg.
func dsn(cfg Config) (driver, conn string, err error) {
	switch cfg.Dialect {
	case sqlbuild.DuckDB.Name:
		// Extensions are not needed; disable auto-install so startup never
		// blocks on network access.
		const noExt = "autoinstall_known_extensions=false&autoload_known_extensions=false"
		if inMemory(cfg.Path) {
			return "duckdb", ":memory:?" + noExt, nil
		}
		return "duckdb", cfg.Path + "?access_mode=read_write&" + noExt, nil
	case sqlbuild.SQLite.Name:
		if inMemory(cfg.Path) {
			return "sqlite", "file::memory:?_pragma=foreign_keys(1)", nil
		}
		return "sqlite", "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	}
	return "", "", fmt.Errorf("unsupported dialect %q (expected duckdb or sqlite)", cfg.Dialect)
}

// Open connects to the database described by cfg and verifies it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, conn, err := dsn(cfg)
	if err != nil {
		return nil, err
	}
	dialect, err := sqlbuild.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Dialect, err)
	}
	if cfg.Dialect == sqlbuild.SQLite.Name {
		// One connection: an in-memory SQLite database is per connection,
		// and file databases serialise writers anyway.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Dialect, err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = store.DefaultBatchSize
	}

	logging.Info().Str("dialect", cfg.Dialect).Str("path", cfg.Path).Msg("Opened SQL store")
	return &Store{db: db, dialect: dialect, sql: sqlbuild.New(dialect), batchSize: batch}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// wrapErr converts driver errors. Lock contention is the only retryable case.
func (s *Store) wrapErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	msg := strings.ToLower(err.Error())
	retryable := strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
	return &store.Error{Op: op, Table: table, Retryable: retryable, Err: err}
}

func (s *Store) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOp(s.dialect.Name, op, time.Since(start), err)
}

// RowIDColumn implements store.Store.
func (s *Store) RowIDColumn() string {
	return s.dialect.RowID
}

// TableExists implements store.Store.
func (s *Store) TableExists(ctx context.Context, table string) (exists bool, err error) {
	start := time.Now()
	defer func() { s.observe(store.OpTableExists, start, err) }()

	stmt, err := s.sql.TableExists(table)
	if err != nil {
		return false, store.Wrap(store.OpTableExists, table, err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return false, s.wrapErr(store.OpTableExists, table, err)
	}
	return n > 0, nil
}

// CreateTable implements store.Store. DDL runs in one transaction; the
// finalize step confirms the table is visible in the catalog.
func (s *Store) CreateTable(ctx context.Context, table string, sc *schema.Schema) (err error) {
	start := time.Now()
	defer func() { s.observe(store.OpCreateTable, start, err) }()

	stmts, err := s.sql.CreateTable(table, sc)
	if err != nil {
		return store.Wrap(store.OpCreateTable, table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrapErr(store.OpCreateTable, table, err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			_ = tx.Rollback()
			return s.wrapErr(store.OpCreateTable, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.wrapErr(store.OpCreateTable, table, err)
	}

	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return &store.Error{Op: store.OpCreateTable, Table: table, Message: "table not visible after create"}
	}
	return nil
}

// CreateIndex implements store.Store.
func (s *Store) CreateIndex(ctx context.Context, table string, columns []string, unique bool) (err error) {
	start := time.Now()
	defer func() { s.observe(store.OpCreateIndex, start, err) }()

	stmt, err := s.sql.CreateIndex(table, columns, unique)
	if err != nil {
		return store.Wrap(store.OpCreateIndex, table, err)
	}
	_, err = s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return s.wrapErr(store.OpCreateIndex, table, err)
}

// QueryColumn implements store.Store.
func (s *Store) QueryColumn(ctx context.Context, table, column string, order *store.Order) (values []string, err error) {
	start := time.Now()
	defer func() { s.observe(store.OpQueryColumn, start, err) }()

	stmt, err := s.sql.SelectColumn(table, column, order)
	if err != nil {
		return nil, store.Wrap(store.OpQueryColumn, table, err)
	}
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, s.wrapErr(store.OpQueryColumn, table, err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, s.wrapErr(store.OpQueryColumn, table, err)
		}
		if v != nil {
			values = append(values, store.FormatValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr(store.OpQueryColumn, table, err)
	}
	return values, nil
}

// InsertRows implements store.Store.
func (s *Store) InsertRows(ctx context.Context, table string, sc *schema.Schema, rows []schema.Row) (err error) {
	start := time.Now()
	defer func() { s.observe(store.OpInsertRows, start, err) }()

	written := 0
	for i, block := range store.Blocks(rows, s.batchSize) {
		if err := s.insertBlock(ctx, table, sc, block); err != nil {
			return &store.Error{Op: store.OpInsertRows, Table: table, RowsWritten: written,
				Message: fmt.Sprintf("block %d", i), Err: err}
		}
		written += len(block)
	}
	return nil
}

func (s *Store) insertBlock(ctx context.Context, table string, sc *schema.Schema, block []schema.Row) error {
	stmt, err := s.sql.Insert(table, sc, block)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DeleteWhere implements store.Store.
func (s *Store) DeleteWhere(ctx context.Context, table string, p store.Predicate) (n int, err error) {
	start := time.Now()
	defer func() { s.observe(store.OpDeleteWhere, start, err) }()

	stmt, err := s.sql.Delete(table, p)
	if err != nil {
		return 0, store.Wrap(store.OpDeleteWhere, table, err)
	}
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, s.wrapErr(store.OpDeleteWhere, table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrapErr(store.OpDeleteWhere, table, err)
	}
	return int(affected), nil
}

var _ store.Store = (*Store)(nil)
