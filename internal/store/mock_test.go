// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package store

import (
	"context"

	"github.com/tomtom215/nrtsync/internal/schema"
)

// mockStore implements Store with overridable function fields. Unset
// fields succeed with zero values.
type mockStore struct {
	tableExists func(ctx context.Context, table string) (bool, error)
	createTable func(ctx context.Context, table string, s *schema.Schema) error
	queryColumn func(ctx context.Context, table, column string, order *Order) ([]string, error)
	insertRows  func(ctx context.Context, table string, s *schema.Schema, rows []schema.Row) error
	deleteWhere func(ctx context.Context, table string, p Predicate) (int, error)
}

func (m *mockStore) TableExists(ctx context.Context, table string) (bool, error) {
	if m.tableExists != nil {
		return m.tableExists(ctx, table)
	}
	return false, nil
}

func (m *mockStore) CreateTable(ctx context.Context, table string, s *schema.Schema) error {
	if m.createTable != nil {
		return m.createTable(ctx, table, s)
	}
	return nil
}

func (m *mockStore) CreateIndex(context.Context, string, []string, bool) error {
	return nil
}

func (m *mockStore) QueryColumn(ctx context.Context, table, column string, order *Order) ([]string, error) {
	if m.queryColumn != nil {
		return m.queryColumn(ctx, table, column, order)
	}
	return nil, nil
}

func (m *mockStore) InsertRows(ctx context.Context, table string, s *schema.Schema, rows []schema.Row) error {
	if m.insertRows != nil {
		return m.insertRows(ctx, table, s, rows)
	}
	return nil
}

func (m *mockStore) DeleteWhere(ctx context.Context, table string, p Predicate) (int, error) {
	if m.deleteWhere != nil {
		return m.deleteWhere(ctx, table, p)
	}
	return 0, nil
}

func (m *mockStore) RowIDColumn() string {
	return "row_id"
}
