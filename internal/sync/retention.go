// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/nrtsync/internal/store"
)

// Retention trims a table to its policy. Age is applied before count, both
// against the post-insert state of the table.
type Retention struct {
	Store      store.Store
	Table      string
	TimeColumn string
	Policy     RetentionPolicy

	now func() time.Time
}

// NewRetention returns a Retention for the given dataset and store.
func NewRetention(st store.Store, ds *Dataset) *Retention {
	return &Retention{
		Store:      st,
		Table:      ds.Table,
		TimeColumn: ds.TimeColumn,
		Policy:     ds.Retention,
		now:        time.Now,
	}
}

// Trim applies the age rule, then the row ceiling, and returns the number of
// rows removed.
func (r *Retention) Trim(ctx context.Context) (int, error) {
	if err := r.Policy.Validate(); err != nil {
		return 0, err
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	dropped := 0
	if cutoff, ok := r.Policy.Cutoff(now()); ok {
		n, err := r.Store.DeleteWhere(ctx, r.Table, store.LessThan(r.TimeColumn, cutoff))
		if err != nil {
			return 0, fmt.Errorf("delete rows older than %s: %w", cutoff.Format(time.RFC3339), err)
		}
		dropped += n
	}

	if r.Policy.MaxRows <= 0 {
		return dropped, nil
	}

	rowID := r.Store.RowIDColumn()
	ids, err := r.Store.QueryColumn(ctx, r.Table, rowID, &store.Order{Column: r.TimeColumn, Desc: true})
	if err != nil {
		return dropped, fmt.Errorf("list row ids: %w", err)
	}
	if len(ids) <= r.Policy.MaxRows {
		return dropped, nil
	}

	excess := ids[r.Policy.MaxRows:]
	values := make([]any, len(excess))
	for i, id := range excess {
		values[i] = rowIDValue(id)
	}
	for _, part := range chunk(values, store.DefaultBatchSize) {
		n, err := r.Store.DeleteWhere(ctx, r.Table, store.In(rowID, part...))
		dropped += n
		if err != nil {
			return dropped, fmt.Errorf("delete rows past max_rows %d: %w", r.Policy.MaxRows, err)
		}
	}
	return dropped, nil
}

// rowIDValue keeps integer row ids numeric so they bind as integers.
func rowIDValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
