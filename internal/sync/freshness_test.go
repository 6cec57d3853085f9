// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/nrtsync/internal/store"
)

func TestFreshnessReporter_ReportsNewest(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	seedTable(t, st, 3, 9, 1)

	var gotID string
	var gotTS time.Time
	f := &FreshnessReporter{
		Store: st, DatasetID: "ds", Table: testTable, TimeColumn: "ts",
		Reporter: LastUpdatedReporterFunc(func(_ context.Context, id string, ts time.Time) error {
			gotID, gotTS = id, ts
			return nil
		}),
	}

	ts, err := f.ReportFreshness(context.Background(), 3)
	if err != nil {
		t.Fatalf("ReportFreshness() error = %v", err)
	}
	want := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	if gotID != "ds" || !gotTS.Equal(want) || !ts.Equal(want) {
		t.Errorf("reported (%q, %v), returned %v, want (ds, %v)", gotID, gotTS, ts, want)
	}
}

func TestFreshnessReporter_NoNewRowsMakesNoCalls(t *testing.T) {
	t.Parallel()

	calls := 0
	f := &FreshnessReporter{
		// A nil store would panic if queried.
		Reporter: LastUpdatedReporterFunc(func(context.Context, string, time.Time) error {
			calls++
			return nil
		}),
	}
	if _, err := f.ReportFreshness(context.Background(), 0); err != nil {
		t.Fatalf("ReportFreshness() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestFreshnessReporter_EmptyTable(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	seedTable(t, st)
	f := &FreshnessReporter{
		Store: st, DatasetID: "ds", Table: testTable, TimeColumn: "ts",
		Reporter: LastUpdatedReporterFunc(func(context.Context, string, time.Time) error {
			t.Error("reporter called for empty table")
			return nil
		}),
	}
	if _, err := f.ReportFreshness(context.Background(), 1); !errors.Is(err, errNoTimestamps) {
		t.Errorf("ReportFreshness() error = %v, want errNoTimestamps", err)
	}
}
