// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/metrics"
	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/store"
)

// LastUpdatedReporter publishes a dataset's last-updated time to a catalog.
type LastUpdatedReporter interface {
	ReportLastUpdated(ctx context.Context, datasetID string, ts time.Time) error
}

// LastUpdatedReporterFunc adapts a function to LastUpdatedReporter.
type LastUpdatedReporterFunc func(ctx context.Context, datasetID string, ts time.Time) error

// ReportLastUpdated implements LastUpdatedReporter.
func (f LastUpdatedReporterFunc) ReportLastUpdated(ctx context.Context, datasetID string, ts time.Time) error {
	return f(ctx, datasetID, ts)
}

// errNoTimestamps is returned when the time column holds no parseable value.
var errNoTimestamps = errors.New("no parseable timestamps in time column")

// FreshnessReporter derives the newest timestamp in a table and reports it.
type FreshnessReporter struct {
	Store      store.Store
	Reporter   LastUpdatedReporter
	DatasetID  string
	Table      string
	TimeColumn string
}

// NewFreshnessReporter returns a FreshnessReporter for ds. A nil reporter
// disables reporting.
func NewFreshnessReporter(st store.Store, reporter LastUpdatedReporter, ds *Dataset) *FreshnessReporter {
	return &FreshnessReporter{
		Store:      st,
		Reporter:   reporter,
		DatasetID:  ds.ID,
		Table:      ds.Table,
		TimeColumn: ds.TimeColumn,
	}
}

// ReportFreshness reports the newest time in the table when newRows > 0.
// It returns the reported time. Failures are logged and recorded, and
// returned for the caller's summary; they never fail a run.
func (f *FreshnessReporter) ReportFreshness(ctx context.Context, newRows int) (time.Time, error) {
	if newRows == 0 || f.Reporter == nil {
		return time.Time{}, nil
	}

	latest, err := f.latest(ctx)
	if err == nil {
		err = f.Reporter.ReportLastUpdated(ctx, f.DatasetID, latest)
	}
	metrics.RecordFreshnessReport(f.DatasetID, err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to report dataset freshness")
		return time.Time{}, err
	}

	logging.Ctx(ctx).Debug().Time("last_updated", latest).Msg("Reported dataset freshness")
	return latest, nil
}

func (f *FreshnessReporter) latest(ctx context.Context) (time.Time, error) {
	values, err := f.Store.QueryColumn(ctx, f.Table, f.TimeColumn, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("query %s.%s: %w", f.Table, f.TimeColumn, err)
	}

	var latest time.Time
	for _, v := range values {
		ts, err := schema.ParseTime(v)
		if err != nil {
			logging.Ctx(ctx).Debug().Str("value", v).Msg("Skipping unparseable timestamp")
			continue
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	if latest.IsZero() {
		return time.Time{}, errNoTimestamps
	}
	return latest, nil
}
