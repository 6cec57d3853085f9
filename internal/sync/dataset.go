// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/nrtsync/internal/record"
	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/uid"
)

// OverflowPolicy decides how max_rows is enforced.
type OverflowPolicy string

const (
	// OverflowUnset means no policy was chosen. Valid only when MaxRows is 0.
	OverflowUnset OverflowPolicy = ""

	// OverflowTrimTable inserts every new row, then deletes the oldest rows
	// of the table until at most MaxRows remain.
	OverflowTrimTable OverflowPolicy = "trim_table"

	// OverflowTruncateBatch accepts at most MaxRows new rows per run (in
	// fetch order) and then trims the table as OverflowTrimTable does.
	OverflowTruncateBatch OverflowPolicy = "truncate_batch"
)

// RetentionPolicy bounds the table by age and row count.
type RetentionPolicy struct {
	// MaxRows is the row ceiling; 0 means unbounded.
	MaxRows int

	// MaxAge, if set, deletes rows whose time is before it.
	MaxAge time.Time

	// MaxAgeWindow, if set, deletes rows older than now minus the window.
	MaxAgeWindow time.Duration

	Overflow OverflowPolicy
}

// Validate rejects policies whose outcome would depend on a guess.
func (p RetentionPolicy) Validate() error {
	if p.MaxRows < 0 {
		return fmt.Errorf("%w: max_rows must not be negative", ErrRetentionPolicyConflict)
	}
	if p.MaxAgeWindow < 0 {
		return fmt.Errorf("%w: max_age_window must not be negative", ErrRetentionPolicyConflict)
	}
	if !p.MaxAge.IsZero() && p.MaxAgeWindow > 0 {
		return fmt.Errorf("%w: set max_age or max_age_window, not both", ErrRetentionPolicyConflict)
	}
	switch p.Overflow {
	case OverflowUnset:
		if p.MaxRows > 0 {
			return fmt.Errorf("%w: max_rows is set but overflow policy is not (choose %s or %s)",
				ErrRetentionPolicyConflict, OverflowTrimTable, OverflowTruncateBatch)
		}
	case OverflowTrimTable, OverflowTruncateBatch:
	default:
		return fmt.Errorf("%w: unknown overflow policy %q", ErrRetentionPolicyConflict, p.Overflow)
	}
	return nil
}

// Cutoff returns the age threshold in effect at now, if any.
func (p RetentionPolicy) Cutoff(now time.Time) (time.Time, bool) {
	switch {
	case !p.MaxAge.IsZero():
		return p.MaxAge.UTC(), true
	case p.MaxAgeWindow > 0:
		return now.Add(-p.MaxAgeWindow).UTC(), true
	}
	return time.Time{}, false
}

// Dataset is everything an Engine needs to know about one synced table.
type Dataset struct {
	// ID identifies the dataset in the catalog and in logs.
	ID    string
	Table string

	Schema     *schema.Schema
	UIDColumn  string
	TimeColumn string

	UID        uid.Strategy
	Translator record.Translator

	Retention RetentionPolicy

	MinPages      int
	MaxPages      int
	PagingTimeout time.Duration

	// FetchRetries is the number of extra attempts for a transient page
	// failure before the page is skipped.
	FetchRetries    int
	FetchRetryDelay time.Duration
}

// Validate checks the dataset definition.
func (d *Dataset) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("dataset id is required"))
	}
	if !schema.ValidIdentifier(d.Table) {
		errs = append(errs, fmt.Errorf("invalid table name %q", d.Table))
	}
	if d.Schema == nil {
		errs = append(errs, errors.New("schema is required"))
	} else {
		if col, ok := d.Schema.Lookup(d.UIDColumn); !ok {
			errs = append(errs, fmt.Errorf("uid column %q is not in the schema", d.UIDColumn))
		} else if col.Type != schema.Text {
			errs = append(errs, fmt.Errorf("uid column %q must be text, is %s", d.UIDColumn, col.Type))
		}
		if col, ok := d.Schema.Lookup(d.TimeColumn); !ok {
			errs = append(errs, fmt.Errorf("time column %q is not in the schema", d.TimeColumn))
		} else if col.Type != schema.Timestamp {
			errs = append(errs, fmt.Errorf("time column %q must be timestamp, is %s", d.TimeColumn, col.Type))
		}
	}
	if d.UID == nil {
		errs = append(errs, errors.New("uid strategy is required"))
	}
	if d.Translator == nil {
		errs = append(errs, errors.New("row translator is required"))
	}
	if d.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("max_pages must be at least 1, got %d", d.MaxPages))
	}
	if d.MinPages < 0 || d.MinPages > d.MaxPages {
		errs = append(errs, fmt.Errorf("min_pages must be between 0 and max_pages (%d), got %d", d.MaxPages, d.MinPages))
	}
	if d.FetchRetries < 0 {
		errs = append(errs, errors.New("fetch_retries must not be negative"))
	}
	if err := d.Retention.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
