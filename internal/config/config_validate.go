// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/validation"
)

// Validate checks struct tags first, then rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	var errs []error
	errs = append(errs, c.Store.validate()...)

	if c.Catalog.Enabled && c.Catalog.BaseURL == "" {
		errs = append(errs, errors.New("catalog.base_url is required when catalog is enabled"))
	}
	if c.Runlog.Enabled && !c.Runlog.InMemory && c.Runlog.Path == "" {
		errs = append(errs, errors.New("runlog.path is required unless runlog.in_memory is set"))
	}
	if c.Sync.MinPages > c.Sync.MaxPages {
		errs = append(errs, fmt.Errorf("sync.min_pages (%d) exceeds sync.max_pages (%d)", c.Sync.MinPages, c.Sync.MaxPages))
	}

	seen := make(map[string]bool, len(c.Datasets))
	tables := make(map[string]string, len(c.Datasets))
	for i := range c.Datasets {
		d := &c.Datasets[i]
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("datasets[%d]: duplicate dataset id %q", i, d.ID))
		}
		seen[d.ID] = true
		// Unquoted identifiers fold case in the SQL backends.
		if d.Table != "" {
			key := strings.ToLower(d.Table)
			if owner, ok := tables[key]; ok {
				errs = append(errs, fmt.Errorf("datasets[%d]: table %q is already used by dataset %q", i, d.Table, owner))
			} else {
				tables[key] = d.ID
			}
		}
		for _, err := range d.validate(c.Sync) {
			errs = append(errs, fmt.Errorf("datasets[%d] (%s): %w", i, d.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *StoreConfig) validate() []error {
	var errs []error
	if s.Kind == StoreCarto {
		if s.Carto.User == "" {
			errs = append(errs, errors.New("store.carto.user is required when store.kind is carto"))
		}
		if s.Carto.APIKey == "" {
			errs = append(errs, errors.New("store.carto.api_key is required when store.kind is carto"))
		}
	}
	if s.Retry.MaxDelay > 0 && s.Retry.InitialDelay > s.Retry.MaxDelay {
		errs = append(errs, errors.New("store.retry.initial_delay exceeds store.retry.max_delay"))
	}
	return errs
}

func (d *DatasetConfig) validate(defaults SyncConfig) []error {
	var errs []error

	types := make(map[string]string, len(d.Schema))
	for _, c := range d.Schema {
		if _, dup := types[c.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate schema column %q", c.Name))
		}
		types[c.Name] = c.Type
	}
	errs = append(errs, checkColumn(types, "uid_column", d.UIDColumn, string(schema.Text))...)
	errs = append(errs, checkColumn(types, "time_column", d.TimeColumn, string(schema.Timestamp))...)
	for col := range d.Columns {
		if _, ok := types[col]; !ok {
			errs = append(errs, fmt.Errorf("columns: %q is not in the schema", col))
		}
	}

	r := d.Retention
	if r.MaxRows > 0 && r.Overflow == "" {
		errs = append(errs, errors.New("retention.overflow is required when retention.max_rows is set"))
	}
	if r.MaxAge != "" {
		if _, err := time.Parse(time.RFC3339, r.MaxAge); err != nil {
			errs = append(errs, fmt.Errorf("retention.max_age: %w", err))
		}
		if r.MaxAgeWindow > 0 {
			errs = append(errs, errors.New("retention.max_age and retention.max_age_window are mutually exclusive"))
		}
	}

	minPages, maxPages := d.pageBounds(defaults)
	if minPages > maxPages {
		errs = append(errs, fmt.Errorf("pagination.min_pages (%d) exceeds pagination.max_pages (%d)", minPages, maxPages))
	}
	if d.Source.TokenParam != "" && d.Source.NextTokenPath == "" {
		errs = append(errs, errors.New("source.token_param requires source.next_token_path"))
	}
	return errs
}

func checkColumn(types map[string]string, field, name, want string) []error {
	got, ok := types[name]
	switch {
	case !ok:
		return []error{fmt.Errorf("%s %q is not in the schema", field, name)}
	case got != want:
		return []error{fmt.Errorf("%s %q must be %s, got %s", field, name, want, got)}
	}
	return nil
}

// pageBounds applies sync defaults to unset pagination overrides.
func (d *DatasetConfig) pageBounds(defaults SyncConfig) (minPages, maxPages int) {
	minPages, maxPages = defaults.MinPages, defaults.MaxPages
	if d.Pagination.MinPages != nil {
		minPages = *d.Pagination.MinPages
	}
	if d.Pagination.MaxPages != nil {
		maxPages = *d.Pagination.MaxPages
	}
	return minPages, maxPages
}
