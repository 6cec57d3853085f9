// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/nrtsync/internal/record"
	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/source"
	"github.com/tomtom215/nrtsync/internal/store"
	nsync "github.com/tomtom215/nrtsync/internal/sync"
	"github.com/tomtom215/nrtsync/internal/uid"
)

// BuildDataset turns a dataset entry into an engine Dataset, filling paging
// defaults from defaults.
func BuildDataset(d DatasetConfig, defaults SyncConfig) (*nsync.Dataset, error) {
	cols := make([]schema.Column, 0, len(d.Schema))
	for _, c := range d.Schema {
		t, err := schema.ParseColumnType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: column %s: %w", d.ID, c.Name, err)
		}
		cols = append(cols, schema.Column{Name: c.Name, Type: t})
	}
	s, err := schema.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}

	strategy, err := uid.FromSpec(uid.Spec{
		Kind:      uid.Kind(d.UID.Strategy),
		Fields:    d.UID.Fields,
		Separator: d.UID.Separator,
		TimeField: d.UID.TimeField,
	})
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}

	translator, err := record.NewFieldTranslator(s, d.Columns)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}

	retention, err := d.Retention.policy()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}

	minPages, maxPages := d.pageBounds(defaults)
	ds := &nsync.Dataset{
		ID:              d.ID,
		Table:           d.Table,
		Schema:          s,
		UIDColumn:       d.UIDColumn,
		TimeColumn:      d.TimeColumn,
		UID:             strategy,
		Translator:      translator,
		Retention:       retention,
		MinPages:        minPages,
		MaxPages:        maxPages,
		PagingTimeout:   defaults.PagingTimeout,
		FetchRetries:    defaults.FetchRetries,
		FetchRetryDelay: defaults.FetchRetryDelay,
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.ID, err)
	}
	return ds, nil
}

func (r RetentionConfig) policy() (nsync.RetentionPolicy, error) {
	p := nsync.RetentionPolicy{
		MaxRows:      r.MaxRows,
		MaxAgeWindow: r.MaxAgeWindow,
		Overflow:     nsync.OverflowPolicy(r.Overflow),
	}
	if r.MaxAge != "" {
		t, err := time.Parse(time.RFC3339, r.MaxAge)
		if err != nil {
			return p, fmt.Errorf("retention.max_age: %w", err)
		}
		p.MaxAge = t
	}
	return p, p.Validate()
}

// Fetcher builds the HTTP source for the dataset.
func (d DatasetConfig) Fetcher() (*source.HTTPJSON, error) {
	return source.NewHTTPJSON(source.HTTPConfig{
		URL:               d.Source.URL,
		Headers:           d.Source.Headers,
		RecordsPath:       d.Source.RecordsPath,
		PageParam:         d.Source.PageParam,
		FirstPage:         d.Source.FirstPage,
		SizeParam:         d.Source.SizeParam,
		PageSize:          d.Pagination.PageSize,
		TokenParam:        d.Source.TokenParam,
		NextTokenPath:     d.Source.NextTokenPath,
		RequestsPerSecond: d.Source.RequestsPerSecond,
		Timeout:           d.Source.Timeout,
	})
}

// IntervalOr returns the dataset interval, or fallback when unset.
func (d DatasetConfig) IntervalOr(fallback time.Duration) time.Duration {
	if d.Interval > 0 {
		return d.Interval
	}
	return fallback
}

// RetryPolicy converts the retry section.
func (s StoreConfig) RetryPolicy() store.RetryPolicy {
	return store.RetryPolicy{
		MaxAttempts:  s.Retry.MaxAttempts,
		InitialDelay: s.Retry.InitialDelay,
		MaxDelay:     s.Retry.MaxDelay,
		Multiplier:   s.Retry.Multiplier,
	}
}

// BreakerSettings converts the circuit breaker section.
func (s StoreConfig) BreakerSettings() store.BreakerSettings {
	return store.BreakerSettings{
		MaxRequests:  s.CircuitBreaker.MaxRequests,
		Interval:     s.CircuitBreaker.Interval,
		Timeout:      s.CircuitBreaker.Timeout,
		MinRequests:  s.CircuitBreaker.MinRequests,
		FailureRatio: s.CircuitBreaker.FailureRatio,
	}
}
