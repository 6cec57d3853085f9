// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/nrtsync/internal/catalog"
	"github.com/tomtom215/nrtsync/internal/config"
	"github.com/tomtom215/nrtsync/internal/events"
	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/runlog"
	"github.com/tomtom215/nrtsync/internal/store"
	"github.com/tomtom215/nrtsync/internal/store/carto"
	"github.com/tomtom215/nrtsync/internal/store/sqlstore"
	nsync "github.com/tomtom215/nrtsync/internal/sync"
)

// app owns every long-lived component built from the configuration.
type app struct {
	manager   *nsync.Manager
	ledger    *runlog.Ledger
	publisher *events.Publisher

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	st, err := a.buildStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	reporter, err := buildReporter(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	var observers []nsync.RunObserver
	if cfg.Runlog.Enabled {
		a.ledger, err = runlog.Open(runlog.Config{
			Path:     cfg.Runlog.Path,
			InMemory: cfg.Runlog.InMemory,
			Keep:     cfg.Runlog.Keep,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open run ledger: %w", err)
		}
		a.closers = append(a.closers, a.ledger.Close)
		observers = append(observers, a.ledger)
	}
	if cfg.Events.Enabled {
		a.publisher, err = events.New(ctx, events.Config{
			NATSURL:     cfg.Events.NATSURL,
			TopicPrefix: cfg.Events.TopicPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		a.closers = append(a.closers, a.publisher.Close)
		observers = append(observers, a.publisher)
	}

	a.manager = nsync.NewManager(observers...)
	for _, dc := range cfg.Datasets {
		ds, err := config.BuildDataset(dc, cfg.Sync)
		if err != nil {
			return nil, err
		}
		fetcher, err := dc.Fetcher()
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", dc.ID, err)
		}
		engine, err := nsync.NewEngine(ds, st, fetcher, reporter)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", dc.ID, err)
		}
		if err := a.manager.Add(engine, dc.IntervalOr(cfg.Sync.Interval)); err != nil {
			return nil, err
		}
		logging.Info().
			Str("dataset", ds.ID).
			Str("table", ds.Table).
			Dur("interval", dc.IntervalOr(cfg.Sync.Interval)).
			Msg("Dataset registered")
	}
	return a, nil
}

// buildStore opens the configured backend and wraps it in the circuit
// breaker (inner) and retry policy (outer), so each retry attempt is
// counted by the breaker and an open breaker fails the retry fast.
func (a *app) buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	var st store.Store
	switch cfg.Kind {
	case config.StoreCarto:
		client, err := carto.New(carto.Config{
			User:              cfg.Carto.User,
			APIKey:            cfg.Carto.APIKey,
			BaseURL:           cfg.Carto.BaseURL,
			Timeout:           cfg.Carto.Timeout,
			RequestsPerSecond: cfg.Carto.RequestsPerSecond,
			BatchSize:         cfg.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create carto client: %w", err)
		}
		st = client
	case config.StoreDuckDB, config.StoreSQLite:
		db, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect:   cfg.Kind,
			Path:      cfg.SQL.Path,
			BatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		st = db
	case config.StoreMemory:
		mem := store.NewMemory()
		mem.SetBatchSize(cfg.BatchSize)
		logging.Warn().Msg("Using in-memory store; synced data is lost on exit")
		st = mem
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}

	if cfg.CircuitBreaker.Enabled {
		st = store.WithCircuitBreaker(st, cfg.Kind, cfg.BreakerSettings())
	}
	return store.WithRetry(st, cfg.RetryPolicy()), nil
}

func buildReporter(cfg config.CatalogConfig) (nsync.LastUpdatedReporter, error) {
	if !cfg.Enabled {
		return catalog.Noop{}, nil
	}
	client, err := catalog.New(catalog.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}
	return client, nil
}

// Close releases components in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		// Error level on failure, info otherwise.
		logging.Err(a.closers[i]()).Int("component", i).Msg("Component closed")
	}
	a.closers = nil
}
