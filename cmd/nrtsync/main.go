// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package main is the nrtsync entry point.
//
// Startup order:
//
//  1. Configuration: defaults, config file, environment (Koanf v2)
//  2. Logging: zerolog at the configured level and format
//  3. Store: CARTO, DuckDB, SQLite or memory, behind retry and circuit breaker
//  4. Run ledger (BadgerDB), run events (Watermill) and the catalog reporter
//  5. One Engine per dataset, registered with the sync Manager
//  6. Either a single pass over every dataset (sync.run_once) or the
//     supervisor tree with the Manager and the ops HTTP API
//
// In run-once mode the exit status is 1 if any dataset run failed. In
// service mode SIGINT and SIGTERM trigger a graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/nrtsync/internal/api"
	"github.com/tomtom215/nrtsync/internal/config"
	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/supervisor"
	"github.com/tomtom215/nrtsync/internal/supervisor/services"
	nsync "github.com/tomtom215/nrtsync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("nrtsync exited with error")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("store", cfg.Store.Kind).
		Int("datasets", len(cfg.Datasets)).
		Bool("run_once", cfg.Sync.RunOnce).
		Msg("Starting nrtsync")

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Sync.RunOnce {
		return runOnce(ctx, app.manager)
	}
	return serve(ctx, cfg, app)
}

// runOnce syncs every dataset once and fails if any run failed.
func runOnce(ctx context.Context, manager *nsync.Manager) error {
	results := manager.RunOnce(ctx)
	var failed []string
	for _, res := range results {
		if res.Failed() {
			failed = append(failed, res.Dataset)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d dataset runs failed: %v", len(failed), len(results), failed)
	}
	logging.Info().Int("datasets", len(results)).Msg("All dataset runs completed")
	return nil
}

// serve runs the supervisor tree until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config, app *app) error {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	if app.ledger != nil {
		tree.AddStorageService(services.NewGCService(app.ledger, services.DefaultGCInterval))
	}
	tree.AddSyncService(services.NewSyncService(app.manager))

	var handler *api.Handler
	if cfg.Server.Enabled {
		var history api.RunHistory
		if app.ledger != nil {
			history = app.ledger
		}
		handler = api.NewHandler(app.manager, history, map[string]api.ReadinessCheck{
			"sync_manager": func(context.Context) error {
				if !app.manager.IsRunning() {
					return errors.New("sync manager is not running")
				}
				return nil
			},
		})
		server := &http.Server{
			Addr: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler: api.NewRouter(handler, api.RouterConfig{
				RateLimitRequests: cfg.Server.RateLimitReqs,
				RateLimitWindow:   cfg.Server.RateLimitWindow,
			}),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("Ops API enabled")
	}

	logging.Info().Msg("Supervisor tree starting")
	err = tree.Serve(ctx)

	if handler != nil {
		handler.Wait()
	}
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree failed: %w", err)
	}
	logging.Info().Msg("nrtsync stopped")
	return nil
}
