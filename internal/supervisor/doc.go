// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

/*
Package supervisor runs NRTSync's long-lived services under suture v4.

The tree has three layers so that a failing layer restarts on its own:

	RootSupervisor ("nrtsync")
	├── StorageSupervisor ("storage-layer")
	│   └── GCService (run ledger value-log GC, if the ledger is enabled)
	├── SyncSupervisor ("sync-layer")
	│   └── SyncService (sync.Manager)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if server.enabled)

Supervisor events are logged through sutureslog using the zerolog-backed
slog logger from the logging package.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)
*/
//nolint:staticcheck // File documentation, not package doc
package supervisor
