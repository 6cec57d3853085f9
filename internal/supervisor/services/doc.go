// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

/*
Package services adapts NRTSync components to suture.Service.

  - HTTPServerService wraps *http.Server, shutting down gracefully on cancel
  - SyncService wraps sync.Manager's Start/Stop lifecycle
  - GCService runs run-ledger garbage collection on an interval

Each wrapper returns ctx.Err() on a clean shutdown and a wrapped error when
the component fails, so suture restarts it under its backoff policy.
*/
package services
