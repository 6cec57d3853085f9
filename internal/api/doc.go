// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

/*
Package api serves the NRTSync ops HTTP API on a chi router.

Routes:

	GET  /api/v1/health/live           process is up
	GET  /api/v1/health/ready          every readiness check passes
	GET  /metrics                      Prometheus exposition
	GET  /api/v1/datasets              configured datasets and their last run
	GET  /api/v1/datasets/{id}         one dataset
	GET  /api/v1/datasets/{id}/runs    run ledger, newest first (?limit=n)
	POST /api/v1/datasets/{id}/sync    manual trigger (?wait=true blocks)

Every response is an APIResponse envelope encoded with goccy/go-json.
/api/v1 routes are rate limited per client IP with go-chi/httprate.
*/
//nolint:staticcheck // File documentation, not package doc
package api
