// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package middleware provides HTTP middleware for the ops API: request IDs
// tied into the logging context, and Prometheus request metrics labeled by
// chi route pattern.
package middleware
