// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package api

import (
	"context"
	stdsync "sync"
	"time"

	nsync "github.com/tomtom215/nrtsync/internal/sync"
)

// SyncManager is the part of *sync.Manager the API drives.
type SyncManager interface {
	Datasets() []string
	Dataset(id string) (*nsync.Dataset, time.Duration, bool)
	LastResult(id string) (nsync.RunResult, bool)
	IsSyncing(id string) bool
	TriggerSync(ctx context.Context, id string) (nsync.RunResult, error)
}

// RunHistory is satisfied by *runlog.Ledger.
type RunHistory interface {
	List(ctx context.Context, dataset string, limit int) ([]nsync.RunSummary, error)
}

// ReadinessCheck reports whether one dependency is ready.
type ReadinessCheck func(ctx context.Context) error

// Handler holds the API's dependencies.
type Handler struct {
	manager SyncManager
	history RunHistory
	checks  map[string]ReadinessCheck

	startTime time.Time

	// triggered tracks background runs started by the sync endpoint.
	triggered stdsync.WaitGroup
}

// NewHandler creates a Handler. history may be nil when the run ledger is
// disabled.
func NewHandler(manager SyncManager, history RunHistory, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		manager:   manager,
		history:   history,
		checks:    checks,
		startTime: time.Now(),
	}
}

// Wait blocks until background runs started through the API finish.
func (h *Handler) Wait() {
	h.triggered.Wait()
}
