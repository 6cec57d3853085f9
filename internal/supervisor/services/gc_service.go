// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/nrtsync/internal/logging"
)

// DefaultGCInterval is how often the run ledger is garbage collected.
const DefaultGCInterval = 10 * time.Minute

// GarbageCollector is satisfied by *runlog.Ledger.
type GarbageCollector interface {
	RunGC() error
}

// GCService periodically compacts the run ledger. GC errors are logged and
// do not fail the service.
type GCService struct {
	gc       GarbageCollector
	interval time.Duration
	name     string
}

// NewGCService creates the wrapper. A non-positive interval becomes
// DefaultGCInterval.
func NewGCService(gc GarbageCollector, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &GCService{gc: gc, interval: interval, name: "runlog-gc"}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.gc.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Run ledger garbage collection failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *GCService) String() string {
	return s.name
}
