// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

/*
manager.go - Sync Manager Lifecycle and Scheduling

This file contains the manager that owns one Engine per dataset and decides
when each of them runs.

Manager Components:
  - Engine: one per dataset, runs bootstrap, paging, retention and freshness
  - RunObserver: notified after every run (run ledger, run events)

Lifecycle Methods:
  - NewManager(): Initialize manager with observers
  - Add(): Register a dataset engine and its interval (one dataset per table)
  - Start(): Run every dataset once, then on its interval
  - Stop(): Stop the loops and wait for in-flight runs
  - TriggerSync(): Manual run of one dataset (rejected while one is running)
  - RunOnce(): Run every dataset once, concurrently, and return the results
  - LastResult(): Query the most recent run of a dataset

Thread Safety:
  - mu: Protects shared state (running, datasets, stopChan)
  - dataset.runMu: Serializes runs of the same dataset
  - dataset.resultMu: Protects the last result
  - All loops use a WaitGroup for coordinated shutdown
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"strings"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/nrtsync/internal/logging"
)

// DefaultInterval is used for datasets registered without an interval.
const DefaultInterval = 5 * time.Minute

// RunObserver is notified after each completed run, successful or not.
type RunObserver interface {
	OnRunCompleted(ctx context.Context, res RunResult)
}

// RunObserverFunc adapts a function to RunObserver.
type RunObserverFunc func(ctx context.Context, res RunResult)

// OnRunCompleted implements RunObserver.
func (f RunObserverFunc) OnRunCompleted(ctx context.Context, res RunResult) { f(ctx, res) }

type dataset struct {
	engine   *Engine
	interval time.Duration

	runMu sync.Mutex

	resultMu sync.RWMutex
	last     *RunResult
}

// Manager schedules dataset runs. Different datasets run independently;
// runs of the same dataset never overlap.
type Manager struct {
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	datasets  map[string]*dataset
	observers []RunObserver
}

// NewManager creates a manager that notifies observers after every run.
func NewManager(observers ...RunObserver) *Manager {
	return &Manager{
		datasets:  make(map[string]*dataset),
		observers: observers,
	}
}

// Add registers an engine. Adding to a running manager is not allowed.
func (m *Manager) Add(engine *Engine, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrManagerRunning
	}
	id := engine.Dataset().ID
	if _, ok := m.datasets[id]; ok {
		return fmt.Errorf("dataset %q registered twice", id)
	}
	table := strings.ToLower(engine.Dataset().Table)
	for otherID, other := range m.datasets {
		if strings.ToLower(other.engine.Dataset().Table) == table {
			return fmt.Errorf("dataset %q, table %q used by %q: %w", id, engine.Dataset().Table, otherID, ErrTableShared)
		}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.datasets[id] = &dataset{engine: engine, interval: interval}
	return nil
}

// Start runs every dataset immediately and then on its interval until ctx
// is canceled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrManagerRunning
	}

	logging.Info().Int("datasets", len(m.datasets)).Msg("Starting sync manager...")

	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	// Add all goroutines to the WaitGroup before starting them so Stop
	// cannot Wait before every Add.
	m.wg.Add(len(m.datasets))
	for _, ds := range m.datasets {
		go m.syncLoop(ctx, ds, stop)
	}
	m.mu.Unlock()
	return nil
}

// Stop ends the loops and waits for in-flight runs to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

// IsRunning reports whether the scheduling loops are active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) syncLoop(ctx context.Context, ds *dataset, stop <-chan struct{}) {
	defer m.wg.Done()

	m.tryRun(ctx, ds)

	ticker := time.NewTicker(ds.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.tryRun(ctx, ds)
		}
	}
}

// tryRun runs ds unless a run is already in progress.
func (m *Manager) tryRun(ctx context.Context, ds *dataset) {
	if !ds.runMu.TryLock() {
		logging.Debug().Str("dataset", ds.engine.Dataset().ID).Msg("Skipping scheduled run, previous run still in progress")
		return
	}
	defer ds.runMu.Unlock()
	m.run(ctx, ds)
}

// run executes one run; the caller holds ds.runMu.
func (m *Manager) run(ctx context.Context, ds *dataset) RunResult {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	res := ds.engine.Run(ctx)

	ds.resultMu.Lock()
	ds.last = &res
	ds.resultMu.Unlock()

	for _, o := range m.observers {
		o.OnRunCompleted(ctx, res)
	}
	return res
}

func (m *Manager) lookup(id string) (*dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	return ds, nil
}

// TriggerSync runs one dataset now. It returns ErrRunInProgress without
// waiting if that dataset is already running.
func (m *Manager) TriggerSync(ctx context.Context, id string) (RunResult, error) {
	ds, err := m.lookup(id)
	if err != nil {
		return RunResult{}, err
	}
	if !ds.runMu.TryLock() {
		return RunResult{}, fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	defer ds.runMu.Unlock()
	return m.run(ctx, ds), nil
}

// RunOnce runs every dataset once, concurrently, and returns the results
// ordered by dataset id. It waits for runs already in progress.
func (m *Manager) RunOnce(ctx context.Context) []RunResult {
	ids := m.Datasets()
	results := make([]RunResult, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		ds, err := m.lookup(id)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(i int, ds *dataset) {
			defer wg.Done()
			ds.runMu.Lock()
			defer ds.runMu.Unlock()
			results[i] = m.run(ctx, ds)
		}(i, ds)
	}
	wg.Wait()
	return results
}

// IsSyncing reports whether a run of id is in progress.
func (m *Manager) IsSyncing(id string) bool {
	ds, err := m.lookup(id)
	if err != nil {
		return false
	}
	if ds.runMu.TryLock() {
		ds.runMu.Unlock()
		return false
	}
	return true
}

// LastResult returns the most recent run of id.
func (m *Manager) LastResult(id string) (RunResult, bool) {
	ds, err := m.lookup(id)
	if err != nil {
		return RunResult{}, false
	}
	ds.resultMu.RLock()
	defer ds.resultMu.RUnlock()
	if ds.last == nil {
		return RunResult{}, false
	}
	return *ds.last, true
}

// Datasets returns the registered dataset ids in sorted order.
func (m *Manager) Datasets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.datasets))
	for id := range m.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dataset returns the definition and interval of id.
func (m *Manager) Dataset(id string) (*Dataset, time.Duration, bool) {
	ds, err := m.lookup(id)
	if err != nil {
		return nil, 0, false
	}
	return ds.engine.Dataset(), ds.interval, true
}
