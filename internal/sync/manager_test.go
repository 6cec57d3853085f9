// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/tomtom215/nrtsync/internal/record"
	"github.com/tomtom215/nrtsync/internal/source"
	"github.com/tomtom215/nrtsync/internal/store"
)

// observedRuns collects results passed to OnRunCompleted.
type observedRuns struct {
	mu      gosync.Mutex
	results []RunResult
}

func (o *observedRuns) OnRunCompleted(_ context.Context, res RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, res)
}

func (o *observedRuns) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.results)
}

func newManagedEngine(t *testing.T, id string, f source.Fetcher) *Engine {
	t.Helper()
	ds := newTestDataset(t, func(d *Dataset) {
		d.ID = id
		d.Table = id
	})
	return newTestEngine(t, ds, store.NewMemory(), f, nil)
}

func TestManager_RunOnce(t *testing.T) {
	t.Parallel()

	obs := &observedRuns{}
	m := NewManager(obs)
	for _, id := range []string{"beta", "alpha"} {
		if err := m.Add(newManagedEngine(t, id, source.NewStatic([]record.Record{rec("A", 1)})), time.Minute); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	results := m.RunOnce(context.Background())
	if len(results) != 2 {
		t.Fatalf("RunOnce() returned %d results, want 2", len(results))
	}
	if results[0].Dataset != "alpha" || results[1].Dataset != "beta" {
		t.Errorf("results not ordered by dataset: %s, %s", results[0].Dataset, results[1].Dataset)
	}
	for _, r := range results {
		if r.Failed() || r.NewRows != 1 {
			t.Errorf("%s: %+v", r.Dataset, r)
		}
	}
	if obs.len() != 2 {
		t.Errorf("observer saw %d runs, want 2", obs.len())
	}
	if last, ok := m.LastResult("alpha"); !ok || last.NewRows != 1 {
		t.Errorf("LastResult(alpha) = %+v, %v", last, ok)
	}
}

func TestManager_AddDuplicate(t *testing.T) {
	t.Parallel()

	m := NewManager()
	e := newManagedEngine(t, "dup", source.NewStatic())
	if err := m.Add(e, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := m.Add(e, 0); err == nil {
		t.Error("second Add() error = nil")
	}
	if _, interval, ok := m.Dataset("dup"); !ok || interval != DefaultInterval {
		t.Errorf("Dataset(dup) interval = %v, ok = %v", interval, ok)
	}
}

func TestManager_AddRejectsSharedTable(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	newEngine := func(id, table string) *Engine {
		ds := newTestDataset(t, func(d *Dataset) {
			d.ID = id
			d.Table = table
		})
		return newTestEngine(t, ds, st, source.NewStatic(), nil)
	}

	m := NewManager()
	if err := m.Add(newEngine("a", "shared"), 0); err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}
	for _, table := range []string{"shared", "SHARED"} {
		err := m.Add(newEngine("b", table), 0)
		if !errors.Is(err, ErrTableShared) {
			t.Errorf("Add(b, %s) error = %v, want ErrTableShared", table, err)
		}
	}
	if _, _, ok := m.Dataset("b"); ok {
		t.Error("dataset b registered despite sharing a table")
	}
	if err := m.Add(newEngine("c", "other"), 0); err != nil {
		t.Errorf("Add(c) error = %v", err)
	}
}

func TestManager_TriggerSync(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := source.FetcherFunc(func(ctx context.Context, _ source.PageRequest) (source.Page, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
			return source.Page{}, ctx.Err()
		}
		return source.Page{Records: []record.Record{rec("A", 1)}}, nil
	})

	m := NewManager()
	if err := m.Add(newManagedEngine(t, "slow", blocking), time.Hour); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if _, err := m.TriggerSync(context.Background(), "missing"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("TriggerSync(missing) error = %v, want ErrUnknownDataset", err)
	}

	done := make(chan RunResult, 1)
	go func() {
		res, err := m.TriggerSync(context.Background(), "slow")
		if err != nil {
			t.Errorf("TriggerSync() error = %v", err)
		}
		done <- res
	}()

	<-started
	if !m.IsSyncing("slow") {
		t.Error("IsSyncing() = false during run")
	}
	if _, err := m.TriggerSync(context.Background(), "slow"); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent TriggerSync() error = %v, want ErrRunInProgress", err)
	}

	close(release)
	res := <-done
	if res.NewRows != 1 {
		t.Errorf("NewRows = %d, want 1", res.NewRows)
	}
	if m.IsSyncing("slow") {
		t.Error("IsSyncing() = true after run")
	}
}

func TestManager_StartStop(t *testing.T) {
	t.Parallel()

	obs := &observedRuns{}
	m := NewManager(obs)
	if err := m.Add(newManagedEngine(t, "loop", source.NewStatic([]record.Record{rec("A", 1)})), 10*time.Millisecond); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(ctx); !errors.Is(err, ErrManagerRunning) {
		t.Errorf("second Start() error = %v, want ErrManagerRunning", err)
	}
	if err := m.Add(newManagedEngine(t, "late", source.NewStatic()), 0); !errors.Is(err, ErrManagerRunning) {
		t.Errorf("Add() while running error = %v, want ErrManagerRunning", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for obs.len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if obs.len() < 2 {
		t.Fatalf("observer saw %d runs, want at least 2", obs.len())
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := m.Stop(); err == nil {
		t.Error("second Stop() error = nil")
	}

	// Later runs dedupe against the first.
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.results[0].NewRows != 1 || obs.results[1].NewRows != 0 {
		t.Errorf("NewRows = %d then %d, want 1 then 0", obs.results[0].NewRows, obs.results[1].NewRows)
	}
}
