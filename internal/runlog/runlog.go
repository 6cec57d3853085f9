// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package runlog keeps a durable ledger of sync runs in BadgerDB.
//
// Each completed run is stored as a JSON encoded sync.RunSummary under
//
//	run:{dataset}:{started_at unix nanos, zero padded}:{run_id}
//
// so a reverse prefix scan returns a dataset's runs newest first. Only the
// newest Keep runs per dataset are retained.
package runlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/nrtsync/internal/logging"
	nsync "github.com/tomtom215/nrtsync/internal/sync"
)

// DefaultKeep is the number of runs retained per dataset.
const DefaultKeep = 100

const prefixRun = "run:"

// ErrClosed is returned by operations on a closed ledger.
var ErrClosed = errors.New("run ledger is closed")

// Config configures the ledger.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// Keep is the number of runs retained per dataset.
	Keep int

	SyncWrites bool
}

// Ledger stores run summaries. Safe for concurrent use.
type Ledger struct {
	db   *badger.DB
	keep int

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the ledger.
func Open(cfg Config) (*Ledger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("runlog: path is required unless in_memory is set")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}

	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Int("keep", keep).Msg("Run ledger opened")
	return &Ledger{db: db, keep: keep}, nil
}

func datasetPrefix(dataset string) []byte {
	return []byte(prefixRun + dataset + ":")
}

func runKey(s nsync.RunSummary) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixRun, s.Dataset, s.StartedAt.UnixNano(), s.RunID))
}

func (l *Ledger) checkOpen() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// Append stores a run summary and trims the dataset to the newest Keep runs.
func (l *Ledger) Append(s nsync.RunSummary) error {
	if err := l.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(s), data); err != nil {
			return fmt.Errorf("write run: %w", err)
		}
		return l.trim(txn, s.Dataset)
	})
}

// trim deletes the dataset's runs past the newest l.keep.
func (l *Ledger) trim(txn *badger.Txn, dataset string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)

	prefix := datasetPrefix(dataset)
	var stale [][]byte
	n := 0
	for it.Seek(seekEnd(prefix)); it.ValidForPrefix(prefix); it.Next() {
		n++
		if n > l.keep {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range stale {
		if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete run: %w", err)
		}
	}
	return nil
}

// seekEnd returns a key after every key with prefix, for reverse scans.
func seekEnd(prefix []byte) []byte {
	return append(bytes.Clone(prefix), 0xFF)
}

// OnRunCompleted records res. Ledger failures are logged and never affect
// the run.
func (l *Ledger) OnRunCompleted(ctx context.Context, res nsync.RunResult) {
	if err := l.Append(res.Summary()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("dataset", res.Dataset).Msg("Failed to record run in ledger")
	}
}

// List returns up to limit runs of dataset, newest first. limit <= 0
// returns every retained run.
func (l *Ledger) List(ctx context.Context, dataset string, limit int) ([]nsync.RunSummary, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}

	var runs []nsync.RunSummary
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := datasetPrefix(dataset)
		for it.Seek(seekEnd(prefix)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(runs) >= limit {
				return nil
			}

			item := it.Item()
			var s nsync.RunSummary
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &s) }); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Run ledger failed to unmarshal entry")
				continue
			}
			runs = append(runs, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Latest returns the newest run of dataset.
func (l *Ledger) Latest(ctx context.Context, dataset string) (nsync.RunSummary, bool, error) {
	runs, err := l.List(ctx, dataset, 1)
	if err != nil || len(runs) == 0 {
		return nsync.RunSummary{}, false, err
	}
	return runs[0], true, nil
}

// RunGC reclaims value log space.
func (l *Ledger) RunGC() error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	for {
		err := l.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the ledger. Further calls return ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Run ledger closed")
	return nil
}
