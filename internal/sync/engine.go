// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/nrtsync/internal/logging"
	"github.com/tomtom215/nrtsync/internal/metrics"
	"github.com/tomtom215/nrtsync/internal/record"
	"github.com/tomtom215/nrtsync/internal/schema"
	"github.com/tomtom215/nrtsync/internal/source"
	"github.com/tomtom215/nrtsync/internal/store"
)

// State is the phase of a sync run.
type State int

const (
	StateBootstrapping State = iota
	StatePaging
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StatePaging:
		return "paging"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stop reasons reported in RunResult.Reason.
const (
	ReasonExhausted   = "source exhausted"
	ReasonNoNewRows   = "no new rows"
	ReasonMaxPages    = "max pages reached"
	ReasonDeadline    = "paging deadline reached"
	ReasonRowCap      = "max rows accepted"
	ReasonTokenLost   = "continuation token lost"
	ReasonFetchFailed = "fetch failed"
	ReasonStoreFailed = "store failed"
	ReasonCanceled    = "canceled"
)

// RunResult summarizes one sync run.
type RunResult struct {
	Dataset string
	RunID   string
	State   State

	NewRows       int
	PagesFetched  int
	PagesSkipped  int
	RowsSkipped   int
	RowsRejected  int
	RowsTruncated int
	RowsDropped   int

	Reason      string
	DeadlineHit bool
	LastUpdated time.Time
	StartedAt   time.Time
	Duration    time.Duration
	Err         error
}

// Failed reports whether the run ended in StateFailed.
func (r RunResult) Failed() bool { return r.State == StateFailed }

// Engine runs the bootstrap, paging, retention and freshness steps for one
// dataset. An Engine is not safe for concurrent Runs; the Manager serializes
// them.
type Engine struct {
	ds        *Dataset
	store     store.Store
	fetcher   source.Fetcher
	retention *Retention
	freshness *FreshnessReporter
	uidIndex  int

	now      func() time.Time
	newRunID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for run timing and age cutoffs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.retention.now = now
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) { e.newRunID = next }
}

// NewEngine validates ds and returns an Engine that syncs it from fetcher
// into st. reporter may be nil.
func NewEngine(ds *Dataset, st store.Store, fetcher source.Fetcher, reporter LastUpdatedReporter, opts ...Option) (*Engine, error) {
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", ds.ID, err)
	}
	if st == nil || fetcher == nil {
		return nil, fmt.Errorf("dataset %q: store and fetcher are required", ds.ID)
	}
	idx, _ := ds.Schema.Index(ds.UIDColumn)

	e := &Engine{
		ds:        ds,
		store:     st,
		fetcher:   fetcher,
		retention: NewRetention(st, ds),
		freshness: NewFreshnessReporter(st, reporter, ds),
		uidIndex:  idx,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dataset returns the dataset definition.
func (e *Engine) Dataset() *Dataset { return e.ds }

// Run performs one sync run. The returned result is complete whether the
// run succeeded or not; rows inserted before a failure stay inserted.
func (e *Engine) Run(ctx context.Context) RunResult {
	res := RunResult{
		Dataset:   e.ds.ID,
		RunID:     e.newRunID(),
		State:     StateBootstrapping,
		StartedAt: e.now(),
	}

	logger := logging.LoggerFromContext(ctx).With().
		Str("dataset", e.ds.ID).
		Str("run_id", res.RunID).
		Logger()
	ctx = logging.ContextWithLogger(ctx, logger)
	defer e.finish(ctx, &res)

	ids, err := e.bootstrap(ctx)
	if err != nil {
		e.fail(ctx, &res, err)
		return res
	}

	res.State = StatePaging
	if err := e.page(ctx, ids, &res); err != nil {
		e.fail(ctx, &res, err)
		return res
	}

	res.State = StateDraining
	logging.Ctx(ctx).Debug().Int("new_rows", res.NewRows).Str("reason", res.Reason).Msg("Paging finished")

	dropped, err := e.retention.Trim(ctx)
	res.RowsDropped = dropped
	if err != nil {
		e.fail(ctx, &res, fmt.Errorf("retention: %w", err))
		return res
	}

	if ts, err := e.freshness.ReportFreshness(ctx, res.NewRows); err == nil {
		res.LastUpdated = ts
	}

	res.State = StateDone
	return res
}

func (e *Engine) finish(ctx context.Context, res *RunResult) {
	res.Duration = e.now().Sub(res.StartedAt)

	metrics.RecordSyncRun(metrics.RunStats{
		Dataset:       res.Dataset,
		Failed:        res.Failed(),
		Duration:      res.Duration,
		NewRows:       res.NewRows,
		PagesFetched:  res.PagesFetched,
		PagesSkipped:  res.PagesSkipped,
		RowsRejected:  res.RowsRejected,
		RowsTruncated: res.RowsTruncated,
		RowsDropped:   res.RowsDropped,
	})

	event := logging.Ctx(ctx).Info()
	if res.Failed() {
		event = logging.Ctx(ctx).Error().Err(res.Err)
	}
	event.
		Str("state", res.State.String()).
		Str("reason", res.Reason).
		Int("new_rows", res.NewRows).
		Int("pages_fetched", res.PagesFetched).
		Int("pages_skipped", res.PagesSkipped).
		Int("rows_skipped", res.RowsSkipped).
		Int("rows_rejected", res.RowsRejected).
		Int("rows_truncated", res.RowsTruncated).
		Int("rows_dropped", res.RowsDropped).
		Bool("deadline_hit", res.DeadlineHit).
		Dur("duration", res.Duration).
		Msg("Sync run finished")
}

func (e *Engine) fail(ctx context.Context, res *RunResult, err error) {
	res.State = StateFailed
	res.Err = err
	switch {
	case ctx.Err() != nil:
		res.Reason = ReasonCanceled
	case source.IsFatal(err):
		res.Reason = ReasonFetchFailed
	default:
		var se *store.Error
		if errors.As(err, &se) {
			res.Reason = ReasonStoreFailed
		} else if res.Reason == "" {
			res.Reason = err.Error()
		}
	}
}

// bootstrap creates the table on first run, or loads the known UIDs newest
// first.
func (e *Engine) bootstrap(ctx context.Context) (*IDSet, error) {
	exists, err := e.store.TableExists(ctx, e.ds.Table)
	if err != nil {
		return nil, fmt.Errorf("check table %s: %w", e.ds.Table, err)
	}

	if !exists {
		logging.Ctx(ctx).Info().Str("table", e.ds.Table).Msg("Creating table")
		if err := e.store.CreateTable(ctx, e.ds.Table, e.ds.Schema); err != nil {
			return nil, fmt.Errorf("create table %s: %w", e.ds.Table, err)
		}
		if err := e.store.CreateIndex(ctx, e.ds.Table, []string{e.ds.UIDColumn}, true); err != nil {
			return nil, fmt.Errorf("create uid index: %w", err)
		}
		if err := e.store.CreateIndex(ctx, e.ds.Table, []string{e.ds.TimeColumn}, false); err != nil {
			return nil, fmt.Errorf("create time index: %w", err)
		}
		return NewIDSet(nil), nil
	}

	ids, err := e.store.QueryColumn(ctx, e.ds.Table, e.ds.UIDColumn, &store.Order{Column: e.ds.TimeColumn, Desc: true})
	if err != nil {
		return nil, fmt.Errorf("load uids: %w", err)
	}
	logging.Ctx(ctx).Debug().Int("known_ids", len(ids)).Msg("Loaded known ids")
	return NewIDSet(ids), nil
}

// page fetches and inserts pages until a stop condition holds. Inserts use
// ctx rather than the paging deadline so an accepted page is never cut off
// mid-write.
func (e *Engine) page(ctx context.Context, ids *IDSet, res *RunResult) error {
	pagingCtx := ctx
	if e.ds.PagingTimeout > 0 {
		var cancel context.CancelFunc
		pagingCtx, cancel = context.WithTimeout(ctx, e.ds.PagingTimeout)
		defer cancel()
	}

	var (
		req      source.PageRequest
		accepted int
		attempts int
	)
	for attempts < e.ds.MaxPages {
		page, err := e.fetch(pagingCtx, req)
		attempts++

		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case pagingCtx.Err() != nil:
				res.DeadlineHit = true
				res.Reason = ReasonDeadline
				return nil
			case source.IsTransient(err):
				res.PagesSkipped++
				logging.Ctx(ctx).Error().Err(err).Int("page", req.Number).Msg("Skipping page after transient fetch errors")
				if req.Token != "" {
					res.Reason = ReasonTokenLost
					return nil
				}
				req = source.PageRequest{Number: req.Number + 1}
				continue
			default:
				metrics.RecordFatalFetch(e.ds.ID)
				return fmt.Errorf("fetch page %d: %w", req.Number, err)
			}
		}
		res.PagesFetched++

		newRows, err := e.ingest(ctx, page.Records, ids, res, &accepted)
		if err != nil {
			return err
		}

		switch {
		case e.capped(accepted):
			res.Reason = ReasonRowCap
			return nil
		case !page.HasMore:
			res.Reason = ReasonExhausted
			return nil
		case newRows == 0 && attempts >= e.ds.MinPages:
			res.Reason = ReasonNoNewRows
			return nil
		case pagingCtx.Err() != nil:
			res.DeadlineHit = true
			res.Reason = ReasonDeadline
			return nil
		}
		req = source.PageRequest{Number: req.Number + 1, Token: page.Next}
	}

	res.Reason = ReasonMaxPages
	return nil
}

func (e *Engine) fetch(ctx context.Context, req source.PageRequest) (source.Page, error) {
	var page source.Page
	err := retryWithBackoff(ctx, e.ds.FetchRetries+1, e.ds.FetchRetryDelay, source.IsTransient, func() error {
		var err error
		page, err = e.fetcher.FetchPage(ctx, req)
		return err
	})
	return page, err
}

func (e *Engine) capped(accepted int) bool {
	p := e.ds.Retention
	return p.Overflow == OverflowTruncateBatch && p.MaxRows > 0 && accepted >= p.MaxRows
}

// ingest converts one page of records into rows and inserts them. It
// returns the number of rows inserted.
func (e *Engine) ingest(ctx context.Context, records []record.Record, ids *IDSet, res *RunResult, accepted *int) (int, error) {
	rows := make([]schema.Row, 0, len(records))
	for _, rec := range records {
		id, err := e.ds.UID(rec)
		if err != nil {
			res.RowsRejected++
			logging.Ctx(ctx).Warn().Err(err).Msg("Rejecting record without a usable uid")
			continue
		}
		if ids.Contains(id) {
			res.RowsSkipped++
			continue
		}
		if e.capped(*accepted) {
			res.RowsTruncated++
			continue
		}

		row, err := e.translate(rec, id)
		if err != nil {
			res.RowsRejected++
			ev := logging.Ctx(ctx).Warn().Err(err).Str("uid", id)
			var me *schema.MismatchError
			if errors.As(err, &me) {
				ev = ev.Str("column", me.Column)
			}
			ev.Msg("Rejecting record that does not match the schema")
			continue
		}

		if !ids.AddIfAbsent(id) {
			res.RowsSkipped++
			continue
		}
		*accepted++
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return 0, nil
	}
	if err := e.store.InsertRows(ctx, e.ds.Table, e.ds.Schema, rows); err != nil {
		res.NewRows += store.RowsWritten(err)
		return 0, fmt.Errorf("insert %d rows: %w", len(rows), err)
	}
	res.NewRows += len(rows)
	return len(rows), nil
}

func (e *Engine) translate(rec record.Record, id string) (schema.Row, error) {
	row, err := e.ds.Translator.Translate(rec)
	if err != nil {
		return nil, err
	}
	if len(row) != e.ds.Schema.Len() {
		return nil, &schema.MismatchError{
			Index:  -1,
			Reason: fmt.Sprintf("row has %d values, schema has %d columns", len(row), e.ds.Schema.Len()),
		}
	}
	row[e.uidIndex] = id
	return e.ds.Schema.Normalize(row)
}
