// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import "time"

// RunSummary is the serializable form of a RunResult, shared by the run
// ledger, run events and the ops API.
type RunSummary struct {
	Dataset       string     `json:"dataset"`
	RunID         string     `json:"run_id"`
	State         string     `json:"state"`
	NewRows       int        `json:"new_rows"`
	PagesFetched  int        `json:"pages_fetched"`
	PagesSkipped  int        `json:"pages_skipped"`
	RowsSkipped   int        `json:"rows_skipped"`
	RowsRejected  int        `json:"rows_rejected"`
	RowsTruncated int        `json:"rows_truncated"`
	RowsDropped   int        `json:"rows_dropped"`
	Reason        string     `json:"reason,omitempty"`
	DeadlineHit   bool       `json:"deadline_hit,omitempty"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	DurationMS    int64      `json:"duration_ms"`
	Error         string     `json:"error,omitempty"`
}

// Summary converts r for storage and transport.
func (r RunResult) Summary() RunSummary {
	s := RunSummary{
		Dataset:       r.Dataset,
		RunID:         r.RunID,
		State:         r.State.String(),
		NewRows:       r.NewRows,
		PagesFetched:  r.PagesFetched,
		PagesSkipped:  r.PagesSkipped,
		RowsSkipped:   r.RowsSkipped,
		RowsRejected:  r.RowsRejected,
		RowsTruncated: r.RowsTruncated,
		RowsDropped:   r.RowsDropped,
		Reason:        r.Reason,
		DeadlineHit:   r.DeadlineHit,
		StartedAt:     r.StartedAt.UTC(),
		DurationMS:    r.Duration.Milliseconds(),
	}
	if !r.LastUpdated.IsZero() {
		ts := r.LastUpdated.UTC()
		s.LastUpdated = &ts
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Failed reports whether the summarized run failed.
func (s RunSummary) Failed() bool { return s.State == StateFailed.String() }
