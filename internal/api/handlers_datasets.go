// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/nrtsync/internal/logging"
	nsync "github.com/tomtom215/nrtsync/internal/sync"
	"github.com/tomtom215/nrtsync/internal/validation"
)

// DefaultRunsLimit is the page size of the runs endpoint.
const DefaultRunsLimit = 20

// DatasetView is the API representation of a configured dataset.
type DatasetView struct {
	ID              string            `json:"id"`
	Table           string            `json:"table"`
	UIDColumn       string            `json:"uid_column"`
	TimeColumn      string            `json:"time_column"`
	Columns         []string          `json:"columns"`
	IntervalSeconds float64           `json:"interval_seconds"`
	MaxRows         int               `json:"max_rows,omitempty"`
	Overflow        string            `json:"overflow,omitempty"`
	MinPages        int               `json:"min_pages"`
	MaxPages        int               `json:"max_pages"`
	Syncing         bool              `json:"syncing"`
	LastRun         *nsync.RunSummary `json:"last_run,omitempty"`
}

// RunsRequest holds the query parameters of the runs endpoint.
type RunsRequest struct {
	Limit int `json:"limit" validate:"min=1,max=1000"`
}

func (h *Handler) datasetView(id string) (DatasetView, bool) {
	ds, interval, ok := h.manager.Dataset(id)
	if !ok {
		return DatasetView{}, false
	}
	v := DatasetView{
		ID:              ds.ID,
		Table:           ds.Table,
		UIDColumn:       ds.UIDColumn,
		TimeColumn:      ds.TimeColumn,
		Columns:         ds.Schema.Names(),
		IntervalSeconds: interval.Seconds(),
		MaxRows:         ds.Retention.MaxRows,
		Overflow:        string(ds.Retention.Overflow),
		MinPages:        ds.MinPages,
		MaxPages:        ds.MaxPages,
		Syncing:         h.manager.IsSyncing(id),
	}
	if res, ok := h.manager.LastResult(id); ok {
		s := res.Summary()
		v.LastRun = &s
	}
	return v, true
}

// ListDatasets returns every configured dataset with its last run.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	ids := h.manager.Datasets()
	views := make([]DatasetView, 0, len(ids))
	for _, id := range ids {
		if v, ok := h.datasetView(id); ok {
			views = append(views, v)
		}
	}
	respondData(w, r, http.StatusOK, views)
}

// GetDataset returns one dataset.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, ok := h.datasetView(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown dataset", nil)
		return
	}
	respondData(w, r, http.StatusOK, v)
}

// ListRuns returns ledger entries for a dataset, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := h.manager.Dataset(id); !ok {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown dataset", nil)
		return
	}
	if h.history == nil {
		respondError(w, r, http.StatusServiceUnavailable, "RUNLOG_DISABLED", "run ledger is disabled", nil)
		return
	}

	req := RunsRequest{Limit: DefaultRunsLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		req.Limit = n
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}

	runs, err := h.history.List(r.Context(), id, req.Limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "RUNLOG_ERROR", "failed to read run ledger", err)
		return
	}
	if runs == nil {
		runs = []nsync.RunSummary{}
	}
	respondData(w, r, http.StatusOK, runs)
}

// TriggerSync starts a run of one dataset. With ?wait=true the request
// blocks and returns the run summary; otherwise the run continues in the
// background and 202 is returned. A run already in progress is 409.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := h.manager.Dataset(id); !ok {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown dataset", nil)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if h.manager.IsSyncing(id) {
			respondError(w, r, http.StatusConflict, "RUN_IN_PROGRESS", "a run is already in progress", nil)
			return
		}
		// The run outlives the request but keeps its logger and correlation ID.
		ctx := context.WithoutCancel(r.Context())
		h.triggered.Add(1)
		go func() {
			defer h.triggered.Done()
			if _, err := h.manager.TriggerSync(ctx, id); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("dataset", id).Msg("Manual sync not started")
			}
		}()
		respondData(w, r, http.StatusAccepted, map[string]any{"dataset": id, "started": true})
		return
	}

	res, err := h.manager.TriggerSync(r.Context(), id)
	switch {
	case errors.Is(err, nsync.ErrRunInProgress):
		respondError(w, r, http.StatusConflict, "RUN_IN_PROGRESS", "a run is already in progress", nil)
		return
	case errors.Is(err, nsync.ErrUnknownDataset):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown dataset", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, "SYNC_ERROR", "failed to run sync", err)
		return
	}
	respondData(w, r, http.StatusOK, res.Summary())
}
