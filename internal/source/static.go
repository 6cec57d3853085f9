// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package source

import (
	"context"
	"sync"

	"github.com/tomtom215/nrtsync/internal/record"
)

// Static serves a fixed list of pages. Errors, when set for a page number,
// is returned instead of that page. Used for tests and replays.
type Static struct {
	Pages  [][]record.Record
	Errors map[int]error

	mu    sync.Mutex
	calls []PageRequest
}

// NewStatic creates a fetcher that serves pages in order.
func NewStatic(pages ...[]record.Record) *Static {
	return &Static{Pages: pages}
}

// FetchPage implements Fetcher. Requests past the last page return an empty
// final page.
func (s *Static) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if err, ok := s.Errors[req.Number]; ok {
		return Page{}, err
	}
	if req.Number >= len(s.Pages) {
		return Page{}, nil
	}
	return Page{
		Records: s.Pages[req.Number],
		HasMore: req.Number+1 < len(s.Pages),
	}, nil
}

// Calls returns the requests received so far.
func (s *Static) Calls() []PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PageRequest, len(s.calls))
	copy(out, s.calls)
	return out
}
