// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package source defines the paged record fetcher contract consumed by the
// sync engine, and the adapters that implement it.
//
// Fetchers classify their failures. A *TransientFetchError means the page
// may succeed later; the engine retries it briefly and then skips it. A
// *FatalFetchError means no further page can succeed (bad credentials, a
// removed endpoint) and the run is aborted.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/nrtsync/internal/record"
)

// PageRequest identifies the page to fetch. Number counts from zero. Token
// is the continuation token returned by the previous page, if the source
// uses tokens.
type PageRequest struct {
	Number int
	Token  string
}

// Page is one page of records.
type Page struct {
	Records []record.Record
	// Next is the continuation token for the following page.
	Next string
	// HasMore is false when the source has no further pages.
	HasMore bool
}

// Fetcher produces pages of source records.
type Fetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req PageRequest) (Page, error)

// FetchPage calls f(ctx, req).
func (f FetcherFunc) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	return f(ctx, req)
}

// TransientFetchError is a page failure that may succeed on a later attempt.
type TransientFetchError struct {
	Page   int
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient fetch error on page %d (status %d): %v", e.Page, e.Status, e.Err)
	}
	return fmt.Sprintf("transient fetch error on page %d: %v", e.Page, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// FatalFetchError is a failure that ends the run.
type FatalFetchError struct {
	Page   int
	Status int
	Err    error
}

func (e *FatalFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fatal fetch error on page %d (status %d): %v", e.Page, e.Status, e.Err)
	}
	return fmt.Sprintf("fatal fetch error on page %d: %v", e.Page, e.Err)
}

func (e *FatalFetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a *TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsFatal reports whether err is a *FatalFetchError.
func IsFatal(err error) bool {
	var fe *FatalFetchError
	return errors.As(err, &fe)
}
