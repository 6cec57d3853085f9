// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

/*
Package sync runs dataset synchronization: fetch, deduplicate, insert,
retention trim and freshness report.

An Engine owns one dataset. Each call to Run moves through

	Bootstrapping -> Paging -> Draining -> Done

and ends in Failed if a store operation or a fatal fetch fails, or if the
caller cancels the context. Rows inserted before a failure stay in the
table; the next run deduplicates against them.

Bootstrapping creates the table (with a unique index on the UID column and
an index on the time column) or loads the existing UIDs into an in-memory
IDSet. Paging fetches pages until the source is exhausted, a page adds no
new rows after MinPages, MaxPages is reached, or the paging deadline
expires. Each page's new rows are inserted before the next page is
requested. Draining applies the retention policy (age first, then row
count) and reports the newest time value to the catalog.

The Manager schedules Engines. Runs of the same dataset are serialised;
different datasets run concurrently and share nothing.

Thread Safety:
  - IDSet: mutex-protected check-and-insert
  - Manager.mu: protects running state and last results
  - Per-dataset run mutex: one run per dataset at a time
*/
package sync
