// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

package sync

import "errors"

var (
	// ErrRetentionPolicyConflict is returned when a retention policy cannot
	// be applied without guessing the operator's intent.
	ErrRetentionPolicyConflict = errors.New("retention policy conflict")

	// ErrRunInProgress is returned when a dataset is already syncing.
	ErrRunInProgress = errors.New("sync already in progress")

	// ErrUnknownDataset is returned for a dataset ID the manager does not own.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrTableShared is returned when two datasets would write one table.
	ErrTableShared = errors.New("table already owned by another dataset")

	// ErrManagerRunning is returned by Start on a running manager.
	ErrManagerRunning = errors.New("sync manager already running")
)
