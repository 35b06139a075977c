// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package scheduler

import "errors"

var (
	// ErrFullBackupFailed is returned when a full backup fails. Without a
	// full backup no chain can be started, so the loop stops.
	ErrFullBackupFailed = errors.New("full backup failed")

	// ErrSnapshotPanic is returned when the host panics while taking an
	// incremental snapshot.
	ErrSnapshotPanic = errors.New("snapshot panicked")

	// ErrVaultNotSet is returned when backups are enabled without a vault.
	ErrVaultNotSet = errors.New("vault not set")

	// ErrSnapshotterNotSet is returned when backups are enabled without a snapshotter.
	ErrSnapshotterNotSet = errors.New("snapshotter not set")

	// ErrRestorerNotSet is returned when backups are enabled without a restorer.
	ErrRestorerNotSet = errors.New("restorer not set")

	// ErrInvalidMode is returned for an unknown backup mode.
	ErrInvalidMode = errors.New("invalid backup mode")
)
