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

package watcher

import (
	"errors"
	"fmt"
)

var (
	// ErrWatcherStopped is returned when operations are attempted on a stopped watcher.
	ErrWatcherStopped = errors.New("watcher is stopped")

	// ErrWatcherStarted is returned when Start is called twice.
	ErrWatcherStarted = errors.New("watcher already started")

	// ErrInboxNotSet is returned when no inbox directory is configured.
	ErrInboxNotSet = errors.New("inbox directory not set")

	// ErrArchiverNotSet is returned when no archiver is configured.
	ErrArchiverNotSet = errors.New("archiver not set")

	// ErrSnapshotDirMissing is returned when a marker names a directory
	// that does not exist.
	ErrSnapshotDirMissing = errors.New("snapshot directory missing")
)

// WatcherError represents an error from the inbox watcher.
type WatcherError struct {
	Op   string
	Path string
	Err  error
}

func (e *WatcherError) Error() string {
	return fmt.Sprintf("watcher %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WatcherError) Unwrap() error {
	return e.Err
}
