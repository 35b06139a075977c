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

package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

var (
	// ErrCompressionFailed is returned when a snapshot directory cannot be packaged.
	ErrCompressionFailed = errors.New("compression failed")

	// ErrUploadFailed is returned when an archive cannot be written to the store.
	ErrUploadFailed = errors.New("upload failed")

	// ErrNoFullBackup is returned when an incremental backup is requested
	// before any full backup exists for the partition.
	ErrNoFullBackup = errors.New("no full backup to base incremental on")

	// ErrIncompleteChain is returned when the current chain has missing or
	// duplicated sequence numbers.
	ErrIncompleteChain = errors.New("backup chain is incomplete")

	// ErrDownloadFailed is returned when an archive cannot be fetched.
	ErrDownloadFailed = errors.New("download failed")

	// ErrExtractionFailed is returned when an archive cannot be unpacked.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrNoBackupAvailable is returned when the container holds no full backup.
	ErrNoBackupAvailable = errors.New("no backup available")

	// ErrInterrupted is returned when an operation is cancelled. It is retryable.
	ErrInterrupted = errors.New("operation interrupted")

	// ErrArchivePersisted marks an archive error raised after the object was
	// stored. Local cleanup was skipped; the archive itself is valid.
	ErrArchivePersisted = errors.New("archive persisted")

	// ErrSequenceConflict is returned when another writer stored an archive
	// with the same sequence number. The archive just written is removed.
	ErrSequenceConflict = errors.New("sequence number already taken")

	// ErrNotRestoreDirectory is returned when a path given for removal was
	// not produced by a restore of this vault.
	ErrNotRestoreDirectory = errors.New("not a restore directory")

	// ErrRestoreNotFound is returned when a restore directory no longer exists.
	ErrRestoreNotFound = errors.New("restore directory not found")

	// ErrInvalidKey is returned when an object key does not follow the archive key format.
	ErrInvalidKey = errors.New("invalid archive key")

	// ErrInvalidKind is returned for an unknown backup kind.
	ErrInvalidKind = errors.New("invalid backup kind")

	// ErrStoreNotSet is returned when a Vault is created without a store.
	ErrStoreNotSet = errors.New("archive store not set")

	// ErrTempDirectoryNotSet is returned when a Vault is created without a temp directory.
	ErrTempDirectoryNotSet = errors.New("local temp directory not set")
)

// IsRetryable reports whether an operation that failed with err may succeed
// when attempted again without operator action.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInterrupted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrUploadFailed),
		errors.Is(err, ErrSequenceConflict),
		errors.Is(err, ErrDownloadFailed):
		return true
	case errors.Is(err, ErrIncompleteChain),
		errors.Is(err, ErrExtractionFailed),
		errors.Is(err, ErrNoBackupAvailable),
		errors.Is(err, ErrNoFullBackup),
		errors.Is(err, ErrCompressionFailed),
		errors.Is(err, ErrNotRestoreDirectory),
		errors.Is(err, ErrRestoreNotFound),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, common.ErrNotConfigured):
		return false
	}
	var validationErr *common.ValidationError
	return !errors.As(err, &validationErr)
}

// interrupted wraps a context error as ErrInterrupted.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}
