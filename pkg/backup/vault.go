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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// Config configures a Vault.
type Config struct {
	// Store holds the partition's archives.
	Store common.Storage
	// Container names the store container; it scopes local temporaries.
	Container string
	// KeyRange is the partition's key range, encoded in every key.
	KeyRange KeyRange
	// TempDirectory is the root for staged archives and restores.
	TempDirectory string
	// MaxBackupsToKeep is the retention bound used by DeleteBackups.
	MaxBackupsToKeep uint32
	// DownloadConcurrency bounds parallel downloads during restore.
	DownloadConcurrency int
	Logger              adapters.Logger
}

// Vault is the backup capability handed to the hosting replica: it archives
// snapshots, prunes old archives, restores the newest chain and lists what
// is stored.
type Vault struct {
	archiver  *Archiver
	retention *RetentionManager
	restorer  *RestoreCoordinator
	store     common.Storage
	keyRange  KeyRange
	policy    RetentionPolicy
	tempRoot  string
	logger    adapters.Logger
	metrics   *Metrics

	// mu serializes archives from this process.
	mu sync.Mutex
}

// New creates a Vault.
func New(cfg Config) (*Vault, error) {
	if cfg.Store == nil {
		return nil, ErrStoreNotSet
	}
	if cfg.TempDirectory == "" {
		return nil, ErrTempDirectoryNotSet
	}
	if cfg.Container == "" {
		return nil, common.ErrContainerNotSet
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}

	tempRoot := filepath.Join(cfg.TempDirectory, cfg.Container)
	if err := os.MkdirAll(tempRoot, 0750); err != nil {
		return nil, err
	}

	logger := cfg.Logger.WithFields(adapters.Field{Key: "container", Value: cfg.Container})
	metrics := NewMetrics()

	return &Vault{
		archiver:  NewArchiver(cfg.Store, tempRoot, logger, metrics),
		retention: NewRetentionManager(cfg.Store, cfg.KeyRange, logger, metrics),
		restorer:  NewRestoreCoordinator(cfg.Store, cfg.KeyRange, tempRoot, cfg.DownloadConcurrency, logger, metrics),
		store:     cfg.Store,
		keyRange:  cfg.KeyRange,
		policy:    RetentionPolicy{MaxBackupsToKeep: cfg.MaxBackupsToKeep},
		tempRoot:  tempRoot,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// ArchiveBackup archives localDir as the next backup of the given kind.
// The sequence number is taken from a fresh listing of the store, and the
// stored archive is checked against a second listing so that another writer
// on the same container cannot leave two archives with one sequence number.
// A successful full backup is followed by a prune; prune failures are
// logged only.
func (v *Vault) ArchiveBackup(ctx context.Context, localDir string, kind Kind) error {
	if kind != KindFull && kind != KindIncremental {
		return fmt.Errorf("%w: %d", ErrInvalidKind, int(kind))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	next, hasFull, err := v.nextSequence(ctx)
	if err != nil {
		v.metrics.IncrementErrors(1)
		return err
	}
	if kind == KindIncremental && !hasFull {
		return ErrNoFullBackup
	}

	desc := Descriptor{
		ID:             NewID(),
		Kind:           kind,
		SequenceNumber: next,
		KeyRange:       v.keyRange,
	}

	if err := v.archiver.ArchiveChecked(ctx, localDir, desc, func(ctx context.Context) error {
		return v.checkUnique(ctx, desc)
	}); err != nil {
		v.metrics.IncrementErrors(1)
		return err
	}

	if kind == KindFull {
		if _, err := v.retention.Prune(ctx, v.policy); err != nil {
			v.logger.Warn(ctx, "failed to prune old backups", adapters.ErrorField(err))
		}
	}
	return nil
}

// nextSequence lists the store and returns the sequence number for the next
// archive and whether a full backup exists. Callers hold v.mu.
func (v *Vault) nextSequence(ctx context.Context) (uint64, bool, error) {
	list, err := listDescriptors(ctx, v.store, v.keyRange, v.logger)
	if err != nil {
		return 0, false, err
	}

	var next uint64
	if len(list.owned) > 0 {
		next = list.maxSequence + 1
	}
	for _, d := range list.owned {
		if d.Kind == KindFull {
			return next, true, nil
		}
	}
	return next, false, nil
}

// checkUnique fails with ErrSequenceConflict when an archive other than desc
// holds desc's sequence number.
func (v *Vault) checkUnique(ctx context.Context, desc Descriptor) error {
	list, err := listDescriptors(ctx, v.store, v.keyRange, v.logger)
	if err != nil {
		return err
	}
	for _, d := range list.owned {
		if d.SequenceNumber == desc.SequenceNumber && d.ID != desc.ID {
			return fmt.Errorf("%w: sequence %d is also held by %s",
				ErrSequenceConflict, desc.SequenceNumber, d.Key())
		}
	}
	return nil
}

// RestoreLatestBackupToTempLocation rebuilds the newest chain into a fresh
// local directory and returns its path. The caller removes it when done.
func (v *Vault) RestoreLatestBackupToTempLocation(ctx context.Context) (string, error) {
	return v.restorer.CollectRestoreSet(ctx)
}

// RemoveRestoreDirectory deletes a directory returned by
// RestoreLatestBackupToTempLocation. Any other path is rejected with
// ErrNotRestoreDirectory.
func (v *Vault) RemoveRestoreDirectory(path string) error {
	clean := filepath.Clean(path)
	if filepath.Dir(clean) != v.tempRoot || !strings.HasPrefix(filepath.Base(clean), restoreDirPrefix) {
		return fmt.Errorf("%w: %s", ErrNotRestoreDirectory, path)
	}
	if _, err := os.Lstat(clean); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRestoreNotFound, path)
		}
		return err
	}
	return os.RemoveAll(clean)
}

// DeleteBackups applies the retention policy and returns how many archives
// were deleted.
func (v *Vault) DeleteBackups(ctx context.Context) (uint32, error) {
	return v.retention.Prune(ctx, v.policy)
}

// ListBackupDescriptors returns the partition's descriptors. When sorted is
// true they are ordered by descending sequence number, otherwise they keep
// the store's listing order.
func (v *Vault) ListBackupDescriptors(ctx context.Context, sorted bool) ([]Descriptor, error) {
	list, err := listDescriptors(ctx, v.store, v.keyRange, v.logger)
	if err != nil {
		return nil, err
	}
	if sorted {
		sortDescending(list.owned)
	}
	return list.owned, nil
}

// Metrics returns a snapshot of the vault's activity counters.
func (v *Vault) Metrics() MetricsSnapshot {
	return v.metrics.Snapshot()
}

// TempRoot returns the directory holding the vault's local temporaries.
func (v *Vault) TempRoot() string {
	return v.tempRoot
}
