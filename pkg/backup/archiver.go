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
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// Archiver packages a local snapshot directory and uploads it as one object.
type Archiver struct {
	store    common.Storage
	tempRoot string
	logger   adapters.Logger
	metrics  *Metrics
}

// NewArchiver creates an archiver that stages archives beneath tempRoot.
func NewArchiver(store common.Storage, tempRoot string, logger adapters.Logger, metrics *Metrics) *Archiver {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Archiver{store: store, tempRoot: tempRoot, logger: logger, metrics: metrics}
}

// Archive compresses localDir, uploads it under desc.Key() and, on success,
// removes both localDir and the staged archive. On failure localDir is left
// untouched and the staged archive is removed.
func (a *Archiver) Archive(ctx context.Context, localDir string, desc Descriptor) error {
	return a.ArchiveChecked(ctx, localDir, desc, nil)
}

// ArchiveChecked is Archive with a check run after the upload. When check
// fails the uploaded object is deleted again and localDir is kept.
func (a *Archiver) ArchiveChecked(ctx context.Context, localDir string, desc Descriptor, check func(context.Context) error) error {
	started := time.Now()
	key := desc.Key()

	if err := interrupted(ctx); err != nil {
		return err
	}

	stageDir := filepath.Join(a.tempRoot, uuid.NewString())
	if err := os.MkdirAll(stageDir, 0750); err != nil {
		return fmt.Errorf("%w: %w", ErrCompressionFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(stageDir); err != nil {
			a.logger.Warn(ctx, "failed to remove staged archive",
				adapters.Field{Key: "path", Value: stageDir}, adapters.ErrorField(err))
		}
	}()

	archivePath := filepath.Join(stageDir, key)
	size, err := a.compress(ctx, localDir, archivePath)
	if err != nil {
		if ierr := interrupted(ctx); ierr != nil {
			return ierr
		}
		return fmt.Errorf("%w: %w", ErrCompressionFailed, err)
	}

	if err := interrupted(ctx); err != nil {
		return err
	}

	if err := a.upload(ctx, key, archivePath); err != nil {
		if ierr := interrupted(ctx); ierr != nil {
			return fmt.Errorf("%w: %w", ErrUploadFailed, ierr)
		}
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	if check != nil {
		if err := check(ctx); err != nil {
			if ierr := interrupted(ctx); ierr != nil {
				return fmt.Errorf("%w: %w", ErrArchivePersisted, ierr)
			}
			a.withdraw(ctx, key)
			return err
		}
	}

	a.metrics.RecordBackup(desc, size, time.Since(started))
	a.logger.Info(ctx, "backup archived",
		adapters.Field{Key: "key", Value: key},
		adapters.Field{Key: "kind", Value: desc.Kind.String()},
		adapters.Field{Key: "sequence", Value: desc.SequenceNumber},
		adapters.Field{Key: "bytes", Value: size})

	// The object is persisted; a cancellation now only skips local cleanup.
	if err := interrupted(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrArchivePersisted, err)
	}

	if err := os.RemoveAll(localDir); err != nil {
		a.logger.Warn(ctx, "failed to remove snapshot directory",
			adapters.Field{Key: "path", Value: localDir}, adapters.ErrorField(err))
	}
	return nil
}

func (a *Archiver) compress(ctx context.Context, localDir, archivePath string) (int64, error) {
	f, err := os.OpenFile(archivePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) // #nosec G304 -- path built from the descriptor key
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriterSize(f, 1<<20)
	if err := compressDir(ctx, localDir, bw); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// withdraw deletes an uploaded object that failed its check.
func (a *Archiver) withdraw(ctx context.Context, key string) {
	if err := a.store.Delete(ctx, key); err != nil {
		a.logger.Error(ctx, "failed to delete rejected archive",
			adapters.Field{Key: "key", Value: key}, adapters.ErrorField(err))
		return
	}
	a.logger.Warn(ctx, "deleted rejected archive", adapters.Field{Key: "key", Value: key})
}

func (a *Archiver) upload(ctx context.Context, key, archivePath string) error {
	f, err := os.Open(archivePath) // #nosec G304 -- staged by compress
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return a.store.Put(ctx, key, f)
}
