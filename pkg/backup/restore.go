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
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// RestoreCoordinator rebuilds the newest consistent state from the current
// backup chain.
type RestoreCoordinator struct {
	store       common.Storage
	keyRange    KeyRange
	tempRoot    string
	concurrency int
	logger      adapters.Logger
	metrics     *Metrics
}

// NewRestoreCoordinator creates a restore coordinator for one partition.
// concurrency bounds parallel downloads; values below 1 mean 1.
func NewRestoreCoordinator(store common.Storage, keyRange KeyRange, tempRoot string, concurrency int, logger adapters.Logger, metrics *Metrics) *RestoreCoordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &RestoreCoordinator{
		store:       store,
		keyRange:    keyRange,
		tempRoot:    tempRoot,
		concurrency: concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// restoreDirPrefix names directories handed out by CollectRestoreSet.
const restoreDirPrefix = "restore-"

// CollectRestoreSet downloads the current chain and extracts it, in
// ascending sequence order, into a fresh directory whose path is returned.
// The caller owns the directory. On failure nothing is left on disk.
func (r *RestoreCoordinator) CollectRestoreSet(ctx context.Context) (string, error) {
	started := time.Now()

	list, err := listDescriptors(ctx, r.store, r.keyRange, r.logger)
	if err != nil {
		return "", err
	}
	chain, err := CurrentChain(list.owned)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	downloadDir := filepath.Join(r.tempRoot, "download-"+id)
	restoreDir := filepath.Join(r.tempRoot, restoreDirPrefix+id)

	succeeded := false
	defer func() {
		_ = os.RemoveAll(downloadDir)
		if !succeeded {
			_ = os.RemoveAll(restoreDir)
		}
	}()

	if err := os.MkdirAll(downloadDir, 0750); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	if err := os.MkdirAll(restoreDir, 0750); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	paths, size, err := r.download(ctx, chain, downloadDir)
	if err != nil {
		r.metrics.IncrementErrors(1)
		return "", err
	}

	for i, desc := range chain {
		if err := interrupted(ctx); err != nil {
			return "", err
		}
		if err := extractArchive(ctx, paths[i], restoreDir); err != nil {
			r.metrics.IncrementErrors(1)
			return "", err
		}
		// Downloaded archives are not needed once extracted.
		_ = os.Remove(paths[i])
		r.logger.Debug(ctx, "extracted archive",
			adapters.Field{Key: "key", Value: desc.Key()},
			adapters.Field{Key: "sequence", Value: desc.SequenceNumber})
	}

	succeeded = true
	r.metrics.RecordRestore(size, time.Since(started))
	r.logger.Info(ctx, "restore set collected",
		adapters.Field{Key: "path", Value: restoreDir},
		adapters.Field{Key: "archives", Value: len(chain)},
		adapters.Field{Key: "full_sequence", Value: chain[0].SequenceNumber},
		adapters.Field{Key: "last_sequence", Value: chain[len(chain)-1].SequenceNumber})
	return restoreDir, nil
}

// download fetches every archive of the chain into dir. The returned paths
// are indexed like chain.
func (r *RestoreCoordinator) download(ctx context.Context, chain []Descriptor, dir string) ([]string, int64, error) {
	pool := NewWorkerPool(ctx, WorkerPoolConfig{
		WorkerCount: r.concurrency,
		QueueSize:   len(chain),
		Logger:      r.logger,
	})
	pool.Start(r.fetch)

	index := make(map[uint64]int, len(chain))
	var submitErr error
	for i, desc := range chain {
		index[desc.SequenceNumber] = i
		if err := pool.Submit(WorkItem{Descriptor: desc, Path: filepath.Join(dir, desc.Key())}); err != nil {
			submitErr = err
			break
		}
	}
	pool.Shutdown()

	paths := make([]string, len(chain))
	var firstErr error
	for result := range pool.Results() {
		if !result.Succeeded {
			if firstErr == nil {
				firstErr = result.Err
			}
			continue
		}
		paths[index[result.Descriptor.SequenceNumber]] = result.Path
	}

	if err := interrupted(ctx); err != nil {
		return nil, 0, err
	}
	if firstErr != nil {
		return nil, 0, firstErr
	}
	if submitErr != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDownloadFailed, submitErr)
	}
	for i, p := range paths {
		if p == "" {
			return nil, 0, fmt.Errorf("%w: %s was not downloaded", ErrDownloadFailed, chain[i].Key())
		}
	}
	return paths, pool.GetMetrics().BytesProcessed, nil
}

// fetch downloads one archive to item.Path.
func (r *RestoreCoordinator) fetch(ctx context.Context, item WorkItem) WorkResult {
	result := WorkResult{Descriptor: item.Descriptor, Path: item.Path}
	key := item.Descriptor.Key()

	size, err := r.fetchTo(ctx, key, item.Path)
	if err != nil {
		if ierr := interrupted(ctx); ierr != nil {
			result.Err = ierr
		} else if errors.Is(err, common.ErrKeyNotFound) {
			// Deleted between listing and download.
			result.Err = fmt.Errorf("%w: %w: %w", ErrDownloadFailed, ErrIncompleteChain, err)
		} else {
			result.Err = fmt.Errorf("%w: %s: %w", ErrDownloadFailed, key, err)
		}
		return result
	}

	result.Size = size
	result.Succeeded = true
	return result
}

func (r *RestoreCoordinator) fetchTo(ctx context.Context, key, path string) (int64, error) {
	rc, err := r.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) // #nosec G304 -- path built from the descriptor key
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(f, rc)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	return size, f.Close()
}
