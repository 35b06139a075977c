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

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// RetentionPolicy bounds how many archives a partition keeps.
type RetentionPolicy struct {
	MaxBackupsToKeep uint32
}

// RetentionManager deletes archives that fall outside the retention policy.
type RetentionManager struct {
	store    common.Storage
	keyRange KeyRange
	logger   adapters.Logger
	metrics  *Metrics
}

// NewRetentionManager creates a retention manager for one partition.
func NewRetentionManager(store common.Storage, keyRange KeyRange, logger adapters.Logger, metrics *Metrics) *RetentionManager {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &RetentionManager{store: store, keyRange: keyRange, logger: logger, metrics: metrics}
}

// Prune keeps the newest max(policy.MaxBackupsToKeep, len(current chain))
// archives of the partition and deletes the rest. Unparsable and foreign
// objects are never touched. Individual delete failures are logged and
// skipped; the returned count is the number of objects actually deleted.
func (r *RetentionManager) Prune(ctx context.Context, policy RetentionPolicy) (uint32, error) {
	list, err := listDescriptors(ctx, r.store, r.keyRange, r.logger)
	if err != nil {
		return 0, err
	}

	descs := list.owned
	sortDescending(descs)

	keep := int(policy.MaxBackupsToKeep)
	if chain := currentChainLength(descs); chain > keep {
		keep = chain
	}
	if keep >= len(descs) {
		return 0, nil
	}

	var deleted uint32
	for _, desc := range descs[keep:] {
		if err := interrupted(ctx); err != nil {
			return deleted, err
		}

		key := desc.Key()
		if err := r.store.Delete(ctx, key); err != nil {
			r.metrics.IncrementErrors(1)
			r.logger.Warn(ctx, "failed to delete expired archive",
				adapters.Field{Key: "key", Value: key}, adapters.ErrorField(err))
			continue
		}
		deleted++
		r.logger.Debug(ctx, "deleted expired archive",
			adapters.Field{Key: "key", Value: key},
			adapters.Field{Key: "sequence", Value: desc.SequenceNumber})
	}

	r.metrics.IncrementArchivesDeleted(int64(deleted))
	if deleted > 0 {
		r.logger.Info(ctx, "pruned archives",
			adapters.Field{Key: "deleted", Value: deleted},
			adapters.Field{Key: "kept", Value: keep})
	}
	return deleted, nil
}
