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
	"sort"

	"github.com/jeremyhahn/go-snapvault/pkg/adapters"
	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// listing is the result of reading a container's archive keys.
type listing struct {
	// owned are the descriptors of this partition, in store listing order.
	owned []Descriptor
	// maxSequence is the highest sequence number in owned. Valid only when
	// owned is not empty.
	maxSequence uint64
}

// listDescriptors lists the container and parses every key. Unparsable keys
// and keys of other key ranges are logged and left out of owned.
func listDescriptors(ctx context.Context, store common.Storage, keyRange KeyRange, logger adapters.Logger) (*listing, error) {
	objects, err := store.List(ctx, "")
	if err != nil {
		if ierr := interrupted(ctx); ierr != nil {
			return nil, ierr
		}
		return nil, fmt.Errorf("list archives: %w", err)
	}

	result := &listing{owned: make([]Descriptor, 0, len(objects))}
	for _, obj := range objects {
		desc, err := ParseKey(obj.Key)
		if err != nil {
			logger.Warn(ctx, "skipping unrecognized object",
				adapters.Field{Key: "key", Value: obj.Key},
				adapters.ErrorField(err))
			continue
		}

		if desc.KeyRange != keyRange {
			logger.Debug(ctx, "skipping archive of another key range",
				adapters.Field{Key: "key", Value: obj.Key})
			continue
		}

		if obj.Metadata != nil {
			desc.CreatedAt = obj.Metadata.LastModified
			if obj.Metadata.Size > 0 {
				desc.SizeBytes = uint64(obj.Metadata.Size)
			}
		}
		if desc.SequenceNumber > result.maxSequence {
			result.maxSequence = desc.SequenceNumber
		}
		result.owned = append(result.owned, desc)
	}
	return result, nil
}

// sortDescending orders descriptors newest first by sequence number. Ties
// keep full backups ahead of incrementals, then order by id.
func sortDescending(descs []Descriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if a.SequenceNumber != b.SequenceNumber {
			return a.SequenceNumber > b.SequenceNumber
		}
		if a.Kind != b.Kind {
			return a.Kind == KindFull
		}
		return a.ID < b.ID
	})
}

// currentChainLength returns how many of the newest descriptors belong to the
// current chain: the newest full backup and everything after it. descs must
// be sorted descending. It returns 0 when there is no full backup.
func currentChainLength(descs []Descriptor) int {
	for i, d := range descs {
		if d.Kind == KindFull {
			// Other archives sharing the full's sequence number are
			// counted with it so retention never splits them.
			n := i + 1
			for n < len(descs) && descs[n].SequenceNumber == d.SequenceNumber {
				n++
			}
			return n
		}
	}
	return 0
}

// CurrentChain selects the chain rooted at the newest full backup and
// returns it in ascending sequence order. Every sequence number from the
// full backup to the newest incremental must be present exactly once.
func CurrentChain(descs []Descriptor) ([]Descriptor, error) {
	sorted := make([]Descriptor, len(descs))
	copy(sorted, descs)
	sortDescending(sorted)

	n := currentChainLength(sorted)
	if n == 0 {
		return nil, ErrNoBackupAvailable
	}

	chain := sorted[:n]
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	if chain[0].Kind != KindFull {
		return nil, fmt.Errorf("%w: sequence %d has more than one archive", ErrIncompleteChain, chain[0].SequenceNumber)
	}
	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1].SequenceNumber, chain[i].SequenceNumber
		switch {
		case cur == prev:
			return nil, fmt.Errorf("%w: sequence %d has more than one archive", ErrIncompleteChain, cur)
		case cur != prev+1:
			return nil, fmt.Errorf("%w: missing sequence %d", ErrIncompleteChain, prev+1)
		}
	}
	return chain, nil
}
