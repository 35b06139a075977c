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

package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// object represents a stored object with its data and metadata.
type object struct {
	data     []byte
	metadata common.Metadata
}

// Memory is a storage backend that keeps objects in process memory. It is the
// default double for tests and for hosts that want an ephemeral container.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*object
	now     func() time.Time
}

// New creates a new Memory storage backend.
func New() common.Storage {
	return &Memory{
		objects: make(map[string]*object),
		now:     time.Now,
	}
}

// Configure sets up the backend with the necessary settings.
// The memory backend has no required settings.
func (m *Memory) Configure(settings map[string]string) error {
	return nil
}

// Put stores an object in the backend.
func (m *Memory) Put(ctx context.Context, key string, data io.Reader) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[key]; exists {
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, key)
	}

	modified := m.now()
	m.objects[key] = &object{
		data: dataBytes,
		metadata: common.Metadata{
			Size:         int64(len(dataBytes)),
			LastModified: modified,
			ETag:         fmt.Sprintf("%d-%d", modified.UnixNano(), len(dataBytes)),
		},
	}
	return nil
}

// Get retrieves an object from the backend.
func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	obj, exists := m.objects[key]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}

	// Return a copy of the data to prevent mutation
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)

	return io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Delete removes an object from the backend.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// List returns every object whose key starts with prefix, sorted by key.
func (m *Memory) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := make([]*common.ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		metadata := obj.metadata
		objects = append(objects, &common.ObjectInfo{Key: key, Metadata: &metadata})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
