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

package factory

import (
	"sort"

	"github.com/jeremyhahn/go-snapvault/pkg/common"
)

// StorageCreator is a function that creates a storage backend.
type StorageCreator func(settings map[string]string) (common.Storage, error)

var storageRegistry = make(map[string]StorageCreator)

// RegisterStorage registers a storage backend creator.
func RegisterStorage(backendType string, creator StorageCreator) {
	storageRegistry[backendType] = creator
}

// NewStorage creates and configures a storage backend of the given type.
func NewStorage(backendType string, settings map[string]string) (common.Storage, error) {
	creator, exists := storageRegistry[backendType]
	if !exists {
		return nil, ErrUnknownBackend
	}
	return creator(settings)
}

// Backends returns the names of all compiled-in backends, sorted.
func Backends() []string {
	names := make([]string, 0, len(storageRegistry))
	for name := range storageRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func configure(storage common.Storage, settings map[string]string) (common.Storage, error) {
	if err := storage.Configure(settings); err != nil {
		return nil, err
	}
	return storage, nil
}
