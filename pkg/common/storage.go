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

package common

import (
	"context"
	"io"
)

// Storage is the contract every archive store backend implements. A configured
// Storage is bound to exactly one logical container (bucket, blob container or
// directory); keys are relative to that container.
//
// None of the operations retry. Callers decide whether an error is worth
// another attempt.
type Storage interface {
	// Configure sets up the backend with the necessary credentials and settings.
	Configure(settings map[string]string) error

	// Put stores an object. It fails with ErrAlreadyExists if the key is
	// already present; existing content is never replaced.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves an object. It fails with ErrKeyNotFound if the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix, with metadata.
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
}

// Settings keys understood by the backends. Not every backend uses all of them.
const (
	SettingEndpoint   = "endpoint"
	SettingCredential = "credential"
	SettingContainer  = "container"
	SettingRegion     = "region"
)
