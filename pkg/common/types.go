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
	"time"
)

// Metadata represents store-reported metadata for an object.
type Metadata struct {
	// Size is the size of the object in bytes
	Size int64 `json:"size"`

	// LastModified is the timestamp reported by the store. It is informational
	// only and must not be used to order backups.
	LastModified time.Time `json:"last_modified"`

	// ETag is the entity tag for the object, when the backend provides one
	ETag string `json:"etag,omitempty"`
}

// ObjectInfo represents complete information about a stored object.
type ObjectInfo struct {
	// Key is the object's storage key/path
	Key string `json:"key"`

	// Metadata contains the object's metadata
	Metadata *Metadata `json:"metadata,omitempty"`
}
