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

import "errors"

var (
	// Configuration errors

	// ErrNotConfigured is returned when a storage backend is not properly configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrPathNotSet is returned when the required path is not set.
	ErrPathNotSet = errors.New("path not set")

	// ErrContainerNotSet is returned when the required container name is not set.
	ErrContainerNotSet = errors.New("container not set")

	// ErrEndpointNotSet is returned when the required endpoint is not set.
	ErrEndpointNotSet = errors.New("endpoint not set")

	// ErrCredentialNotSet is returned when the required credential is not set.
	ErrCredentialNotSet = errors.New("credential not set")

	// ErrCredentialInvalid is returned when a credential setting cannot be parsed.
	ErrCredentialInvalid = errors.New("credential is malformed")

	// Storage operation errors

	// ErrKeyNotFound is returned when a key is not found in storage.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAlreadyExists is returned by Put when the key is already taken.
	ErrAlreadyExists = errors.New("object already exists")
)
