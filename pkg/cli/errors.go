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

package cli

import "errors"

var (
	// Configuration errors

	// ErrUnsupportedBackend is returned when the backend is unknown or not compiled in.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrEndpointRequired is returned when the backend needs account-endpoint.
	ErrEndpointRequired = errors.New("account-endpoint is required")

	// ErrContainerRequired is returned when neither container-name nor partition-id is set.
	ErrContainerRequired = errors.New("container-name or partition-id is required")

	// ErrInvalidKeyRange is returned when key-range-min exceeds key-range-max.
	ErrInvalidKeyRange = errors.New("key-range-min must not exceed key-range-max")

	// ErrInvalidConcurrency is returned when download-concurrency is below 1.
	ErrInvalidConcurrency = errors.New("download-concurrency must be at least 1")

	// ErrUnsupportedOutputFormat is returned when an unsupported output format is specified.
	ErrUnsupportedOutputFormat = errors.New("unsupported output format")

	// Command errors

	// ErrBackupsDisabled is returned by backup commands when backup-mode is none.
	ErrBackupsDisabled = errors.New("backups are disabled (backup-mode: none)")

	// ErrOutputExists is returned when the restore output path already exists.
	ErrOutputExists = errors.New("output path already exists")
)
