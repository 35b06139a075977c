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

//go:build awss3

// Package minio configures the S3 backend for MinIO and other
// S3-compatible servers, which need an explicit endpoint, static
// credentials and path-style addressing.
package minio

import (
	"maps"

	"github.com/jeremyhahn/go-snapvault/pkg/common"
	"github.com/jeremyhahn/go-snapvault/pkg/s3"
)

// DefaultRegion is used for request signing when no region is configured.
const DefaultRegion = "us-east-1"

// MinIO is an S3 backend that insists on an endpoint and credentials.
type MinIO struct {
	common.Storage
}

// New creates an unconfigured MinIO backend.
func New() common.Storage {
	return &MinIO{Storage: s3.New()}
}

// Configure validates the MinIO-specific settings and configures the
// underlying S3 client.
func (m *MinIO) Configure(settings map[string]string) error {
	if settings[common.SettingEndpoint] == "" {
		return common.ErrEndpointNotSet
	}
	if settings[common.SettingCredential] == "" {
		return common.ErrCredentialNotSet
	}

	cfg := maps.Clone(settings)
	if cfg[common.SettingRegion] == "" {
		cfg[common.SettingRegion] = DefaultRegion
	}
	return m.Storage.Configure(cfg)
}
