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

//go:build gcpstorage

package factory

import (
	"github.com/jeremyhahn/go-snapvault/pkg/common"
	"github.com/jeremyhahn/go-snapvault/pkg/gcs"
)

func init() {
	RegisterStorage("gcs", func(settings map[string]string) (common.Storage, error) {
		return configure(gcs.New(), settings)
	})
}
