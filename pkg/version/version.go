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

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version and Commit are set at build time:
//
//	go build -ldflags "-X github.com/jeremyhahn/go-snapvault/pkg/version.Version=1.0.0 -X github.com/jeremyhahn/go-snapvault/pkg/version.Commit=abc123"
var (
	Version = "0.1.0-alpha"
	Commit  = ""
)

// Get returns the application version string.
func Get() string {
	return Version
}

// Revision returns the build commit, falling back to the VCS revision
// recorded by the Go toolchain. It is empty when neither is known.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

// String returns a one-line description of the build.
func String() string {
	rev := Revision()
	if rev == "" {
		rev = "unknown"
	}
	return fmt.Sprintf("snapvault %s (%s, %s/%s, %s)", Version, rev, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
