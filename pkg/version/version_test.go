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
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	if Get() == "" {
		t.Fatal("Expected non-empty version")
	}
	if Get() != Version {
		t.Errorf("Get() = %q, want %q", Get(), Version)
	}
}

func TestRevision_UsesCommit(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = "deadbeef"
	if got := Revision(); got != "deadbeef" {
		t.Errorf("Revision() = %q, want deadbeef", got)
	}
}

func TestString(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()
	Commit = "abc123"

	s := String()
	for _, want := range []string{"snapvault", Version, "abc123", runtime.GOOS} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}
