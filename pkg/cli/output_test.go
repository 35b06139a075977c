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

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-snapvault/pkg/backup"
)

func sampleDescriptors() []backup.Descriptor {
	return []backup.Descriptor{
		{
			ID:             "3f2b1c0d9e8f4a7b6c5d4e3f2a1b0c9d",
			Kind:           backup.KindIncremental,
			SequenceNumber: 1,
			KeyRange:       backup.KeyRange{Min: 0, Max: 100},
			CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			SizeBytes:      2048,
		},
		{
			ID:             "0a1b2c3d4e5f60718293a4b5c6d7e8f9",
			Kind:           backup.KindFull,
			SequenceNumber: 0,
			KeyRange:       backup.KeyRange{Min: 0, Max: 100},
			SizeBytes:      100,
		},
	}
}

func TestFormatOperationResult(t *testing.T) {
	ok := &OperationResult{Success: true, Message: "Archived snap as full backup"}
	assert.Equal(t, "Archived snap as full backup\n", FormatOperationResult(ok, FormatText))
	assert.Contains(t, FormatOperationResult(ok, FormatTable), "SUCCESS")

	var decoded OperationResult
	require.NoError(t, json.Unmarshal([]byte(FormatOperationResult(ok, FormatJSON)), &decoded))
	assert.Equal(t, *ok, decoded)
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "Error: boom\n", FormatError(errors.New("boom"), FormatText))

	out := FormatError(backup.ErrUploadFailed, FormatJSON)
	assert.Contains(t, out, `"retryable": true`)
	assert.Contains(t, FormatError(backup.ErrUploadFailed, FormatTable), "FAILED")
}

func TestFormatBackupList(t *testing.T) {
	descs := sampleDescriptors()

	text := FormatBackupList(descs, FormatText)
	assert.Contains(t, text, "Found 2 backup(s)")
	assert.Contains(t, text, "Sequence: 1 (incremental)")
	assert.Contains(t, text, descs[0].Key())
	assert.Contains(t, text, "2.0 KiB")

	table := FormatBackupList(descs, FormatTable)
	assert.Contains(t, table, "Total: 2 backup(s)")
	assert.Contains(t, table, "2025-06-01 12:00:00")

	var decoded struct {
		Count   int                 `json:"count"`
		Backups []backup.Descriptor `json:"backups"`
	}
	require.NoError(t, json.Unmarshal([]byte(FormatBackupList(descs, FormatJSON)), &decoded))
	assert.Equal(t, 2, decoded.Count)
	assert.Equal(t, backup.KindFull, decoded.Backups[1].Kind)

	assert.Equal(t, "No backups found\n", FormatBackupList(nil, FormatText))
	assert.Contains(t, FormatBackupList(nil, FormatJSON), `"backups": []`)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "1.0 GiB", formatSize(1<<30))
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 10))
	assert.Equal(t, []string{"one two", "three"}, wrapText("one two three", 8))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, wrapText("abcdefghij", 4))
	for _, line := range wrapText(strings.Repeat("word ", 30), 20) {
		assert.LessOrEqual(t, len(line), 20)
	}
}
