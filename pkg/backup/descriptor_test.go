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

package backup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "full", KindFull.String())
	assert.Equal(t, "incremental", KindIncremental.String())
	assert.Equal(t, "kind(7)", Kind(7).String())

	k, err := ParseKind("Incremental")
	require.NoError(t, err)
	assert.Equal(t, KindIncremental, k)

	_, err = ParseKind("differential")
	assert.ErrorIs(t, err, ErrInvalidKind)

	data, err := json.Marshal(struct{ K Kind }{KindFull})
	require.NoError(t, err)
	assert.JSONEq(t, `{"K":"full"}`, string(data))

	var decoded struct{ K Kind }
	require.NoError(t, json.Unmarshal([]byte(`{"K":"incremental"}`), &decoded))
	assert.Equal(t, KindIncremental, decoded.K)
	assert.Error(t, json.Unmarshal([]byte(`{"K":"weekly"}`), &decoded))
}

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, NewID())
}

func TestDescriptorKey(t *testing.T) {
	d := Descriptor{
		ID:             "0f8fad5bd9cb469fa16570867728950e",
		Kind:           KindIncremental,
		SequenceNumber: 42,
		KeyRange:       KeyRange{Min: -9223372036854775808, Max: 9223372036854775807},
	}
	key := d.Key()
	assert.Equal(t, "0f8fad5bd9cb469fa16570867728950e_42_-9223372036854775808_9223372036854775807_incremental.archive", key)

	parsed, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseKey_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"no suffix", "abc_1_0_10_full"},
		{"wrong suffix", "abc_1_0_10_full.zip"},
		{"too few fields", "abc_1_0_full.archive"},
		{"too many fields", "abc_1_0_10_x_full.archive"},
		{"empty id", "_1_0_10_full.archive"},
		{"id with path", "a/b_1_0_10_full.archive"},
		{"negative sequence", "abc_-1_0_10_full.archive"},
		{"non numeric sequence", "abc_one_0_10_full.archive"},
		{"bad min", "abc_1_x_10_full.archive"},
		{"bad max", "abc_1_0_x_full.archive"},
		{"unknown kind", "abc_1_0_10_diff.archive"},
		{"upper case kind", "abc_1_0_10_FULL.archive"},
		{"leading zero", "abc_01_0_10_full.archive"},
		{"plus sign", "abc_1_+0_10_full.archive"},
		{"unrelated object", "notes.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKey(tt.key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}
