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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const keySuffix = ".archive"

// Kind distinguishes self-contained backups from deltas.
type Kind int

const (
	// KindFull is a self-contained snapshot.
	KindFull Kind = iota
	// KindIncremental holds the changes since the previous backup in its chain.
	KindIncremental
)

// String returns the key token for the kind.
func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "full" or "incremental", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return KindFull, nil
	case "incremental":
		return KindIncremental, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindFull && k != KindIncremental {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KeyRange is the partition key range a backup belongs to.
type KeyRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Descriptor identifies one archived snapshot.
type Descriptor struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	SequenceNumber uint64    `json:"sequence_number"`
	KeyRange       KeyRange  `json:"key_range"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	SizeBytes      uint64    `json:"size_bytes"`
}

// NewID returns a fresh dash-less unique id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Key returns the object key for the descriptor:
// <id>_<sequence>_<keyRangeMin>_<keyRangeMax>_<kind>.archive
func (d Descriptor) Key() string {
	return fmt.Sprintf("%s_%d_%d_%d_%s%s",
		d.ID, d.SequenceNumber, d.KeyRange.Min, d.KeyRange.Max, d.Kind, keySuffix)
}

// ParseKey parses an object key produced by Key. CreatedAt and SizeBytes are
// left zero.
func ParseKey(key string) (Descriptor, error) {
	name, ok := strings.CutSuffix(key, keySuffix)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q: missing %s suffix", ErrInvalidKey, key, keySuffix)
	}

	parts := strings.Split(name, "_")
	if len(parts) != 5 {
		return Descriptor{}, fmt.Errorf("%w: %q: expected 5 fields, got %d", ErrInvalidKey, key, len(parts))
	}

	id := parts[0]
	if id == "" || strings.ContainsAny(id, "/.") {
		return Descriptor{}, fmt.Errorf("%w: %q: bad id", ErrInvalidKey, key)
	}

	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad sequence number", ErrInvalidKey, key)
	}
	low, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad key range min", ErrInvalidKey, key)
	}
	high, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad key range max", ErrInvalidKey, key)
	}
	kind, err := ParseKind(parts[4])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: bad kind", ErrInvalidKey, key)
	}

	desc := Descriptor{
		ID:             id,
		Kind:           kind,
		SequenceNumber: seq,
		KeyRange:       KeyRange{Min: low, Max: high},
	}
	// Only canonical keys are accepted so that Key() addresses the same object.
	if desc.Key() != key {
		return Descriptor{}, fmt.Errorf("%w: %q: not in canonical form", ErrInvalidKey, key)
	}
	return desc, nil
}
