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
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxKeyLength is the maximum allowed length for object keys
const MaxKeyLength = 1024

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidateKey rejects keys that are empty, too long, not UTF-8, absolute,
// contain control characters or backslashes, or contain ".." path segments.
// Backends that map keys to filesystem paths rely on this to stay inside
// their root.
func ValidateKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "key", Message: "key cannot be empty"}
	}
	if len(key) > MaxKeyLength {
		return &ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("key length exceeds maximum of %d bytes", MaxKeyLength),
		}
	}
	if !utf8.ValidString(key) {
		return &ValidationError{Field: "key", Message: "key must be valid UTF-8"}
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") || (len(key) >= 2 && key[1] == ':') {
		return &ValidationError{Field: "key", Message: "key cannot be an absolute path"}
	}

	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x20 || c == 0x7f {
			return &ValidationError{
				Field:   "key",
				Message: fmt.Sprintf("key contains invalid character: %q", string(c)),
			}
		}
		if c == '\\' {
			return &ValidationError{Field: "key", Message: `key cannot contain "\"`}
		}
	}

	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return &ValidationError{
				Field:   "key",
				Message: "key cannot contain path traversal sequences (..)",
			}
		}
		if segment == "" {
			return &ValidationError{Field: "key", Message: `key contains invalid character sequence: "//"`}
		}
	}

	return nil
}

// SplitCredential splits a "name:secret" credential setting. An empty
// credential yields two empty strings and no error.
func SplitCredential(credential string) (string, string, error) {
	if credential == "" {
		return "", "", nil
	}
	name, secret, ok := strings.Cut(credential, ":")
	if !ok || name == "" || secret == "" {
		return "", "", ErrCredentialInvalid
	}
	return name, secret, nil
}
