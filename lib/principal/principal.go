// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import (
	"fmt"
	"strings"
)

// MaxIDLength is the maximum allowed length for a principal
// identifier. Identifiers appear in socket paths, log lines, and
// archive rows; 80 characters keeps all of those comfortably bounded.
const MaxIDLength = 80

// ID is an opaque principal identifier. The zero value is "no
// principal" and never validates. Two IDs refer to the same principal
// exactly when they compare equal.
//
// Construct untrusted input with [Parse]; composite literals are fine
// for identifiers that are known-valid constants (tests, config
// defaults).
type ID string

// allowedChars is the set of characters permitted in principal
// identifiers: lowercase a-z, 0-9, and the symbols . _ = - /.
// Checked via a lookup table for O(1) per-character validation.
var allowedChars [256]bool

func init() {
	for c := 'a'; c <= 'z'; c++ {
		allowedChars[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		allowedChars[c] = true
	}
	allowedChars['.'] = true
	allowedChars['_'] = true
	allowedChars['='] = true
	allowedChars['-'] = true
	allowedChars['/'] = true
}

// Parse validates s and returns it as an ID.
//
// Rules enforced:
//   - Non-empty
//   - Only lowercase a-z, 0-9, ., _, =, -, / (no uppercase, no spaces)
//   - No empty segments (leading/trailing slash, double slashes)
//   - No ".." segments and no segments starting with "."
//   - Maximum 80 characters
func Parse(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("principal is empty")
	}
	if len(s) > MaxIDLength {
		return "", fmt.Errorf("principal is %d characters, maximum is %d", len(s), MaxIDLength)
	}

	for i := 0; i < len(s); i++ {
		if !allowedChars[s[i]] {
			return "", fmt.Errorf("invalid character %q at position %d (allowed: a-z, 0-9, ., _, =, -, /)", s[i], i)
		}
	}

	if s[0] == '/' {
		return "", fmt.Errorf("principal must not start with /")
	}
	if s[len(s)-1] == '/' {
		return "", fmt.Errorf("principal must not end with /")
	}

	for _, segment := range strings.Split(s, "/") {
		if segment == "" {
			return "", fmt.Errorf("principal contains empty segment (double slash)")
		}
		if segment == ".." {
			return "", fmt.Errorf("principal contains '..' segment")
		}
		if segment[0] == '.' {
			return "", fmt.Errorf("segment %q starts with '.'", segment)
		}
	}

	return ID(s), nil
}

// MustParse is Parse for known-valid constants. Panics on invalid
// input — use only where the identifier is a compile-time literal.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic("principal: " + err.Error())
	}
	return id
}

// String returns the identifier text.
func (id ID) String() string { return string(id) }

// IsZero reports whether id is the zero "no principal" value.
func (id ID) IsZero() bool { return id == "" }

// MarshalText implements encoding.TextMarshaler so IDs serialize as
// plain text strings in CBOR, JSON, and YAML.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, validating on the
// way in. Decoding a wire message with a malformed principal fails
// rather than smuggling an invalid identifier into the registry.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
