// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentref defines the opaque reference a listing stores in
// place of its human-readable metadata. The metadata itself lives in
// an external content store; the registry never parses the reference,
// it only stores and returns it verbatim.
//
// For callers that produce references by content addressing, the
// package also provides the Villim-standard BLAKE3 keyed digest. The
// registry core does not require refs to be digests — any byte
// sequence, including an empty one, is stored as-is.
package contentref

import (
	"bytes"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// DigestSize is the size in bytes of a content-addressed digest.
const DigestSize = 32

// Ref is an opaque reference into the external content store. The
// registry stores and returns it without interpretation. May be
// empty.
type Ref []byte

// Equal reports whether two refs hold identical bytes.
func (r Ref) Equal(other Ref) bool {
	return bytes.Equal(r, other)
}

// Clone returns an independent copy of the ref, so mutations of the
// caller's byte slice cannot alias into stored registry state.
// Returns nil for an empty ref.
func (r Ref) Clone() Ref {
	if len(r) == 0 {
		return nil
	}
	return append(Ref(nil), r...)
}

// String returns the hex encoding of the ref for logs and error
// messages. Not a wire format.
func (r Ref) String() string {
	return hex.EncodeToString(r)
}

// listingDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// listing metadata. Domain separation keeps listing-metadata digests
// distinct from any other BLAKE3 use of the same bytes. The value is
// the ASCII domain name zero-padded to 32 bytes, readable in hex
// dumps without weakening the hash.
var listingDomainKey = [32]byte{
	'v', 'i', 'l', 'l', 'i', 'm', '.', 'l', 'i', 's', 't', 'i', 'n', 'g', '.',
	'm', 'e', 't', 'a', 'd', 'a', 't', 'a', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest computes the listing-domain BLAKE3 keyed digest of metadata
// bytes and returns it as a Ref. This is the reference a well-behaved
// content store hands back after persisting the metadata.
func Digest(metadata []byte) Ref {
	hasher, err := blake3.NewKeyed(listingDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a key of the wrong length; the key
		// is a fixed 32-byte constant.
		panic("contentref: keyed hasher initialization failed: " + err.Error())
	}
	hasher.Write(metadata)
	digest := hasher.Sum(nil)
	return Ref(digest[:DigestSize])
}
