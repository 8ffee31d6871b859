// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the Villim-standard CBOR codec. Every wire surface
// in the registry — the socket protocol, caller tokens, and archive
// snapshots — encodes through this package so that the encoder
// configuration lives in exactly one place.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// logical value always produces identical bytes. That property is what
// makes token signing sound (sign-then-verify over re-encoded payloads
// would otherwise be fragile) and keeps snapshot files diffable.
package codec
