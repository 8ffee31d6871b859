// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package token implements the caller tokens that authenticate socket
// requests to the registry service. A token is a CBOR-encoded payload
// — the caller's principal, an audience, an id, and validity times —
// followed by a 64-byte Ed25519 signature from the deployment's token
// authority.
//
// The registry service holds only the authority's public key: it can
// verify who a caller is but cannot mint identities. Note that a token
// asserts identity, not role — whether the authenticated principal is
// a host, administrator, or owner of anything is decided by the
// registry's own guards against its own state.
package token
