// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the Villim listing registry: an
// append-mostly store of physical-asset listings with host-owned
// creation, collaborative administrator editing, and spatial bucketing
// for location lookup.
//
// # State
//
// The registry keeps three maps that must stay mutually consistent:
// the primary id -> listing store, the owner index (creator -> listing
// ids), and the grid index (spatial bucket -> listing ids). Every
// mutation either updates all three or none of them. Secondary indexes
// are genuine sets (map[ID]struct{}), so removal is O(1) and iteration
// never observes tombstoned entries.
//
// # Identifiers
//
// Listing ids are positive integers, assigned monotonically starting
// at 1 and never reused while the registry lives. Id 0 is not a
// listing; existence is tracked by presence in the primary store, not
// by a zero-value sentinel. Teardown erases everything and resets the
// counter, so a rebuilt registry starts again at id 1 — that reset is
// deliberate, documented, and covered by tests.
//
// # Authorization
//
// Four layered roles gate mutations: the registry owner (set once at
// construction; may tear down the registry and bind collaborators),
// a listing's host (the creator; may grant and revoke administrators),
// a listing's administrators (may edit content and location), and
// trusted sibling services recognized by the directory (may maintain
// device references). Host authority is tracked independently of the
// administrator list: a host removed from its own listing's
// administrators keeps full host rights.
//
// # Concurrency
//
// A Registry is safe for concurrent use. All mutations serialize on a
// single write lock, so no caller ever observes a partially-updated
// view of the three maps; read-only queries share a read lock and
// return deep copies.
package registry
