// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive provides durable records of registry state.
//
// The registry itself is in-memory; teardown erases it irreversibly.
// The archive exists so that the service can preserve a complete copy
// of all listings before destructive operations and on a periodic
// schedule. Two forms are provided:
//
//   - [Store]: a SQLite database of archived generations. Each call
//     to [Store.Archive] writes one generation — a header row with
//     the capture time and reason, plus one row per listing — in a
//     single IMMEDIATE transaction. Generations are append-only and
//     queryable by host.
//
//   - Snapshot files: a single zstd-compressed CBOR document holding
//     every listing, written atomically via temp-file rename. Used
//     for the periodic snapshot loop and offline inspection.
//
// Neither form feeds back into the registry automatically. Restoring
// from an archive is an operator decision; ids restart from 1 after
// teardown regardless of what the archive holds.
package archive
