// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Villim-registry-service is the standalone service that owns the
// listing registry: host-created listings, multi-administrator
// editing, grid bucketing, and the owner's teardown authority. It
// holds the registry in memory and serves queries and mutations over
// a Unix socket using the CBOR protocol.
//
// # Startup
//
// The service loads its YAML configuration (--config flag or the
// VILLIM_CONFIG environment variable), loads or generates the token
// authority keypair under the state directory, opens the SQLite
// archive, and starts listening on its socket path. When the
// configuration names a device service, the binding is performed at
// startup under the owner's authority.
//
// # Socket API
//
// Clients connect to the Unix socket and send one CBOR request per
// connection. The "action" field determines the operation: status,
// info, register, edit, admin-add, admin-remove, get, devices,
// by-owner, by-grid, stats, set-devices, bind-device-service, export,
// teardown, subscribe. Every action except status requires an
// Ed25519-signed caller token; the token's subject is the principal
// the operation is attributed to.
//
// # Durability
//
// The registry is in-memory. A periodic loop archives a generation to
// SQLite and writes a zstd snapshot file at the configured interval,
// and teardown archives a final generation before the erase.
package main
