// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix socket protocol shared by Villim
// services.
//
// A Villim service is a standalone Go binary serving a CBOR
// request-response API on a Unix socket. Each connection carries
// exactly one request and one response. Requests are CBOR maps with a
// required "action" field for routing; responses are a fixed envelope
// of {ok, error, data}. This package provides the building blocks:
//
//   - SocketServer: one-request-per-connection CBOR server with
//     action dispatch, read/write deadlines, request size limits,
//     and graceful shutdown.
//   - ServiceClient: the matching client, one connection per Call.
//
// # Authentication
//
// Callers authenticate with Ed25519-signed tokens (lib/token). A
// server constructed with an AuthConfig exposes HandleAuth, which
// verifies the "token" field of the request — signature, expiry,
// audience, revocation — before invoking the handler with the decoded
// token. The token's subject is the caller principal that the handler
// attributes the operation to. Handlers registered with plain Handle
// skip verification and are for unauthenticated surfaces such as
// health checks.
package service
