// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package principal defines the opaque caller identity used throughout
// the Villim registry. A principal is whoever invokes a registry
// operation: a listing host, a granted administrator, the registry
// owner, or a sibling service such as the device-ownership service.
//
// The identity is a validated, slash-segmented identifier (e.g.,
// "host/alice", "service/device"). It is deliberately decoupled from
// any cryptographic scheme: token signing in lib/token binds a
// principal to a key pair, but nothing in this package knows about
// keys. Equality is plain string equality.
package principal
