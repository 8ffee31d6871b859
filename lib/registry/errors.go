// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import "errors"

// Errors returned by registry operations. Callers classify failures
// with errors.Is; every failure aborts the whole operation with no
// partial state change.
var (
	// ErrUnauthorized means the caller lacks the role the operation
	// requires (owner, host, administrator, or trusted service).
	ErrUnauthorized = errors.New("registry: caller not authorized")

	// ErrNotFound means the listing id is zero, beyond the allocated
	// range, or otherwise does not name an existing listing.
	ErrNotFound = errors.New("registry: listing not found")

	// ErrUninitialized means the operation needs a collaborator
	// binding (directory, device service) that configuration has not
	// provided yet.
	ErrUninitialized = errors.New("registry: collaborator not configured")

	// ErrInvariant means an internal consistency check between the
	// primary store and a secondary index failed. It is defensive and
	// should be unreachable; treat it as fatal and alert, do not
	// retry.
	ErrInvariant = errors.New("registry: index invariant violated")
)
