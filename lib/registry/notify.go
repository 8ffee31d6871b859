// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import "github.com/seongminnpark/Villim/lib/principal"

// Creation is the payload of a creation notification, emitted exactly
// once per successful registration for external indexers building
// derived views (full-text search, geo search). Failed or aborted
// registrations emit nothing.
type Creation struct {
	// ID is the newly assigned listing id.
	ID ID `cbor:"id"`

	// Host is the principal that registered the listing.
	Host principal.ID `cbor:"host"`

	// Grid is the bucket the listing was registered into.
	Grid GridID `cbor:"grid"`
}

// Notifier receives creation notifications. The registry invokes it
// after the registration has fully committed, while still holding the
// write lock so notification order matches commit order.
// Implementations must therefore not block and must not call back
// into the Registry — hand the event to a channel or queue and
// return. See the subscriber fanout in cmd/villim-registry-service
// for the standard implementation.
type Notifier interface {
	ListingCreated(Creation)
}
