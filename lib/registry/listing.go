// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"slices"

	"github.com/seongminnpark/Villim/lib/contentref"
	"github.com/seongminnpark/Villim/lib/principal"
)

// ID identifies a listing. Ids are positive, assigned monotonically
// starting at 1, and never reused for the lifetime of a registry. The
// zero value is not a listing.
type ID uint64

// GridID identifies a spatial bucket. Bucket assignment is performed
// by the caller's placement function; the registry treats the value as
// an opaque partition key.
type GridID int64

// Listing is a point-in-time copy of one listing's state, as returned
// by queries. Slices and the content ref are deep copies — mutating a
// Listing never affects registry state.
type Listing struct {
	// ID is the listing's identifier.
	ID ID `cbor:"id"`

	// ContentRef is the opaque reference into the external content
	// store, returned verbatim as stored. May be empty.
	ContentRef contentref.Ref `cbor:"content_ref"`

	// Host is the principal that created the listing. Immutable.
	Host principal.ID `cbor:"host"`

	// Administrators holds the principals with edit rights, in grant
	// order. The host starts as the sole member but may be removed
	// without losing host authority.
	Administrators []principal.ID `cbor:"administrators"`

	// DeviceRefs lists the device principals attached to the listing.
	// Maintained entirely by the external device-ownership service;
	// the registry only stores and exposes it.
	DeviceRefs []principal.ID `cbor:"device_refs,omitempty"`

	// Grid is the listing's current spatial bucket.
	Grid GridID `cbor:"grid"`

	// Active is the operational flag, distinct from existence. Always
	// true once created; reserved for future suspend/resume.
	Active bool `cbor:"active"`
}

// record is the mutable listing state inside the primary store.
// Listing is the exported, copied view of a record.
type record struct {
	contentRef     contentref.Ref
	host           principal.ID
	administrators []principal.ID
	deviceRefs     []principal.ID
	grid           GridID
	active         bool
}

// snapshot builds the exported deep-copied view of a record.
func (rec *record) snapshot(id ID) Listing {
	return Listing{
		ID:             id,
		ContentRef:     rec.contentRef.Clone(),
		Host:           rec.host,
		Administrators: slices.Clone(rec.administrators),
		DeviceRefs:     slices.Clone(rec.deviceRefs),
		Grid:           rec.grid,
		Active:         rec.active,
	}
}

// isAdministrator reports whether p currently holds edit rights on the
// record. Linear scan; administrator lists are short (the host plus a
// handful of co-managers).
func (rec *record) isAdministrator(p principal.ID) bool {
	return slices.Contains(rec.administrators, p)
}
