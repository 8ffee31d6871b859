// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/seongminnpark/Villim/lib/contentref"
	"github.com/seongminnpark/Villim/lib/directory"
	"github.com/seongminnpark/Villim/lib/principal"
)

// Registry is the listing registry. Construct with [New].
//
// Safe for concurrent use: mutations serialize on a write lock,
// queries share a read lock and return deep copies.
type Registry struct {
	mu sync.RWMutex

	// owner is the registry's single administrative owner, set once
	// at construction. Owner authority gates teardown, collaborator
	// binding, and full exports.
	owner principal.ID

	// directory resolves sibling services and answers trusted-caller
	// checks. Nil until provided; trusted-caller operations fail with
	// ErrUninitialized while nil.
	directory directory.Resolver

	// notifier receives creation notifications. May be nil.
	notifier Notifier

	// deviceService is the bound device-ownership service principal,
	// resolved through the directory by BindDeviceService. Zero until
	// bound.
	deviceService principal.ID

	// nextID is the last allocated listing id. Strictly increasing;
	// reset only by teardown.
	nextID ID

	byID    map[ID]*record
	byOwner map[principal.ID]map[ID]struct{}
	byGrid  map[GridID]map[ID]struct{}
}

// Options holds the optional collaborator bindings for a Registry.
// The zero value is a registry with no directory and no notifier:
// core operations work, trusted-caller operations fail with
// ErrUninitialized, and creation events go nowhere.
type Options struct {
	// Directory is the capability-resolution collaborator. Optional.
	Directory directory.Resolver

	// Notifier receives creation notifications. Optional.
	Notifier Notifier
}

// New creates an empty registry owned by owner.
func New(owner principal.ID, options Options) (*Registry, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("registry owner must be a valid principal")
	}
	return &Registry{
		owner:     owner,
		directory: options.Directory,
		notifier:  options.Notifier,
		byID:      make(map[ID]*record),
		byOwner:   make(map[principal.ID]map[ID]struct{}),
		byGrid:    make(map[GridID]map[ID]struct{}),
	}, nil
}

// Owner returns the registry's administrative owner.
func (r *Registry) Owner() principal.ID { return r.owner }

// Register creates a new listing hosted by caller and returns its id.
// The content ref is stored verbatim (it may be empty — the registry
// never interprets it); grid is the bucket assigned by the caller's
// placement function. The caller becomes host and sole administrator.
//
// Registration has no precondition beyond caller being a valid
// principal and always allocates a fresh id, even across failures
// elsewhere — ids are never reassigned. A creation notification is
// emitted exactly once, after the state is fully committed.
func (r *Registry) Register(contentRef contentref.Ref, grid GridID, caller principal.ID) (ID, error) {
	if caller.IsZero() {
		return 0, fmt.Errorf("registering listing: caller principal is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID + 1
	r.nextID = id

	r.byID[id] = &record{
		contentRef:     contentRef.Clone(),
		host:           caller,
		administrators: []principal.ID{caller},
		grid:           grid,
		active:         true,
	}
	addToOwnerIndex(r.byOwner, caller, id)
	addToGridIndex(r.byGrid, grid, id)

	if r.notifier != nil {
		r.notifier.ListingCreated(Creation{ID: id, Host: caller, Grid: grid})
	}
	return id, nil
}

// Edit overwrites a listing's content ref and, when newGrid differs
// from the current bucket, moves the listing between grid buckets.
// Only a current administrator may edit.
//
// Edit is atomic: the administrator check and the grid-index removal
// (the only fallible step) run before the content ref is touched, so
// a failure of either leaves the listing, both indexes, and the
// content ref exactly as they were. There is no partial-update state
// in which the content changed but the move did not.
func (r *Registry) Edit(id ID, newContentRef contentref.Ref, newGrid GridID, caller principal.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.requireAdministrator(id, caller)
	if err != nil {
		return fmt.Errorf("editing listing %d: %w", id, err)
	}

	if newGrid != rec.grid {
		if err := removeFromGridIndex(r.byGrid, rec.grid, id); err != nil {
			return fmt.Errorf("editing listing %d: %w", id, err)
		}
		addToGridIndex(r.byGrid, newGrid, id)
		rec.grid = newGrid
	}

	rec.contentRef = newContentRef.Clone()
	return nil
}

// AddAdministrator grants edit rights on a listing to newAdmin. Only
// the host may grant. Returns false (and no error) when newAdmin is
// already an administrator — a defined no-op, not a failure.
func (r *Registry) AddAdministrator(id ID, newAdmin, caller principal.ID) (bool, error) {
	if newAdmin.IsZero() {
		return false, fmt.Errorf("adding administrator to listing %d: principal is empty", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.requireHost(id, caller)
	if err != nil {
		return false, fmt.Errorf("adding administrator to listing %d: %w", id, err)
	}

	if rec.isAdministrator(newAdmin) {
		return false, nil
	}
	rec.administrators = append(rec.administrators, newAdmin)
	return true, nil
}

// RemoveAdministrator revokes edit rights from toRemove. Only the
// host may revoke. Returns false (and no error) when toRemove is not
// an administrator. The slot is deleted outright, preserving grant
// order of the remainder.
//
// Nothing prevents removing the last administrator — including the
// host removing itself. Host authority is tracked independently, so
// the listing stays manageable by its host even with an empty
// administrator list. The asymmetry is intentional.
func (r *Registry) RemoveAdministrator(id ID, toRemove, caller principal.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.requireHost(id, caller)
	if err != nil {
		return false, fmt.Errorf("removing administrator from listing %d: %w", id, err)
	}

	position := slices.Index(rec.administrators, toRemove)
	if position < 0 {
		return false, nil
	}
	rec.administrators = slices.Delete(rec.administrators, position, position+1)
	return true, nil
}

// GetListing returns a deep-copied snapshot of one listing. Read-only
// and callable by anyone. Fails with ErrNotFound for ids that never
// existed or fell to teardown.
func (r *Registry) GetListing(id ID) (Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(id)
	if err != nil {
		return Listing{}, err
	}
	return rec.snapshot(id), nil
}

// Devices returns the device principals attached to a listing.
// Read-only and callable by anyone.
func (r *Registry) Devices(id ID) ([]principal.ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rec.deviceRefs), nil
}

// SetDeviceRefs replaces a listing's device reference list. The
// device-ownership service owns the semantics of this list; the
// registry only requires that the caller is a trusted sibling service
// and stores what it is given.
func (r *Registry) SetDeviceRefs(id ID, refs []principal.ID, caller principal.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireTrustedCaller(caller); err != nil {
		return fmt.Errorf("setting device refs on listing %d: %w", id, err)
	}
	rec, err := r.lookup(id)
	if err != nil {
		return fmt.Errorf("setting device refs on listing %d: %w", id, err)
	}

	rec.deviceRefs = slices.Clone(refs)
	return nil
}

// BindDeviceService resolves the device-ownership service's principal
// through the directory and binds it. Owner-only, intended to run
// once at configuration time — never mid-operation.
func (r *Registry) BindDeviceService(serviceCode string, caller principal.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireOwner(caller); err != nil {
		return fmt.Errorf("binding device service: %w", err)
	}
	if r.directory == nil {
		return fmt.Errorf("binding device service: %w", ErrUninitialized)
	}

	resolved, err := r.directory.Resolve(serviceCode)
	if err != nil {
		return fmt.Errorf("binding device service: %w", err)
	}
	r.deviceService = resolved
	return nil
}

// DeviceService returns the bound device-ownership service principal,
// or the zero ID when none is bound yet.
func (r *Registry) DeviceService() principal.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviceService
}

// Teardown irreversibly erases the entire registry: every listing,
// both indexes, and the id counter. Owner-only. There is no partial
// or selective teardown, and no undo — callers wanting a safety net
// archive first (lib/archive) and then tear down.
//
// After teardown the registry is usable again from empty state, and
// the next registration receives id 1.
func (r *Registry) Teardown(caller principal.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireOwner(caller); err != nil {
		return fmt.Errorf("tearing down registry: %w", err)
	}

	r.nextID = 0
	r.byID = make(map[ID]*record)
	r.byOwner = make(map[principal.ID]map[ID]struct{})
	r.byGrid = make(map[GridID]map[ID]struct{})
	return nil
}

// Export returns a snapshot of every listing, sorted by id.
// Owner-only: this is the archive layer's read path, not a public
// query surface.
func (r *Registry) Export(caller principal.ID) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireOwner(caller); err != nil {
		return nil, fmt.Errorf("exporting registry: %w", err)
	}

	listings := make([]Listing, 0, len(r.byID))
	for id, rec := range r.byID {
		listings = append(listings, rec.snapshot(id))
	}
	slices.SortFunc(listings, func(a, b Listing) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return listings, nil
}

// ListingsByOwner returns the ids of all listings created by owner,
// sorted ascending. Returns nil for principals that created nothing.
func (r *Registry) ListingsByOwner(owner principal.ID) []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.byOwner[owner])
}

// ListingsInGrid returns the ids of all listings currently in the
// given bucket, sorted ascending. Returns nil for empty buckets.
func (r *Registry) ListingsInGrid(grid GridID) []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.byGrid[grid])
}

// Len returns the number of listings in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Stats holds aggregate counts across the registry.
type Stats struct {
	// Total is the number of listings.
	Total int `cbor:"total"`

	// ByGrid maps each occupied bucket to its listing count.
	ByGrid map[GridID]int `cbor:"by_grid"`
}

// Stats returns aggregate counts. Read-only and callable by anyone.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:  len(r.byID),
		ByGrid: make(map[GridID]int, len(r.byGrid)),
	}
	for grid, set := range r.byGrid {
		stats.ByGrid[grid] = len(set)
	}
	return stats
}

// sortedIDs converts a set of ids to a sorted slice. Returns nil for
// an empty or missing set.
func sortedIDs(set map[ID]struct{}) []ID {
	if len(set) == 0 {
		return nil
	}
	ids := make([]ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
