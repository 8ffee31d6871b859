// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"

	"github.com/seongminnpark/Villim/lib/principal"
)

// Role guards. Each guard either passes or fails with a distinct,
// classifiable error — no silent no-ops. Guards run before the first
// state write of every mutation, so a failed precondition always
// leaves the registry untouched. All guards expect r.mu to be held.

// requireOwner passes only for the registry's administrative owner.
func (r *Registry) requireOwner(caller principal.ID) error {
	if caller != r.owner {
		return fmt.Errorf("caller %q is not the registry owner: %w", caller, ErrUnauthorized)
	}
	return nil
}

// requireTrustedCaller passes only for principals the directory
// recognizes as registered sibling services. Fails with
// ErrUninitialized when no directory has been configured.
func (r *Registry) requireTrustedCaller(caller principal.ID) error {
	if r.directory == nil {
		return fmt.Errorf("trusted-caller check needs a directory: %w", ErrUninitialized)
	}
	if !r.directory.IsTrusted(caller) {
		return fmt.Errorf("caller %q is not a trusted service: %w", caller, ErrUnauthorized)
	}
	return nil
}

// lookup resolves an id to its record, distinguishing "never existed /
// out of range" from "exists". Ids are valid exactly when they fall in
// [1, nextID] and their creation committed; since creation is atomic,
// presence in the primary store is the single source of truth.
func (r *Registry) lookup(id ID) (*record, error) {
	if id == 0 || id > r.nextID {
		return nil, fmt.Errorf("listing %d out of range [1, %d]: %w", id, r.nextID, ErrNotFound)
	}
	rec, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

// requireHost resolves the listing and passes only for its host.
func (r *Registry) requireHost(id ID, caller principal.ID) (*record, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if caller != rec.host {
		return nil, fmt.Errorf("caller %q is not the host of listing %d: %w", caller, id, ErrUnauthorized)
	}
	return rec, nil
}

// requireAdministrator resolves the listing and passes only for a
// current administrator. Note the asymmetry with requireHost: a host
// that removed itself from the administrator list does not pass this
// guard, and an administrator is not a host.
func (r *Registry) requireAdministrator(id ID, caller principal.ID) (*record, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !rec.isAdministrator(caller) {
		return nil, fmt.Errorf("caller %q is not an administrator of listing %d: %w", caller, id, ErrUnauthorized)
	}
	return rec, nil
}
