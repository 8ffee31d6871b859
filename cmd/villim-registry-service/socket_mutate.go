// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/contentref"
	"github.com/seongminnpark/Villim/lib/principal"
	"github.com/seongminnpark/Villim/lib/registry"
	"github.com/seongminnpark/Villim/lib/token"
)

// registerRequest is the input for the "register" action. The caller
// (the token's subject) becomes the listing's host and sole initial
// administrator.
type registerRequest struct {
	// ContentRef is the opaque reference into the content store. May
	// be empty; the registry never interprets it.
	ContentRef contentref.Ref `cbor:"content_ref,omitempty"`

	// Grid is the spatial bucket for the new listing.
	Grid registry.GridID `cbor:"grid"`
}

// registerResponse is the response to the "register" action.
type registerResponse struct {
	// ID is the newly assigned listing id.
	ID registry.ID `cbor:"id"`
}

func (rs *RegistryService) handleRegister(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request registerRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	id, err := rs.registry.Register(request.ContentRef, request.Grid, caller.Subject)
	if err != nil {
		return nil, err
	}

	rs.logger.Info("listing registered",
		"id", id,
		"host", caller.Subject,
		"grid", request.Grid,
	)
	return registerResponse{ID: id}, nil
}

// editRequest is the input for the "edit" action. Both fields are
// full replacements: the content ref and grid are always written
// together, so a caller that only moves a listing resends the
// current content ref.
type editRequest struct {
	ID         registry.ID     `cbor:"id"`
	ContentRef contentref.Ref  `cbor:"content_ref,omitempty"`
	Grid       registry.GridID `cbor:"grid"`
}

func (rs *RegistryService) handleEdit(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request editRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	if err := rs.registry.Edit(request.ID, request.ContentRef, request.Grid, caller.Subject); err != nil {
		return nil, err
	}

	listing, err := rs.registry.GetListing(request.ID)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// adminRequest is the input for the "admin-add" and "admin-remove"
// actions.
type adminRequest struct {
	ID registry.ID `cbor:"id"`

	// Principal is the administrator being granted or revoked.
	Principal string `cbor:"principal"`
}

// adminResponse is the response to "admin-add" and "admin-remove".
type adminResponse struct {
	// Changed is false when the grant or revocation was a no-op (the
	// principal already had, or never had, the role).
	Changed bool `cbor:"changed"`

	// Administrators is the listing's administrator set after the
	// operation, in grant order.
	Administrators []principal.ID `cbor:"administrators"`
}

func (rs *RegistryService) handleAdminAdd(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request adminRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	newAdmin, err := principal.Parse(request.Principal)
	if err != nil {
		return nil, fmt.Errorf("invalid principal: %w", err)
	}

	changed, err := rs.registry.AddAdministrator(request.ID, newAdmin, caller.Subject)
	if err != nil {
		return nil, err
	}

	listing, err := rs.registry.GetListing(request.ID)
	if err != nil {
		return nil, err
	}
	return adminResponse{Changed: changed, Administrators: listing.Administrators}, nil
}

func (rs *RegistryService) handleAdminRemove(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request adminRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	toRemove, err := principal.Parse(request.Principal)
	if err != nil {
		return nil, fmt.Errorf("invalid principal: %w", err)
	}

	changed, err := rs.registry.RemoveAdministrator(request.ID, toRemove, caller.Subject)
	if err != nil {
		return nil, err
	}

	listing, err := rs.registry.GetListing(request.ID)
	if err != nil {
		return nil, err
	}
	return adminResponse{Changed: changed, Administrators: listing.Administrators}, nil
}

// setDevicesRequest is the input for the "set-devices" action. Only
// the bound device-ownership service may call it; the device refs
// replace the listing's current set wholesale.
type setDevicesRequest struct {
	ID      registry.ID `cbor:"id"`
	Devices []string    `cbor:"devices"`
}

// setDevicesResponse is the response to the "set-devices" action.
type setDevicesResponse struct {
	Devices []principal.ID `cbor:"devices"`
}

func (rs *RegistryService) handleSetDevices(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request setDevicesRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	refs := make([]principal.ID, 0, len(request.Devices))
	for _, device := range request.Devices {
		ref, err := principal.Parse(device)
		if err != nil {
			return nil, fmt.Errorf("invalid device principal %q: %w", device, err)
		}
		refs = append(refs, ref)
	}

	if err := rs.registry.SetDeviceRefs(request.ID, refs, caller.Subject); err != nil {
		return nil, err
	}
	return setDevicesResponse{Devices: refs}, nil
}

// bindRequest is the input for the "bind-device-service" action.
// Owner only.
type bindRequest struct {
	// ServiceCode is the directory code of the device-ownership
	// service (e.g. "device-ownership").
	ServiceCode string `cbor:"service_code"`
}

// bindResponse is the response to the "bind-device-service" action.
type bindResponse struct {
	// Principal is the resolved device service principal.
	Principal principal.ID `cbor:"principal"`
}

func (rs *RegistryService) handleBindDeviceService(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request bindRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	if err := rs.registry.BindDeviceService(request.ServiceCode, caller.Subject); err != nil {
		return nil, err
	}

	bound := rs.registry.DeviceService()
	rs.logger.Info("device service bound",
		"service_code", request.ServiceCode,
		"principal", bound,
		"caller", caller.Subject,
	)
	return bindResponse{Principal: bound}, nil
}

// teardownResponse is the response to the "teardown" action.
type teardownResponse struct {
	// Generation is the archive generation holding the final state.
	Generation int64 `cbor:"generation"`

	// Listings is how many listings the final generation captured.
	Listings int `cbor:"listings"`
}

// handleTeardown archives the registry's final state and then erases
// it. The export runs under the caller's authority, so a non-owner
// caller fails before anything is written. The archived generation is
// the only route back to the erased state; live ids restart at 1.
func (rs *RegistryService) handleTeardown(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	listings, err := rs.registry.Export(caller.Subject)
	if err != nil {
		return nil, err
	}

	generation, err := rs.archive.Archive(ctx, "teardown", listings)
	if err != nil {
		return nil, fmt.Errorf("archiving final generation: %w", err)
	}

	if err := rs.registry.Teardown(caller.Subject); err != nil {
		return nil, err
	}

	rs.logger.Info("registry teardown complete",
		"generation", generation,
		"listings", len(listings),
		"caller", caller.Subject,
	)
	return teardownResponse{Generation: generation, Listings: len(listings)}, nil
}
