// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/principal"
	"github.com/seongminnpark/Villim/lib/registry"
	"github.com/seongminnpark/Villim/lib/token"
)

// getRequest is the input for the "get" and "devices" actions.
type getRequest struct {
	ID registry.ID `cbor:"id"`
}

func (rs *RegistryService) handleGet(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request getRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return rs.registry.GetListing(request.ID)
}

// devicesResponse is the response to the "devices" action.
type devicesResponse struct {
	Devices []principal.ID `cbor:"devices"`
}

func (rs *RegistryService) handleDevices(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request getRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	devices, err := rs.registry.Devices(request.ID)
	if err != nil {
		return nil, err
	}
	return devicesResponse{Devices: devices}, nil
}

// byOwnerRequest is the input for the "by-owner" action.
type byOwnerRequest struct {
	// Owner is the hosting principal to look up.
	Owner string `cbor:"owner"`
}

// idsResponse is the response to the "by-owner" and "by-grid"
// actions: sorted listing ids.
type idsResponse struct {
	IDs []registry.ID `cbor:"ids"`
}

func (rs *RegistryService) handleByOwner(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request byOwnerRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	owner, err := principal.Parse(request.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner: %w", err)
	}
	return idsResponse{IDs: rs.registry.ListingsByOwner(owner)}, nil
}

// byGridRequest is the input for the "by-grid" action.
type byGridRequest struct {
	Grid registry.GridID `cbor:"grid"`
}

func (rs *RegistryService) handleByGrid(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	var request byGridRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return idsResponse{IDs: rs.registry.ListingsInGrid(request.Grid)}, nil
}

func (rs *RegistryService) handleStats(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	return rs.registry.Stats(), nil
}

// exportResponse is the response to the "export" action. Owner only.
type exportResponse struct {
	Listings []registry.Listing `cbor:"listings"`
}

func (rs *RegistryService) handleExport(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	listings, err := rs.registry.Export(caller.Subject)
	if err != nil {
		return nil, err
	}
	return exportResponse{Listings: listings}, nil
}
