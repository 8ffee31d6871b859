// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/seongminnpark/Villim/lib/service"
	"github.com/seongminnpark/Villim/lib/token"
)

// registerActions registers all socket API actions on the server.
//
// The "status" action is unauthenticated (pure liveness check). All
// other actions use HandleAuth and attribute the operation to the
// token's subject; "subscribe" is a stream action that keeps the
// connection open for creation events.
func (rs *RegistryService) registerActions(server *service.SocketServer) {
	// Liveness health check — no authentication required. Returns
	// only uptime; no listing information is disclosed.
	server.Handle("status", rs.handleStatus)

	// Diagnostics.
	server.HandleAuth("info", rs.handleInfo)

	// Listing mutations.
	server.HandleAuth("register", rs.handleRegister)
	server.HandleAuth("edit", rs.handleEdit)
	server.HandleAuth("admin-add", rs.handleAdminAdd)
	server.HandleAuth("admin-remove", rs.handleAdminRemove)
	server.HandleAuth("set-devices", rs.handleSetDevices)

	// Queries.
	server.HandleAuth("get", rs.handleGet)
	server.HandleAuth("devices", rs.handleDevices)
	server.HandleAuth("by-owner", rs.handleByOwner)
	server.HandleAuth("by-grid", rs.handleByGrid)
	server.HandleAuth("stats", rs.handleStats)

	// Owner operations.
	server.HandleAuth("bind-device-service", rs.handleBindDeviceService)
	server.HandleAuth("export", rs.handleExport)
	server.HandleAuth("teardown", rs.handleTeardown)

	// Live creation-event stream.
	server.HandleAuthStream("subscribe", rs.handleSubscribe)
}

// statusResponse is the response to the "status" action. Contains
// only liveness information — no listing counts or other data that
// could disclose what the registry holds.
type statusResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`
}

// handleStatus returns a minimal liveness response. This is the only
// unauthenticated action — it reveals nothing about the registry's
// state beyond "I am alive."
func (rs *RegistryService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	uptime := rs.clock.Now().Sub(rs.startedAt)
	return statusResponse{
		UptimeSeconds: uptime.Seconds(),
	}, nil
}

// infoResponse is the response to the authenticated "info" action.
type infoResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`

	// Listings is the number of listings currently registered.
	Listings int `cbor:"listings"`

	// Grids is the number of grid buckets with at least one listing.
	Grids int `cbor:"grids"`

	// DeviceService is the bound device-ownership principal, empty
	// when none is bound.
	DeviceService string `cbor:"device_service,omitempty"`

	// Subscribers is the number of connected subscribe streams.
	Subscribers int `cbor:"subscribers"`
}

// handleInfo returns diagnostic information about the service. This
// action requires authentication — listing counts and the bound
// collaborator are operational details.
func (rs *RegistryService) handleInfo(ctx context.Context, caller *token.Token, raw []byte) (any, error) {
	uptime := rs.clock.Now().Sub(rs.startedAt)
	stats := rs.registry.Stats()

	return infoResponse{
		UptimeSeconds: uptime.Seconds(),
		Listings:      stats.Total,
		Grids:         len(stats.ByGrid),
		DeviceService: rs.registry.DeviceService().String(),
		Subscribers:   rs.fanout.len(),
	}, nil
}
