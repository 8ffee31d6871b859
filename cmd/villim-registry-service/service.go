// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seongminnpark/Villim/lib/archive"
	"github.com/seongminnpark/Villim/lib/clock"
	"github.com/seongminnpark/Villim/lib/registry"
)

// RegistryService is the core service state: the in-memory registry,
// the SQLite archive behind it, and the subscriber fanout for
// creation events.
type RegistryService struct {
	registry *registry.Registry
	archive  *archive.Store
	fanout   *subscriberFanout

	snapshotPath     string
	snapshotInterval time.Duration

	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}

// capture archives the current registry state as a new generation and
// rewrites the snapshot file. The export runs under the owner's
// authority: the service process is the owner's agent, and capture is
// the durability path behind both the periodic loop and teardown.
func (rs *RegistryService) capture(ctx context.Context, reason string) (int64, error) {
	listings, err := rs.registry.Export(rs.registry.Owner())
	if err != nil {
		return 0, fmt.Errorf("exporting registry: %w", err)
	}

	generation, err := rs.archive.Archive(ctx, reason, listings)
	if err != nil {
		return 0, err
	}

	if err := archive.WriteSnapshot(rs.snapshotPath, &archive.Snapshot{
		TakenAt:  rs.clock.Now().Unix(),
		Listings: listings,
	}); err != nil {
		return generation, fmt.Errorf("writing snapshot: %w", err)
	}

	return generation, nil
}

// runSnapshotLoop captures the registry at the configured interval
// until the context is cancelled. Failures are logged and the loop
// keeps going; the next tick retries.
func (rs *RegistryService) runSnapshotLoop(ctx context.Context) {
	ticker := rs.clock.NewTicker(rs.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rs.capture(ctx, "periodic"); err != nil {
				rs.logger.Error("periodic capture failed", "error", err)
			}
		}
	}
}
