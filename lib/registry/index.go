// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"

	"github.com/seongminnpark/Villim/lib/principal"
)

// The owner and grid indexes use genuine sets rather than slices with
// tombstoned slots: membership is one map probe, removal is one
// delete, and readers never have to skip removed entries. Empty sets
// are dropped from the outer map so iteration over buckets only
// visits occupied ones.

func addToOwnerIndex(index map[principal.ID]map[ID]struct{}, owner principal.ID, id ID) {
	set, exists := index[owner]
	if !exists {
		set = make(map[ID]struct{})
		index[owner] = set
	}
	set[id] = struct{}{}
}

func addToGridIndex(index map[GridID]map[ID]struct{}, grid GridID, id ID) {
	set, exists := index[grid]
	if !exists {
		set = make(map[ID]struct{})
		index[grid] = set
	}
	set[id] = struct{}{}
}

// removeFromGridIndex removes id from its bucket. A missing bucket or
// missing membership means the primary store and the grid index have
// diverged: the removal fails with ErrInvariant and mutates nothing.
// Under correct index maintenance this path is unreachable.
func removeFromGridIndex(index map[GridID]map[ID]struct{}, grid GridID, id ID) error {
	set, exists := index[grid]
	if !exists {
		return fmt.Errorf("grid bucket %d has no member set while listing %d claims it: %w", grid, id, ErrInvariant)
	}
	if _, member := set[id]; !member {
		return fmt.Errorf("listing %d missing from grid bucket %d: %w", id, grid, ErrInvariant)
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, grid)
	}
	return nil
}
