// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"testing"
)

func TestRemoveFromGridIndex(t *testing.T) {
	index := make(map[GridID]map[ID]struct{})
	addToGridIndex(index, 7, 1)
	addToGridIndex(index, 7, 2)

	if err := removeFromGridIndex(index, 7, 1); err != nil {
		t.Fatalf("removal failed: %v", err)
	}
	if _, member := index[7][1]; member {
		t.Error("id 1 still a member after removal")
	}
	if _, member := index[7][2]; !member {
		t.Error("removal disturbed another member")
	}
}

func TestRemoveFromGridIndexDropsEmptyBucket(t *testing.T) {
	index := make(map[GridID]map[ID]struct{})
	addToGridIndex(index, 7, 1)

	if err := removeFromGridIndex(index, 7, 1); err != nil {
		t.Fatalf("removal failed: %v", err)
	}
	if _, exists := index[7]; exists {
		t.Error("empty bucket not dropped from the index")
	}
}

func TestRemoveFromGridIndexMissingBucket(t *testing.T) {
	index := make(map[GridID]map[ID]struct{})
	err := removeFromGridIndex(index, 7, 1)
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", err)
	}
}

func TestRemoveFromGridIndexMissingMember(t *testing.T) {
	index := make(map[GridID]map[ID]struct{})
	addToGridIndex(index, 7, 2)

	err := removeFromGridIndex(index, 7, 1)
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("error = %v, want ErrInvariant", err)
	}
	if _, member := index[7][2]; !member {
		t.Error("failed removal mutated the bucket")
	}
}
