// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"testing"
	"time"
)

func TestBlacklistRevokeAndCheck(t *testing.T) {
	blacklist := NewBlacklist()

	tokenExpiry := time.Now().Add(5 * time.Minute)
	blacklist.Revoke("token-1", tokenExpiry)

	if !blacklist.IsRevoked("token-1") {
		t.Error("token-1 should be revoked")
	}
	if blacklist.IsRevoked("token-2") {
		t.Error("token-2 should not be revoked")
	}
	if blacklist.Len() != 1 {
		t.Errorf("Len = %d, want 1", blacklist.Len())
	}
}

func TestBlacklistCleanup(t *testing.T) {
	blacklist := NewBlacklist()

	t1 := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC)
	t3 := time.Date(2026, 4, 1, 10, 10, 0, 0, time.UTC)

	blacklist.Revoke("token-1", t1)
	blacklist.Revoke("token-2", t2)
	blacklist.Revoke("token-3", t3)

	if blacklist.Len() != 3 {
		t.Fatalf("Len = %d, want 3", blacklist.Len())
	}

	// At 10:02 only token-1 has reached its natural expiry.
	removed := blacklist.Cleanup(time.Date(2026, 4, 1, 10, 2, 0, 0, time.UTC))
	if removed != 1 {
		t.Errorf("Cleanup at 10:02 removed = %d, want 1", removed)
	}
	if blacklist.IsRevoked("token-1") {
		t.Error("token-1 should have been cleaned up")
	}
	if !blacklist.IsRevoked("token-2") {
		t.Error("token-2 should still be revoked")
	}

	// At 10:15 everything has expired.
	removed = blacklist.Cleanup(time.Date(2026, 4, 1, 10, 15, 0, 0, time.UTC))
	if removed != 2 {
		t.Errorf("Cleanup at 10:15 removed = %d, want 2", removed)
	}
	if blacklist.Len() != 0 {
		t.Errorf("Len after final cleanup = %d, want 0", blacklist.Len())
	}
}

func TestBlacklistCleanupEmpty(t *testing.T) {
	blacklist := NewBlacklist()
	if removed := blacklist.Cleanup(time.Now()); removed != 0 {
		t.Errorf("Cleanup on empty blacklist removed = %d, want 0", removed)
	}
}

func TestBlacklistDuplicateRevoke(t *testing.T) {
	blacklist := NewBlacklist()

	expiry := time.Now().Add(5 * time.Minute)
	blacklist.Revoke("token-1", expiry)
	blacklist.Revoke("token-1", expiry)

	if blacklist.Len() != 1 {
		t.Errorf("Len after duplicate revoke = %d, want 1", blacklist.Len())
	}
}
