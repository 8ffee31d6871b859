// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"sync"
	"time"
)

// blacklistEntry tracks a revoked token ID and its natural expiry time.
// The expiry drives automatic cleanup: once the token's own TTL has
// passed, Verify rejects it regardless, so the entry is dead weight.
type blacklistEntry struct {
	tokenExpiresAt time.Time
}

// Blacklist is a thread-safe in-memory set of revoked token IDs. The
// token authority pushes revocation notices when a caller's standing
// changes mid-lifetime (an administrator removed from every listing,
// a device service unbound). The service adds the token ID here, and
// the socket server rejects any request whose verified token carries
// a blacklisted ID.
//
// The blacklist auto-cleans: entries whose token expiry has passed are
// removed during Cleanup. Tokens have short TTLs, so it stays small.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]blacklistEntry
}

// NewBlacklist creates an empty token blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{
		entries: make(map[string]blacklistEntry),
	}
}

// Revoke adds a token ID to the blacklist. The tokenExpiresAt
// parameter is the token's natural expiry; the entry is dropped after
// this time during Cleanup.
func (b *Blacklist) Revoke(tokenID string, tokenExpiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = blacklistEntry{tokenExpiresAt: tokenExpiresAt}
}

// IsRevoked checks whether a token ID has been revoked.
func (b *Blacklist) IsRevoked(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.entries[tokenID]
	return exists
}

// Cleanup removes entries whose token's natural expiry has passed.
// Call periodically to prevent unbounded growth. Returns the number
// of entries removed.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for tokenID, entry := range b.entries {
		if !now.Before(entry.tokenExpiresAt) {
			delete(b.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries in the blacklist.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
