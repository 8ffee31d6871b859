// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly.
// Real() provides standard library behavior; Fake() provides a
// deterministic clock for tests that advances only when Advance is
// called.
//
// The registry service uses the clock for uptime reporting and for
// the periodic archive snapshot loop; its tests drive the snapshot
// loop with a FakeClock:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	// ... start the loop ...
//	c.WaitForTimers(1)
//	c.Advance(time.Hour) // fire one snapshot deterministically
package clock
