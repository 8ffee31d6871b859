// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"testing"
	"time"

	"github.com/seongminnpark/Villim/lib/archive"
)

func TestCaptureArchivesAndSnapshots(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	env.register(t, hostAlice, 7)
	env.register(t, hostBob, -3)

	generation, err := env.service.capture(context.Background(), "periodic")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if generation != 1 {
		t.Errorf("generation: got %d, want 1", generation)
	}

	archived, err := env.service.archive.Listings(context.Background(), generation)
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archived listings: got %d, want 2", len(archived))
	}

	snapshot, err := archive.ReadSnapshot(env.service.snapshotPath)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snapshot.TakenAt != testClockEpoch.Unix() {
		t.Errorf("taken_at: got %d, want %d", snapshot.TakenAt, testClockEpoch.Unix())
	}
	if len(snapshot.Listings) != 2 {
		t.Fatalf("snapshot listings: got %d, want 2", len(snapshot.Listings))
	}
	if snapshot.Listings[0].Host != hostAlice || snapshot.Listings[1].Host != hostBob {
		t.Errorf("snapshot hosts: got %q, %q",
			snapshot.Listings[0].Host, snapshot.Listings[1].Host)
	}
}

func TestCaptureEmptyRegistry(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	generation, err := env.service.capture(context.Background(), "periodic")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	archived, err := env.service.archive.Listings(context.Background(), generation)
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(archived) != 0 {
		t.Errorf("archived listings: got %d, want 0", len(archived))
	}
}

func TestSnapshotLoopCapturesOnTick(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	env.register(t, hostAlice, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		env.service.runSnapshotLoop(ctx)
	}()

	// Wait for the loop's ticker to register, then fire one tick.
	env.clock.WaitForTimers(1)
	env.clock.Advance(env.service.snapshotInterval)

	// The capture runs asynchronously after the tick; poll for the
	// generation to land.
	deadline := time.Now().Add(5 * time.Second)
	for {
		generations, err := env.service.archive.Generations(context.Background())
		if err != nil {
			t.Fatalf("Generations: %v", err)
		}
		if len(generations) == 1 {
			if generations[0].Reason != "periodic" {
				t.Errorf("reason: got %q, want periodic", generations[0].Reason)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("periodic capture did not run within timeout")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-loopDone
}
