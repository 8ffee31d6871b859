// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/registry"
	"github.com/seongminnpark/Villim/lib/token"
)

// subscriber represents a single connected subscribe stream. The
// channel receives creation events from the fanout. The done channel
// is closed by the stream handler goroutine when the connection ends;
// the fanout detects this and removes the subscriber.
type subscriber struct {
	channel chan registry.Creation
	resync  atomic.Bool
	done    <-chan struct{}
}

// subscriberChannelSize is the buffer size for the per-subscriber
// event channel. If a subscriber's channel is full, the event is
// dropped and the subscriber is marked for resync.
const subscriberChannelSize = 256

// subscriberFanout dispatches creation events to connected subscribe
// streams. It is the registry's Notifier, so ListingCreated runs
// under the registry's write lock and must never block: sends are
// non-blocking, and overflow marks the subscriber for resync instead
// of queueing.
type subscriberFanout struct {
	mu          sync.Mutex
	subscribers []*subscriber
	logger      *slog.Logger
}

func newSubscriberFanout(logger *slog.Logger) *subscriberFanout {
	return &subscriberFanout{logger: logger}
}

// ListingCreated implements registry.Notifier.
func (f *subscriberFanout) ListingCreated(event registry.Creation) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Iterate in reverse so that removals don't shift unvisited
	// elements.
	for i := len(f.subscribers) - 1; i >= 0; i-- {
		sub := f.subscribers[i]

		// Clean up disconnected subscribers.
		select {
		case <-sub.done:
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			continue
		default:
		}

		// Non-blocking send. On overflow, mark for resync.
		select {
		case sub.channel <- event:
		default:
			sub.resync.Store(true)
		}
	}
}

func (f *subscriberFanout) add(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, sub)
}

func (f *subscriberFanout) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.subscribers {
		if existing == sub {
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			return
		}
	}
}

func (f *subscriberFanout) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// --- Subscribe wire protocol ---

// subscribeFrame is a single CBOR value written on the subscribe
// stream. The Type field discriminates frame semantics:
//
//   - "listing": a listing exists or was just created (Listing
//     populated). Idempotent by id — snapshot and live frames share
//     this type, and a listing may repeat across a snapshot boundary.
//   - "caught_up": the snapshot is complete, live events follow
//     (Stats populated)
//   - "heartbeat": connection liveness probe (no payload)
//   - "resync": subscriber buffer overflowed; the client should clear
//     its local index and expect a new full snapshot
//   - "error": terminal error, connection will close (Message populated)
//
// Frames carry only the creation header (id, host, grid) — content
// refs, administrator sets, and device refs stay behind the query
// actions.
type subscribeFrame struct {
	Type    string             `cbor:"type"`
	Listing *registry.Creation `cbor:"listing,omitempty"`
	Stats   *registry.Stats    `cbor:"stats,omitempty"`
	Message string             `cbor:"message,omitempty"`
}

// heartbeatInterval is the time between heartbeat frames on a
// subscribe stream. The client should consider the connection dead
// if no frame (of any type) arrives within 2x this interval.
const heartbeatInterval = 30 * time.Second

// --- Subscribe handler ---

// handleSubscribe is the stream handler for the "subscribe" action.
// It writes a snapshot of the current listings as "listing" frames,
// marks the boundary with "caught_up", then forwards live creation
// events until the connection or the server goes away.
//
// The subscriber registers before the snapshot is collected, so an
// event that lands during collection is both in the snapshot and
// buffered in the channel. Clients treat "listing" frames as
// idempotent puts keyed by id, which makes the duplicate harmless.
func (rs *RegistryService) handleSubscribe(ctx context.Context, caller *token.Token, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	done := make(chan struct{})
	sub := &subscriber{
		channel: make(chan registry.Creation, subscriberChannelSize),
		done:    done,
	}
	rs.fanout.add(sub)

	defer func() {
		close(done)
		rs.fanout.remove(sub)
		rs.logger.Info("subscribe stream ended", "subject", caller.Subject)
	}()

	snapshot, err := rs.collectHeaders()
	if err != nil {
		encoder.Encode(subscribeFrame{Type: "error", Message: err.Error()})
		return
	}

	rs.logger.Info("subscribe stream started",
		"subject", caller.Subject,
		"listings", len(snapshot),
	)

	if err := rs.writeHeaders(encoder, snapshot); err != nil {
		rs.logger.Debug("subscribe stream write error during snapshot", "error", err)
		return
	}

	rs.subscribeEventLoop(ctx, encoder, sub)
}

// collectHeaders snapshots the creation headers of every current
// listing. The export runs under the service's own authority; only
// the id/host/grid header of each listing reaches the stream.
func (rs *RegistryService) collectHeaders() ([]registry.Creation, error) {
	listings, err := rs.registry.Export(rs.registry.Owner())
	if err != nil {
		return nil, err
	}

	headers := make([]registry.Creation, 0, len(listings))
	for _, listing := range listings {
		headers = append(headers, registry.Creation{
			ID:   listing.ID,
			Host: listing.Host,
			Grid: listing.Grid,
		})
	}
	return headers, nil
}

// writeHeaders writes a complete snapshot followed by the caught_up
// marker. Returns the first write error encountered.
func (rs *RegistryService) writeHeaders(encoder *codec.Encoder, headers []registry.Creation) error {
	for i := range headers {
		if err := encoder.Encode(subscribeFrame{
			Type:    "listing",
			Listing: &headers[i],
		}); err != nil {
			return err
		}
	}

	stats := rs.registry.Stats()
	return encoder.Encode(subscribeFrame{
		Type:  "caught_up",
		Stats: &stats,
	})
}

// subscribeEventLoop reads events from the subscriber channel and
// writes them as CBOR frames to the connection. Runs until the
// context is cancelled (server shutdown) or the connection fails.
//
// On channel overflow (resync flag set), the loop drains buffered
// events, writes a resync frame, collects a fresh snapshot, and
// writes it before resuming live event forwarding.
func (rs *RegistryService) subscribeEventLoop(ctx context.Context, encoder *codec.Encoder, sub *subscriber) {
	heartbeat := rs.clock.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-sub.channel:
			// Check resync before processing. If set, some events
			// were dropped and everything buffered is stale; the
			// fresh snapshot includes the effect of every drop.
			if sub.resync.CompareAndSwap(true, false) {
				for len(sub.channel) > 0 {
					<-sub.channel
				}

				if err := encoder.Encode(subscribeFrame{Type: "resync"}); err != nil {
					rs.logger.Debug("subscribe stream write error", "error", err)
					return
				}

				snapshot, err := rs.collectHeaders()
				if err != nil {
					encoder.Encode(subscribeFrame{Type: "error", Message: err.Error()})
					return
				}
				if err := rs.writeHeaders(encoder, snapshot); err != nil {
					rs.logger.Debug("subscribe stream write error during resync", "error", err)
					return
				}
				continue
			}

			if err := encoder.Encode(subscribeFrame{
				Type:    "listing",
				Listing: &event,
			}); err != nil {
				rs.logger.Debug("subscribe stream write error", "error", err)
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(subscribeFrame{Type: "heartbeat"}); err != nil {
				rs.logger.Debug("subscribe stream heartbeat error", "error", err)
				return
			}
		}
	}
}
