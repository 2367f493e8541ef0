/*
Package events provides the Event Broadcaster for the Flow Runtime: an
in-memory, single-producer/multiple-consumer pub/sub bus that fans out
lifecycle and diagnostic events to event-stream subscribers.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Broker                         │          │
	│  │  - One instance shared process-wide         │          │
	│  │  - Every Lifecycle Manager publishes        │          │
	│  │    through it                               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Publish(event)                 │          │
	│  │       ↓                                      │          │
	│  │  Fan-out to matching Subscriptions          │          │
	│  │       ↓                                      │          │
	│  │  Subscriber channels (buffer: 64 each)      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │               Filter                        │          │
	│  │  - FlowID: "" matches every flow             │          │
	│  │  - FlowID: "flow-123" matches only that flow│          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Broker:
  - Central fan-out point for every published Event
  - Tracks subscribers in a map guarded by a RWMutex
  - Assigns per-flow monotonic sequence numbers via NextSequence

Filter:
  - FlowID selects a single flow's events, or all flows when empty
  - Matched per-event against each Subscription before delivery

Subscription:
  - Read-only channel (C) delivering matched Event values
  - Bounded buffer (64); a full buffer drops the event rather than
    blocking the publishing Lifecycle Manager
  - A dropped event is replaced with a Lagged marker event so the
    subscriber knows it missed something
  - Closed via Subscription.Close()

# Event Flow

Publish Flow:
 1. A Lifecycle Manager calls broker.Publish(event)
 2. The broker iterates its subscriber set under a read lock
 3. Each Subscription whose Filter matches receives the event
 4. A full subscriber buffer causes that event to be dropped and a
    Lagged event queued in its place (best effort)

Subscribe Flow:
 1. Caller calls broker.Subscribe(events.Filter{FlowID: id})
 2. A new buffered channel is created and registered
 3. The Subscription is returned; events.C yields matching Events
 4. Caller defers sub.Close() to release the buffer

# Usage

	import "github.com/flowforge/runtime/pkg/events"

	broker := events.NewBroker()

	// Subscribe to a single flow's events
	sub := broker.Subscribe(events.Filter{FlowID: "flow-123"})
	defer sub.Close()

	go func() {
		for event := range sub.C {
			fmt.Printf("%s: %s\n", event.Kind, event.FlowID)
		}
	}()

	// Subscribe to every flow (used by the global /events stream)
	all := broker.Subscribe(events.Filter{})
	defer all.Close()

Publishing from a Lifecycle Manager:

	seq := broker.NextSequence(flowID)
	broker.Publish(types.Event{
		FlowID:    flowID,
		Sequence:  seq,
		Kind:      types.EventStateChanged,
		Timestamp: time.Now(),
	})

# Integration Points

This package integrates with:

  - pkg/flow: Publishes state transitions, property writes, and errors
  - pkg/api: Subscribes per-flow and globally, republishing as SSE/WebSocket
  - pkg/reconciler: Observes auto-restart outcomes indirectly via pkg/flow
  - pkg/metrics: Publish/drop counts and live subscriber gauge

# Design Patterns

Non-Blocking Publish:
  - Publish never blocks on a slow subscriber
  - A full buffer drops the event and queues a Lagged marker instead

Single-Writer Ordering:
  - NextSequence is called only by the flow's owning Lifecycle Manager,
    which is itself a single-writer actor, so no extra per-flow locking
    is needed to keep sequence numbers monotonic on the wire

Filtered Fan-Out:
  - One Publish call serves both a flow-scoped subscriber and the
    global subscriber without duplicating the event

# Best Practices

Do:
  - Always defer Subscription.Close()
  - Treat a Lagged event as "re-fetch current state", not an error
  - Keep subscriber-side processing non-blocking

Don't:
  - Block inside the subscriber's receive loop
  - Assume delivery is guaranteed — it is best-effort under load

# See Also

  - pkg/flow for the events a Lifecycle Manager publishes
  - pkg/api for the HTTP event-stream transport built on this package
*/
package events
