// Package events implements the Event Broadcaster: a single-producer,
// multiple-consumer fan-out with bounded per-consumer buffers. A slow
// consumer is dropped rather than stalling the producer, and receives a
// lagged marker in its place so it knows at least one event was missed.
// Adapted from the teacher's pkg/events broker, generalized with
// per-flow monotonic sequence numbers and subscription filters.
package events

import (
	"sync"

	"github.com/flowforge/runtime/pkg/metrics"
	"github.com/flowforge/runtime/pkg/types"
)

// Filter selects which events a Subscription receives. A zero-value
// Filter (no FlowID) matches every flow, giving a global stream.
type Filter struct {
	FlowID string // empty matches all flows
}

func (f Filter) matches(e types.Event) bool {
	return f.FlowID == "" || f.FlowID == e.FlowID
}

// Subscription is a live event stream handle returned by Subscribe.
type Subscription struct {
	C      <-chan types.Event
	broker *Broker
	ch     chan types.Event
	filter Filter
}

// Close unsubscribes, releasing the subscriber's buffer.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

// Broker is the Event Broadcaster. One instance is shared process-wide;
// every Lifecycle Manager publishes through it.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]bool

	seqMu sync.Mutex
	seq   map[string]uint64 // flow_id -> next sequence number
}

// NewBroker creates a Broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[*Subscription]bool),
		seq:         make(map[string]uint64),
	}
}

// Subscribe creates a new subscription matching filter. The returned
// channel has a bounded buffer; if the consumer falls behind, new events
// are dropped and a Lagged event is queued in their place, displacing the
// oldest pending event.
func (b *Broker) Subscribe(filter Filter) *Subscription {
	ch := make(chan types.Event, 64)
	sub := &Subscription{C: ch, ch: ch, filter: filter, broker: b}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()
	metrics.EventSubscribersGauge.Set(float64(b.subscriberCount()))
	return sub
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
	metrics.EventSubscribersGauge.Set(float64(b.subscriberCount()))
}

func (b *Broker) subscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// NextSequence returns the next monotonically increasing sequence number
// for flowID. Called by the owning Lifecycle Manager, which is the only
// writer for that flow, so no additional per-flow ordering guard is
// needed beyond this counter.
func (b *Broker) NextSequence(flowID string) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	n := b.seq[flowID]
	b.seq[flowID] = n + 1
	return n
}

// Publish dispatches event to every subscriber whose filter matches it.
// Called only from inside the owning Lifecycle Manager, giving a
// per-flow total order on the wire.
func (b *Broker) Publish(event types.Event) {
	metrics.EventsPublishedTotal.WithLabelValues(string(event.Kind)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full: drop rather than stall the
			// producer. The oldest buffered event is discarded to make
			// room for a Lagged marker, so the subscriber learns at
			// least one event was missed.
			metrics.EventsDroppedTotal.Inc()
			select {
			case <-sub.ch:
				metrics.EventsDroppedTotal.Inc()
			default:
			}
			select {
			case sub.ch <- types.Event{FlowID: event.FlowID, Kind: types.EventLagged, Timestamp: event.Timestamp}:
			default:
			}
		}
	}
}
