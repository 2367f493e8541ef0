package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/types"
)

func TestBroker_PublishMatchesFilter(t *testing.T) {
	b := NewBroker()

	subA := b.Subscribe(Filter{FlowID: "flow-a"})
	defer subA.Close()
	subAll := b.Subscribe(Filter{})
	defer subAll.Close()

	b.Publish(types.Event{FlowID: "flow-a", Kind: types.EventStateChanged})
	b.Publish(types.Event{FlowID: "flow-b", Kind: types.EventStateChanged})

	select {
	case ev := <-subA.C:
		assert.Equal(t, "flow-a", ev.FlowID)
	case <-time.After(time.Second):
		t.Fatal("expected flow-a subscriber to receive its event")
	}

	select {
	case ev := <-subA.C:
		t.Fatalf("flow-a subscriber should not receive flow-b's event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	received := 0
	for i := 0; i < 2; i++ {
		select {
		case <-subAll.C:
			received++
		case <-time.After(time.Second):
			t.Fatal("expected global subscriber to receive both events")
		}
	}
	assert.Equal(t, 2, received)
}

func TestBroker_CloseStopsDelivery(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(Filter{})
	sub.Close()

	// Publishing after Close must not panic or block.
	b.Publish(types.Event{FlowID: "flow-x", Kind: types.EventInfo})

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
}

func TestBroker_NextSequenceIsMonotonic(t *testing.T) {
	b := NewBroker()
	first := b.NextSequence("flow-1")
	second := b.NextSequence("flow-1")
	otherFlow := b.NextSequence("flow-2")

	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(1), second)
	assert.Equal(t, uint64(0), otherFlow, "sequence numbers are tracked per flow")
}

func TestBroker_OverflowDoesNotBlockPublisher(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(Filter{})
	defer sub.Close()

	// Flood far past the subscriber's bounded buffer without draining it.
	// Publish must never block, regardless of how far behind the
	// subscriber falls.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(types.Event{FlowID: "flow-1", Kind: types.EventInfo})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	drained := 0
drain:
	for {
		select {
		case <-sub.C:
			drained++
		default:
			break drain
		}
	}
	require.Greater(t, drained, 0)
	require.LessOrEqual(t, drained, 64, "buffer is bounded to 64 events")
}
