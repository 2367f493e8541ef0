package mediaengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimEngine_NewElementUnknownFactoryErrors(t *testing.T) {
	e := NewSimEngine(nil)
	_, err := e.NewElement("does-not-exist", "id1")
	assert.Error(t, err)
}

func TestSimEngine_RequestPadAllocatesDistinctPads(t *testing.T) {
	e := NewSimEngine(nil)
	tee, err := e.NewElement("tee", "tee1")
	require.NoError(t, err)

	p1, err := tee.RequestPad("src_%u")
	require.NoError(t, err)
	p2, err := tee.RequestPad("src_%u")
	require.NoError(t, err)

	assert.NotEqual(t, p1.Name(), p2.Name())
}

func TestSimElement_StaticPadLinkAndUnlink(t *testing.T) {
	e := NewSimEngine(nil)
	src, err := e.NewElement("videotestsrc", "src")
	require.NoError(t, err)
	sink, err := e.NewElement("fakesink", "sink")
	require.NoError(t, err)

	srcPad, ok := src.StaticPad("src")
	require.True(t, ok)
	sinkPad, ok := sink.StaticPad("sink")
	require.True(t, ok)

	require.NoError(t, srcPad.Link(sinkPad))
	peer, ok := srcPad.Peer()
	require.True(t, ok)
	assert.Equal(t, sinkPad.Name(), peer.Name())

	require.NoError(t, srcPad.Unlink())
	_, ok = srcPad.Peer()
	assert.False(t, ok)
}

func TestSimElement_OnPadAddedFiresForSometimesPad(t *testing.T) {
	e := NewSimEngine(nil)
	dec, err := e.NewElement("decodebin", "dec1")
	require.NoError(t, err)

	fired := make(chan Pad, 1)
	dec.OnPadAdded(func(p Pad) { fired <- p })

	select {
	case p := <-fired:
		assert.Equal(t, "src_0", p.Name())
	case <-time.After(time.Second):
		t.Fatal("expected decodebin's simulated sometimes-pad to fire within the deadline")
	}
}

func TestSimElement_SetPropertyUnknownNameErrors(t *testing.T) {
	e := NewSimEngine(nil)
	src, err := e.NewElement("videotestsrc", "src1")
	require.NoError(t, err)

	err = src.SetProperty("not-a-real-property", true)
	assert.Error(t, err)
}

func TestSimPipeline_SetStateEmitsBusStateChanged(t *testing.T) {
	e := NewSimEngine(nil)
	pipe := e.NewPipeline("flow-1")

	err := pipe.SetState(StatePlaying)
	require.NoError(t, err)

	select {
	case msg := <-pipe.Bus():
		assert.Equal(t, BusStateChanged, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a state-changed bus message")
	}
}

func TestInjectBusError_DeliversSyntheticErrorOnBus(t *testing.T) {
	e := NewSimEngine(nil)
	pipe := e.NewPipeline("flow-2")

	require.NoError(t, InjectBusError(pipe, "dec1", "stream", 42, "simulated decoder fault"))

	select {
	case msg := <-pipe.Bus():
		assert.Equal(t, BusError, msg.Kind)
		assert.Equal(t, "dec1", msg.SourceElement)
		assert.Equal(t, "stream", msg.Domain)
		assert.Equal(t, 42, msg.Code)
		assert.Equal(t, "simulated decoder fault", msg.Detail)
	case <-time.After(time.Second):
		t.Fatal("expected the injected bus error to be delivered")
	}
}

func TestInjectBusError_RejectsNonSimPipeline(t *testing.T) {
	err := InjectBusError(fakePipeline{}, "", "", 0, "")
	assert.Error(t, err)
}

type fakePipeline struct{}

func (fakePipeline) Add(Element) error              { return nil }
func (fakePipeline) Remove(Element) error            { return nil }
func (fakePipeline) Elements() []Element             { return nil }
func (fakePipeline) LinkElements(Element, Element) error { return nil }
func (fakePipeline) SetState(State) error            { return nil }
func (fakePipeline) State() State                    { return StateNull }
func (fakePipeline) Bus() <-chan BusMessage          { return nil }
func (fakePipeline) Close() error                    { return nil }
