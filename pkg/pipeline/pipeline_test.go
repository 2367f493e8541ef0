package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

func newTestBuilder() *Builder {
	engine := mediaengine.NewSimEngine(nil)
	return New(registry.New(engine))
}

func TestBuild_TwoElementLinearFlow(t *testing.T) {
	b := newTestBuilder()
	flow := types.Flow{
		ID: "flow-1",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "videotestsrc"},
			{ID: "sink", FactoryName: "fakesink"},
		},
		Links: []types.Link{{From: "src:src", To: "sink:sink"}},
	}

	res, err := b.Build(flow)
	require.NoError(t, err)
	assert.Len(t, res.ElementIndex, 2)
	assert.Empty(t, res.DeferredLinks)
}

func TestBuild_UnknownFactoryFails(t *testing.T) {
	b := newTestBuilder()
	flow := types.Flow{
		ID: "flow-2",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "does-not-exist"},
		},
	}

	_, err := b.Build(flow)
	assert.Error(t, err)
}

func TestBuild_OneToManyLinkInsertsFanOutTee(t *testing.T) {
	b := newTestBuilder()
	flow := types.Flow{
		ID: "flow-3",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "videotestsrc"},
			{ID: "sink1", FactoryName: "fakesink"},
			{ID: "sink2", FactoryName: "fakesink"},
		},
		Links: []types.Link{
			{From: "src:src", To: "sink1:sink"},
			{From: "src:src", To: "sink2:sink"},
		},
	}

	res, err := b.Build(flow)
	require.NoError(t, err)

	foundTee := false
	for id := range res.ElementIndex {
		if id == "_tee_0" {
			foundTee = true
		}
	}
	assert.True(t, foundTee, "expected a fan-out tee to be inserted for the shared source pad")
	assert.Len(t, res.ElementIndex, 4)
}

func TestBuild_SometimesPadProducesDeferredLinkThatLaterForms(t *testing.T) {
	b := newTestBuilder()
	flow := types.Flow{
		ID: "flow-4",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "filesrc", Properties: map[string]types.TypedValue{
				"location": types.String("/tmp/input.ts"),
			}},
			{ID: "dec", FactoryName: "decodebin"},
			{ID: "sink", FactoryName: "fakesink"},
		},
		Links: []types.Link{
			{From: "src:src", To: "dec:sink"},
			{From: "dec:src_0", To: "sink:sink"},
		},
	}

	res, err := b.Build(flow)
	require.NoError(t, err)
	require.Len(t, res.DeferredLinks, 1)
	assert.False(t, res.DeferredLinks[0].Formed)

	err = WaitForDeferredLinks(res.DeferredLinks, time.Second)
	require.NoError(t, err)
	assert.True(t, res.DeferredLinks[0].Formed)
}

func TestWaitForDeferredLinks_TimesOutWhenPadNeverAppears(t *testing.T) {
	dl := &DeferredLink{SrcNode: "dec", SinkNode: "sink", SinkPad: "sink"}
	err := WaitForDeferredLinks([]*DeferredLink{dl}, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForDeferredLinks_NoDeferredLinksReturnsImmediately(t *testing.T) {
	err := WaitForDeferredLinks(nil, time.Millisecond)
	assert.NoError(t, err)
}
