package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

func newTestExpander() *Expander {
	return New(registry.New(mediaengine.NewSimEngine(nil)))
}

func TestExpand_RTPReceiverExposesSrcPad(t *testing.T) {
	e := newTestExpander()
	node := types.BlockNode{
		ID:      "recv1",
		BlockID: "builtin.rtp_receiver",
		Properties: map[string]types.TypedValue{
			"port": types.Int64(6000),
		},
	}

	exp, err := e.Expand(node)
	require.NoError(t, err)
	assert.Len(t, exp.Elements, 2)
	assert.Len(t, exp.InternalLinks, 1)
	require.Contains(t, exp.ExternalPads, "src")
	require.Len(t, exp.Endpoints, 1)
	assert.Equal(t, "rtp-session", exp.Endpoints[0].Kind)
}

func TestExpand_RTPReceiverRejectsInvalidPort(t *testing.T) {
	e := newTestExpander()
	node := types.BlockNode{
		ID:      "recv1",
		BlockID: "builtin.rtp_receiver",
		Properties: map[string]types.TypedValue{
			"port": types.Int64(99999),
		},
	}

	_, err := e.Expand(node)
	assert.Error(t, err)
}

func TestExpand_UnknownBlockIDErrors(t *testing.T) {
	e := newTestExpander()
	_, err := e.Expand(types.BlockNode{ID: "x", BlockID: "does.not.exist"})
	assert.Error(t, err)
}

func TestExpand_AutoCodecPicksFirstAvailableFactory(t *testing.T) {
	e := newTestExpander()
	node := types.BlockNode{
		ID:      "codec1",
		BlockID: "builtin.auto_codec",
		Properties: map[string]types.TypedValue{
			"mode":        types.String("encode"),
			"media_class": types.String("video"),
		},
	}

	exp, err := e.Expand(node)
	require.NoError(t, err)
	require.Len(t, exp.Elements, 1)
	assert.Equal(t, "x264enc", exp.Elements[0].FactoryName)
}

func TestExpand_AutoCodecErrorsWhenNoFactoryAvailable(t *testing.T) {
	e := newTestExpander()
	node := types.BlockNode{
		ID:      "codec1",
		BlockID: "builtin.auto_codec",
		Properties: map[string]types.TypedValue{
			"mode":        types.String("decode"),
			"media_class": types.String("video"),
		},
	}

	_, err := e.Expand(node)
	assert.Error(t, err, "neither avdec_h264 nor vp8dec exist in the simulated registry")
}

func TestExpand_MixerBuildsOneChainPerChannel(t *testing.T) {
	e := newTestExpander()
	node := types.BlockNode{
		ID:      "mix1",
		BlockID: "builtin.mixer",
		Properties: map[string]types.TypedValue{
			"num_channels": types.Int64(3),
		},
	}

	exp, err := e.Expand(node)
	require.NoError(t, err)
	// 3 channels * 3-element chain + 1 shared bus element.
	assert.Len(t, exp.Elements, 10)
	assert.Contains(t, exp.ExternalPads, "ch_0_in")
	assert.Contains(t, exp.ExternalPads, "ch_2_in")
	assert.Contains(t, exp.ExternalPads, "out")
}

func TestExpand_MixerRejectsZeroChannels(t *testing.T) {
	e := newTestExpander()
	node := types.BlockNode{
		ID:      "mix1",
		BlockID: "builtin.mixer",
		Properties: map[string]types.TypedValue{
			"num_channels": types.Int64(0),
		},
	}

	_, err := e.Expand(node)
	assert.Error(t, err)
}

func TestExpandAll_QualifiesExternalPadsByBlockNodeID(t *testing.T) {
	e := newTestExpander()
	flow := types.Flow{
		Blocks: []types.BlockNode{
			{ID: "recv1", BlockID: "builtin.rtp_receiver", Properties: map[string]types.TypedValue{"port": types.Int64(6000)}},
			{ID: "send1", BlockID: "builtin.rtp_sender", Properties: map[string]types.TypedValue{"port": types.Int64(6001)}},
		},
	}

	elements, links, external, endpoints, err := e.ExpandAll(flow)
	require.NoError(t, err)
	assert.Len(t, elements, 4)
	assert.Len(t, links, 2)
	assert.Contains(t, external, "recv1:src")
	assert.Contains(t, external, "send1:sink")
	assert.Len(t, endpoints, 2)
}

func TestDefinitions_ListsAllRegisteredBlocksSorted(t *testing.T) {
	defs := Definitions()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		assert.LessOrEqual(t, defs[i-1].BlockID, defs[i].BlockID)
	}
	ids := make(map[string]bool)
	for _, d := range defs {
		ids[d.BlockID] = true
	}
	assert.True(t, ids["builtin.rtp_receiver"])
	assert.True(t, ids["builtin.webrtc_ingress"])
}
