package blocks

import (
	"fmt"

	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/types"
)

func init() {
	Register(rtpReceiverBlock{})
	Register(rtpSenderBlock{})
	Register(webrtcIngressBlock{})
	Register(webrtcEgressBlock{})
	Register(autoCodecBlock{})
	Register(mixerBlock{})
	Register(compositorBlock{})
	Register(levelMeterBlock{})
	Register(formatConverterBlock{})
}

func intProp(node types.BlockNode, name string, def int64) int64 {
	if v, ok := node.Properties[name]; ok {
		if i, ok := v.AsInt64(); ok {
			return i
		}
		if u, ok := v.AsUInt64(); ok {
			return int64(u)
		}
	}
	return def
}

func stringProp(node types.BlockNode, name, def string) string {
	if v, ok := node.Properties[name]; ok {
		if s, ok := v.AsString(); ok {
			return s
		}
	}
	return def
}

// --- RTP receiver / sender -------------------------------------------------

type rtpReceiverBlock struct{}

func (rtpReceiverBlock) Definition() Definition {
	return Definition{
		BlockID:     "builtin.rtp_receiver",
		DisplayName: "RTP Receiver",
		Description: "Receives an RTP-over-UDP session and exposes decoded media.",
		Properties: []PropertyDef{
			{Name: "port", Kind: types.KindInt64, Default: types.Int64(5000)},
			{Name: "media_class", Kind: types.KindString, Default: types.String("video")},
		},
		ExternalPadNames: []string{"src"},
	}
}

func (rtpReceiverBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	port := intProp(node, "port", 5000)
	if port <= 0 || port > 65535 {
		return &flowerrors.BlockConfigInvalidError{BlockID: "builtin.rtp_receiver", Detail: fmt.Sprintf("port %d out of range", port)}
	}
	src := ctx.AllocID("udpsrc")
	depay := ctx.AllocID("depay")
	ctx.AddElement(src, "udpsrc", map[string]types.TypedValue{"port": types.Int64(port)})
	ctx.AddElement(depay, "rtpdepay", nil)
	ctx.AddInternalLink(src, "src", depay, "sink")
	ctx.ExposePad("src", depay, "src")
	ctx.RegisterEndpoint(EndpointResource{
		EndpointID: node.ID,
		Kind:       "rtp-session",
		Detail:     map[string]string{"port": fmt.Sprintf("%d", port)},
	})
	return nil
}

type rtpSenderBlock struct{}

func (rtpSenderBlock) Definition() Definition {
	return Definition{
		BlockID:     "builtin.rtp_sender",
		DisplayName: "RTP Sender",
		Description: "Packetizes and sends media over an RTP-over-UDP session.",
		Properties: []PropertyDef{
			{Name: "host", Kind: types.KindString, Default: types.String("127.0.0.1")},
			{Name: "port", Kind: types.KindInt64, Default: types.Int64(5000)},
		},
		ExternalPadNames: []string{"sink"},
	}
}

func (rtpSenderBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	port := intProp(node, "port", 5000)
	if port <= 0 || port > 65535 {
		return &flowerrors.BlockConfigInvalidError{BlockID: "builtin.rtp_sender", Detail: fmt.Sprintf("port %d out of range", port)}
	}
	host := stringProp(node, "host", "127.0.0.1")
	pay := ctx.AllocID("pay")
	sink := ctx.AllocID("udpsink")
	ctx.AddElement(pay, "rtppay", nil)
	ctx.AddElement(sink, "udpsink", map[string]types.TypedValue{
		"host": types.String(host), "port": types.Int64(port),
	})
	ctx.AddInternalLink(pay, "src", sink, "sink")
	ctx.ExposePad("sink", pay, "sink")
	ctx.RegisterEndpoint(EndpointResource{
		EndpointID: node.ID,
		Kind:       "rtp-session",
		Detail:     map[string]string{"host": host, "port": fmt.Sprintf("%d", port)},
	})
	return nil
}

// --- WebRTC ingress / egress -----------------------------------------------

type webrtcIngressBlock struct{}

func (webrtcIngressBlock) Definition() Definition {
	return Definition{
		BlockID:          "builtin.webrtc_ingress",
		DisplayName:      "WebRTC Ingress (WHIP)",
		Description:      "Accepts a WHIP publish and exposes decoded audio/video pads.",
		ExternalPadNames: []string{"audio_src", "video_src"},
	}
}

func (webrtcIngressBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	bin := ctx.AllocID("whipsrc")
	ctx.AddElement(bin, "webrtcbin", nil)
	ctx.ExposePad("audio_src", bin, "audio_src")
	ctx.ExposePad("video_src", bin, "video_src")
	ctx.RegisterEndpoint(EndpointResource{EndpointID: node.ID, Kind: "whip", Detail: map[string]string{"element_id": bin}})
	return nil
}

type webrtcEgressBlock struct{}

func (webrtcEgressBlock) Definition() Definition {
	return Definition{
		BlockID:          "builtin.webrtc_egress",
		DisplayName:      "WebRTC Egress (WHEP)",
		Description:      "Publishes audio/video to WHEP subscribers.",
		ExternalPadNames: []string{"audio_sink", "video_sink"},
	}
}

func (webrtcEgressBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	bin := ctx.AllocID("whepsink")
	ctx.AddElement(bin, "webrtcbin", nil)
	ctx.ExposePad("audio_sink", bin, "audio_sink")
	ctx.ExposePad("video_sink", bin, "video_sink")
	ctx.RegisterEndpoint(EndpointResource{EndpointID: node.ID, Kind: "whep", Detail: map[string]string{"element_id": bin}})
	return nil
}

// --- Auto codec --------------------------------------------------------

type autoCodecBlock struct{}

func (autoCodecBlock) Definition() Definition {
	return Definition{
		BlockID:     "builtin.auto_codec",
		DisplayName: "Auto Codec",
		Description: "Selects the best available encoder or decoder for a media kind by probing the Element Registry.",
		Properties: []PropertyDef{
			{Name: "mode", Kind: types.KindString, Default: types.String("encode")},
			{Name: "media_class", Kind: types.KindString, Default: types.String("video")},
		},
		ExternalPadNames: []string{"sink", "src"},
	}
}

func (autoCodecBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	mode := stringProp(node, "mode", "encode")
	mediaClass := stringProp(node, "media_class", "video")

	candidates := candidateFactories(mode, mediaClass)
	var chosen string
	for _, name := range candidates {
		if _, err := ctx.Registry().Lookup(name); err == nil {
			chosen = name
			break
		}
	}
	if chosen == "" {
		return &flowerrors.BlockConfigInvalidError{
			BlockID: "builtin.auto_codec",
			Detail:  fmt.Sprintf("no available factory for mode=%s media_class=%s", mode, mediaClass),
		}
	}
	id := ctx.AllocID("codec")
	ctx.AddElement(id, chosen, nil)
	ctx.ExposePad("sink", id, "sink")
	ctx.ExposePad("src", id, "src")
	return nil
}

func candidateFactories(mode, mediaClass string) []string {
	switch {
	case mode == "encode" && mediaClass == "video":
		return []string{"x264enc", "vp8enc"}
	case mode == "encode" && mediaClass == "audio":
		return []string{"opusenc", "avenc_aac"}
	case mode == "decode" && mediaClass == "video":
		return []string{"avdec_h264", "vp8dec"}
	default:
		return []string{"decodebin"}
	}
}

// --- Mixer ---------------------------------------------------------------

type mixerBlock struct{}

func (mixerBlock) Definition() Definition {
	return Definition{
		BlockID:     "builtin.mixer",
		DisplayName: "Audio Mixer",
		Description: "N-channel mixer, each channel a linear volume/audiodynamic/equalizer-nbands chain feeding one audiomixer; there are no separate filter, gate or fader stages.",
		Properties: []PropertyDef{
			{Name: "num_channels", Kind: types.KindInt64, Default: types.Int64(2)},
		},
	}
}

func (mixerBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	numChannels := intProp(node, "num_channels", 2)
	if numChannels <= 0 {
		return &flowerrors.BlockConfigInvalidError{BlockID: "builtin.mixer", Detail: "num_channels must be > 0"}
	}

	busID := ctx.AllocID("audiomixer")
	ctx.AddElement(busID, "audiomixer", nil)

	for ch := int64(0); ch < numChannels; ch++ {
		chain := []string{"volume", "audiodynamic", "equalizer-nbands"}
		prev := ""
		var prevPad string
		for i, factory := range chain {
			id := ctx.AllocID(fmt.Sprintf("ch%d_%s", ch, factory))
			ctx.AddElement(id, factory, nil)
			if i == 0 {
				ctx.ExposePad(fmt.Sprintf("ch_%d_in", ch), id, "sink")
			} else {
				ctx.AddInternalLink(prev, prevPad, id, "sink")
			}
			prev, prevPad = id, "src"
		}
		ctx.AddInternalLink(prev, prevPad, busID, fmt.Sprintf("sink_%%u"))
	}
	ctx.ExposePad("out", busID, "src")
	return nil
}

// --- Compositor ------------------------------------------------------------

type compositorBlock struct{}

func (compositorBlock) Definition() Definition {
	return Definition{
		BlockID:     "builtin.compositor",
		DisplayName: "Video Compositor",
		Description: "N video inputs composited into one output; only num_inputs is configurable, and no per-input layout (position, size, z-order, alpha) is exposed.",
		Properties: []PropertyDef{
			{Name: "num_inputs", Kind: types.KindInt64, Default: types.Int64(2)},
		},
	}
}

func (compositorBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	numInputs := intProp(node, "num_inputs", 2)
	if numInputs <= 0 {
		return &flowerrors.BlockConfigInvalidError{BlockID: "builtin.compositor", Detail: "num_inputs must be > 0"}
	}
	compID := ctx.AllocID("compositor")
	ctx.AddElement(compID, "compositor", nil)
	for i := int64(0); i < numInputs; i++ {
		ctx.ExposePad(fmt.Sprintf("video_in_%d", i), compID, fmt.Sprintf("sink_%%u"))
	}
	ctx.ExposePad("video_out", compID, "src")
	return nil
}

// --- Level meter / format converter ---------------------------------------

type levelMeterBlock struct{}

func (levelMeterBlock) Definition() Definition {
	return Definition{
		BlockID:          "builtin.level_meter",
		DisplayName:      "Level Meter",
		Description:      "Reports per-channel audio levels as element metrics; passes audio through unchanged.",
		ExternalPadNames: []string{"sink", "src"},
	}
}

func (levelMeterBlock) Expand(_ types.BlockNode, ctx *BlockBuildContext) error {
	id := ctx.AllocID("level")
	ctx.AddElement(id, "level", nil)
	ctx.ExposePad("sink", id, "sink")
	ctx.ExposePad("src", id, "src")
	return nil
}

type formatConverterBlock struct{}

func (formatConverterBlock) Definition() Definition {
	return Definition{
		BlockID:          "builtin.format_converter",
		DisplayName:      "Format Converter",
		Description:      "Converts raw media between formats/color spaces/sample rates.",
		ExternalPadNames: []string{"sink", "src"},
	}
}

func (formatConverterBlock) Expand(node types.BlockNode, ctx *BlockBuildContext) error {
	mediaClass := stringProp(node, "media_class", "video")
	factory := "videoconvert"
	if mediaClass == "audio" {
		factory = "audioconvert"
	}
	id := ctx.AllocID("convert")
	ctx.AddElement(id, factory, nil)
	ctx.ExposePad("sink", id, "sink")
	ctx.ExposePad("src", id, "src")
	return nil
}
