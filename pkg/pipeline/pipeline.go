// Package pipeline implements the Pipeline Builder: element
// instantiation, fan-out auto-insertion, and pad linking against an
// expanded element graph, per the transactional build contract — either
// a full FlowRuntime is returned or a typed error with no side effects.
package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/flowforge/runtime/pkg/blocks"
	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/log"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/metrics"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

// elementLevelLinkOnly lists factories known to exhibit deadlocks under
// direct request-pad calls from outside (muxers with internal pad
// ordering). Static, initialized from empirical knowledge, same spirit
// as the Element Registry's skip-list.
var elementLevelLinkOnly = map[string]bool{
	"mpegtsmux": true,
	"matroskamux": true,
}

// fanOutFactory picks the fan-out factory name for a media class. Most
// frameworks expose a single "tee"-style factory usable for any class.
func fanOutFactory(mc mediaengine.MediaClass) string {
	return "tee"
}

// DeferredLink records a link whose source pad did not exist at build
// time; it resolves once the source element's pad-added signal fires
// with a matching pad.
type DeferredLink struct {
	SrcNode    string
	SinkNode   string
	SinkPad    string
	PadMatch   func(mediaengine.Pad) bool
	Formed     bool
}

// Result is the product of a successful Build: the live pipeline handle,
// the node_id -> element handle index (including injected fan-outs), and
// any deferred links still pending a dynamic pad.
type Result struct {
	Pipeline      mediaengine.Pipeline
	ElementIndex  map[string]mediaengine.Element
	DeferredLinks []*DeferredLink
}

// Builder is the Pipeline Builder.
type Builder struct {
	registry *registry.Registry
	expander *blocks.Expander
}

// New creates a Builder backed by the given Element Registry. The
// Expander is derived from the same registry so block expansion can
// probe factory availability.
func New(reg *registry.Registry) *Builder {
	return &Builder{registry: reg, expander: blocks.New(reg)}
}

// Build expands the flow's blocks, instantiates every element, applies
// initial properties, inserts fan-outs, and links pads. On any failure
// it unwinds everything it created and returns a typed error.
func (b *Builder) Build(flow types.Flow) (res *Result, err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.BuildDuration)
		if err != nil {
			metrics.BuildFailuresTotal.WithLabelValues(failureKind(err)).Inc()
		}
	}()

	blockElements, blockLinks, externalPads, _, err := b.expander.ExpandAll(flow)
	if err != nil {
		return nil, err
	}

	allElements := append(append([]types.ElementNode(nil), flow.Elements...), blockElements...)
	allLinks := append(append([]types.Link(nil), flow.Links...), blockLinks...)

	pipe := b.registry.Engine().NewPipeline(flow.ID)
	index := make(map[string]mediaengine.Element, len(allElements))

	// Unwind state: on any failure below, tear down everything added so
	// far and close the pipeline, so no partial FlowRuntime escapes.
	unwind := func() {
		for _, el := range index {
			_ = pipe.Remove(el)
		}
		_ = pipe.Close()
	}

	for _, spec := range allElements {
		el, cerr := b.registry.Engine().NewElement(spec.FactoryName, spec.ID)
		if cerr != nil {
			unwind()
			return nil, &flowerrors.NotFoundError{Kind: "factory", ID: spec.FactoryName}
		}
		if perr := applyProperties(el, spec.Properties); perr != nil {
			unwind()
			return nil, perr
		}
		if err := pipe.Add(el); err != nil {
			unwind()
			return nil, fmt.Errorf("adding element %q: %w", spec.ID, err)
		}
		index[spec.ID] = el
	}

	resolvedLinks, err := resolveExternalPads(allLinks, externalPads)
	if err != nil {
		unwind()
		return nil, err
	}

	resolvedLinks, teeCount := insertFanOuts(resolvedLinks, index, pipe, b.registry.Engine())
	metrics.FanOutInsertedTotal.Add(float64(teeCount))

	var deferred []*DeferredLink
	for _, link := range resolvedLinks {
		srcNode, srcPad, derr := types.Endpoint(link.From)
		if derr != nil {
			unwind()
			return nil, &flowerrors.LinkError{From: link.From, To: link.To, Detail: derr.Error()}
		}
		sinkNode, sinkPad, derr := types.Endpoint(link.To)
		if derr != nil {
			unwind()
			return nil, &flowerrors.LinkError{From: link.From, To: link.To, Detail: derr.Error()}
		}

		srcEl, ok := index[srcNode]
		if !ok {
			unwind()
			return nil, &flowerrors.LinkError{From: link.From, To: link.To, Detail: fmt.Sprintf("unknown source node %q", srcNode)}
		}
		sinkEl, ok := index[sinkNode]
		if !ok {
			unwind()
			return nil, &flowerrors.LinkError{From: link.From, To: link.To, Detail: fmt.Sprintf("unknown sink node %q", sinkNode)}
		}

		dl, lerr := linkOne(pipe, srcEl, srcPad, sinkEl, sinkPad)
		if lerr != nil {
			unwind()
			return nil, lerr
		}
		if dl != nil {
			deferred = append(deferred, dl)
		}
	}

	return &Result{Pipeline: pipe, ElementIndex: index, DeferredLinks: deferred}, nil
}

func failureKind(err error) string {
	switch err.(type) {
	case *flowerrors.NotFoundError:
		return "not_found"
	case *flowerrors.LinkError:
		return "link_error"
	case *flowerrors.UnknownBlockError, *flowerrors.BlockConfigInvalidError:
		return "block_error"
	default:
		return "other"
	}
}

func applyProperties(el mediaengine.Element, props map[string]types.TypedValue) error {
	for name, v := range props {
		native, err := nativeValue(v)
		if err != nil {
			return &flowerrors.TypeMismatchError{ElementID: el.ID(), Name: name, Expected: "unknown", Got: string(v.Kind)}
		}
		if serr := el.SetProperty(name, native); serr != nil {
			// Unknown property names are logged as warnings but are not
			// fatal, to permit forward/backward compatibility of Flow
			// documents.
			log.WithElementID(el.ID()).Warn().Str("property", name).Err(serr).Msg("unknown property on element, ignoring")
		}
	}
	return nil
}

func nativeValue(v types.TypedValue) (interface{}, error) {
	switch v.Kind {
	case types.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case types.KindInt64:
		i, _ := v.AsInt64()
		return i, nil
	case types.KindUInt64:
		u, _ := v.AsUInt64()
		return u, nil
	case types.KindFloat64:
		f, _ := v.AsFloat64()
		return f, nil
	case types.KindString:
		s, _ := v.AsString()
		return s, nil
	case types.KindCaps:
		s, _ := v.AsCaps()
		return s, nil
	case types.KindEnum:
		_, val, _ := v.AsEnum()
		return val, nil
	case types.KindFraction:
		num, den, _ := v.AsFraction()
		return [2]int32{num, den}, nil
	default:
		return nil, fmt.Errorf("unsupported typed value kind %q", v.Kind)
	}
}

// resolveExternalPads rewrites link endpoints that reference a block's
// external pad name into the concrete (element_id:pad_name) they alias,
// so the rest of the builder treats the block as transparent.
func resolveExternalPads(links []types.Link, externalPads map[string]blocks.ElementPadRef) ([]types.Link, error) {
	resolved := make([]types.Link, len(links))
	for i, l := range links {
		from, err := resolveEndpoint(l.From, externalPads)
		if err != nil {
			return nil, err
		}
		to, err := resolveEndpoint(l.To, externalPads)
		if err != nil {
			return nil, err
		}
		resolved[i] = types.Link{From: from, To: to}
	}
	return resolved, nil
}

func resolveEndpoint(endpoint string, externalPads map[string]blocks.ElementPadRef) (string, error) {
	if ref, ok := externalPads[endpoint]; ok {
		return ref.ElementID + ":" + ref.PadName, nil
	}
	return endpoint, nil
}

// insertFanOuts rewrites links so any source pad with out-degree > 1
// routes through a freshly inserted tee element instead of being linked
// directly more than once.
func insertFanOuts(links []types.Link, index map[string]mediaengine.Element, pipe mediaengine.Pipeline, engine mediaengine.Engine) ([]types.Link, int) {
	outDegree := map[string][]int{} // "node:pad" -> indexes into links whose From matches
	for i, l := range links {
		outDegree[l.From] = append(outDegree[l.From], i)
	}

	out := append([]types.Link(nil), links...)
	teeCount := 0
	for srcKey, idxs := range outDegree {
		if len(idxs) <= 1 {
			continue
		}
		node, pad, err := types.Endpoint(srcKey)
		if err != nil {
			continue
		}
		srcEl, ok := index[node]
		if !ok {
			continue
		}
		teeID := fmt.Sprintf("_tee_%d", teeCount)
		teeCount++
		teeEl, err := engine.NewElement(fanOutFactory(mediaengine.MediaAny), teeID)
		if err != nil {
			continue
		}
		_ = pipe.Add(teeEl)
		index[teeID] = teeEl

		// Route original source pad into the tee's sink, then rewrite
		// every outgoing link so its source becomes a freshly requested
		// source pad on the tee. Each rewritten link shares the same
		// request template; RequestPad allocates a fresh index per call.
		out = append(out, types.Link{From: srcKey, To: teeID + ":sink"})
		for _, i := range idxs {
			out[i] = types.Link{From: teeID + ":src_%u", To: out[i].To}
		}
		_ = srcEl
	}
	return out, teeCount
}

var trailingDigits = regexp.MustCompile(`^(.*?)[_]?(\d+)$`)

// linkOne applies the five pad-linking rules in order, returning a
// DeferredLink when rule 3 (sometimes-pad) applies.
func linkOne(pipe mediaengine.Pipeline, srcEl, sinkEl mediaengine.Element, srcPadSpec, sinkPad string) (*DeferredLink, error) {
	// A fan-out's request template ("src_%u") allocates a fresh source
	// pad per call; route it through the same request-pad path as any
	// other template-named source pad below.
	if strings.Contains(srcPadSpec, "%u") || strings.Contains(srcPadSpec, "%d") {
		pad, err := srcEl.RequestPad(srcPadSpec)
		if err != nil {
			return nil, &flowerrors.LinkError{From: srcEl.ID() + ":" + srcPadSpec, To: sinkEl.ID() + ":" + sinkPad, Detail: err.Error()}
		}
		return linkStaticOrRequestSink(pipe, pad, sinkEl, sinkPad, srcEl.ID(), srcPadSpec)
	}

	// Rule 4: element-level-link-only factories.
	if elementLevelLinkOnly[sinkEl.FactoryName()] {
		if err := pipe.LinkElements(srcEl, sinkEl); err != nil {
			return nil, &flowerrors.LinkError{From: srcEl.ID() + ":" + srcPadSpec, To: sinkEl.ID() + ":" + sinkPad, Detail: err.Error()}
		}
		return nil, nil
	}

	// Rule 1: static-pad-on-both-sides fast path.
	srcPad, srcStatic := srcEl.StaticPad(srcPadSpec)
	sinkPadHandle, sinkStatic := sinkEl.StaticPad(sinkPad)
	if srcStatic && sinkStatic {
		if err := srcPad.Link(sinkPadHandle); err != nil {
			return nil, &flowerrors.LinkError{From: srcEl.ID() + ":" + srcPadSpec, To: sinkEl.ID() + ":" + sinkPad, Detail: err.Error()}
		}
		return nil, nil
	}

	// Rule 2: template-named pads. Try the exact name as a request
	// template, then the two canonical template patterns.
	if !srcStatic {
		if pad, err := requestBySpec(srcEl, srcPadSpec); err == nil {
			return linkStaticOrRequestSink(pipe, pad, sinkEl, sinkPad, srcEl.ID(), srcPadSpec)
		}
	}
	if !sinkStatic {
		if pad, err := requestBySpec(sinkEl, sinkPad); err == nil {
			if srcStatic {
				if err := srcPad.Link(pad); err != nil {
					return nil, &flowerrors.LinkError{From: srcEl.ID() + ":" + srcPadSpec, To: sinkEl.ID() + ":" + sinkPad, Detail: err.Error()}
				}
				return nil, nil
			}
		}
	}

	// Rule 3: sometimes pads — register a deferred link instead of
	// failing outright.
	dl := &DeferredLink{
		SrcNode:  srcEl.ID(),
		SinkNode: sinkEl.ID(),
		SinkPad:  sinkPad,
		PadMatch: matchByNameOrPrefix(srcPadSpec),
	}
	srcEl.OnPadAdded(func(p mediaengine.Pad) {
		if dl.Formed || !dl.PadMatch(p) {
			return
		}
		target, ok := sinkEl.StaticPad(sinkPad)
		if !ok {
			var rerr error
			target, rerr = sinkEl.RequestPad(sinkPad)
			if rerr != nil {
				return
			}
		}
		if err := p.Link(target); err == nil {
			dl.Formed = true
		}
	})
	return dl, nil
}

func linkStaticOrRequestSink(pipe mediaengine.Pipeline, srcPad mediaengine.Pad, sinkEl mediaengine.Element, sinkPad, srcNodeID, srcPadSpec string) (*DeferredLink, error) {
	target, ok := sinkEl.StaticPad(sinkPad)
	if !ok {
		var err error
		target, err = requestBySpec(sinkEl, sinkPad)
		if err != nil {
			return nil, &flowerrors.LinkError{From: srcNodeID + ":" + srcPadSpec, To: sinkEl.ID() + ":" + sinkPad, Detail: err.Error()}
		}
	}
	if err := srcPad.Link(target); err != nil {
		return nil, &flowerrors.LinkError{From: srcNodeID + ":" + srcPadSpec, To: sinkEl.ID() + ":" + sinkPad, Detail: err.Error()}
	}
	return nil, nil
}

// requestBySpec infers a request template from a concrete pad name by
// stripping trailing digits and an optional separator, then tries the
// exact name, followed by the two canonical template patterns. It never
// enumerates all templates from the factory class.
func requestBySpec(el mediaengine.Element, padSpec string) (mediaengine.Pad, error) {
	if pad, err := el.RequestPad(padSpec); err == nil {
		return pad, nil
	}
	m := trailingDigits.FindStringSubmatch(padSpec)
	if m == nil {
		return nil, fmt.Errorf("no request template matches %q", padSpec)
	}
	prefix := m[1]
	for _, pattern := range []string{prefix + "_%u", prefix + "_%d"} {
		if pad, err := el.RequestPad(pattern); err == nil {
			return pad, nil
		}
	}
	return nil, fmt.Errorf("no request template matches %q", padSpec)
}

func matchByNameOrPrefix(spec string) func(mediaengine.Pad) bool {
	return func(p mediaengine.Pad) bool {
		if p.Name() == spec {
			return true
		}
		m := trailingDigits.FindStringSubmatch(spec)
		if m == nil {
			return false
		}
		return strings.HasPrefix(p.Name(), m[1])
	}
}

// WaitForDeferredLinks blocks until every deferred link has formed or
// the deadline elapses, returning a LinkError naming the first unformed
// link if the deadline is reached. Used by the Lifecycle Manager while
// waiting for the flow to reach Running.
func WaitForDeferredLinks(deferred []*DeferredLink, deadline time.Duration) error {
	if len(deferred) == 0 {
		return nil
	}
	poll := 10 * time.Millisecond
	elapsed := time.Duration(0)
	for {
		allFormed := true
		for _, dl := range deferred {
			if !dl.Formed {
				allFormed = false
				break
			}
		}
		if allFormed {
			return nil
		}
		if elapsed >= deadline {
			for _, dl := range deferred {
				if !dl.Formed {
					return &flowerrors.LinkError{From: dl.SrcNode, To: dl.SinkNode + ":" + dl.SinkPad, Detail: "dynamic-pad-timeout"}
				}
			}
			return nil
		}
		time.Sleep(poll)
		elapsed += poll
	}
}
