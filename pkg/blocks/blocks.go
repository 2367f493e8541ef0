// Package blocks implements the Block Expander: expansion of high-level
// block nodes into element sub-graphs with external pad aliasing, at
// pipeline-construction time.
package blocks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

// ElementPadRef names a concrete (element_id, pad_name) target that an
// external pad name aliases to.
type ElementPadRef struct {
	ElementID string
	PadName   string
}

// EndpointResource is a derived external resource a block registers
// while expanding, such as a WHIP/WHEP endpoint or an RTP session's port
// assignment. The Runtime Registry's endpoint directory indexes these.
type EndpointResource struct {
	EndpointID string
	Kind       string // "whip", "whep", "rtp-session"
	Detail     map[string]string
}

// Expansion is the result of expanding one BlockNode.
type Expansion struct {
	Elements      []types.ElementNode
	InternalLinks []types.Link
	ExternalPads  map[string]ElementPadRef
	Endpoints     []EndpointResource
}

// BlockBuildContext is the mutable context a BlockBuilder expands
// against. It buffers all produced artifacts so expansion is
// transactional from the caller's point of view: nothing is visible
// until Expand returns successfully.
type BlockBuildContext struct {
	blockNodeID string
	registry    *registry.Registry

	elements      []types.ElementNode
	internalLinks []types.Link
	externalPads  map[string]ElementPadRef
	endpoints     []EndpointResource
}

func newBuildContext(blockNodeID string, reg *registry.Registry) *BlockBuildContext {
	return &BlockBuildContext{
		blockNodeID:  blockNodeID,
		registry:     reg,
		externalPads: make(map[string]ElementPadRef),
	}
}

// AllocID derives a stable, namespaced internal element id for a local
// name within this block instance.
func (c *BlockBuildContext) AllocID(localName string) string {
	return fmt.Sprintf("%s:%s", c.blockNodeID, localName)
}

// AddElement registers one element spec produced by this expansion.
func (c *BlockBuildContext) AddElement(id, factoryName string, properties map[string]types.TypedValue) {
	c.elements = append(c.elements, types.ElementNode{ID: id, FactoryName: factoryName, Properties: properties})
}

// AddInternalLink registers one link between two elements internal to
// this block's expanded sub-graph.
func (c *BlockBuildContext) AddInternalLink(fromNode, fromPad, toNode, toPad string) {
	c.internalLinks = append(c.internalLinks, types.Link{
		From: fromNode + ":" + fromPad,
		To:   toNode + ":" + toPad,
	})
}

// ExposePad assigns an external, user-facing pad name to a concrete
// element pad produced by this expansion.
func (c *BlockBuildContext) ExposePad(externalName, elementID, padName string) {
	c.externalPads[externalName] = ElementPadRef{ElementID: elementID, PadName: padName}
}

// RegisterEndpoint records a derived external resource for the Runtime
// Registry's endpoint directory.
func (c *BlockBuildContext) RegisterEndpoint(res EndpointResource) {
	c.endpoints = append(c.endpoints, res)
}

// Registry exposes the Element Registry for capability probing (e.g.
// auto-selecting the best available codec for a media kind).
func (c *BlockBuildContext) Registry() *registry.Registry { return c.registry }

// BlockBuilder is a polymorphic entity registered under a stable
// block_id. Block IDs are public API: changing external pad names or
// property semantics is a breaking change to all Flow documents
// referencing the block.
type BlockBuilder interface {
	Definition() Definition
	// Expand populates ctx with the element sub-graph this block node
	// expands into. Returning an error means no partial artifacts are
	// surfaced to the caller.
	Expand(node types.BlockNode, ctx *BlockBuildContext) error
}

// PropertyDef documents one recognized block property.
type PropertyDef struct {
	Name    string
	Kind    types.ValueKind
	Default types.TypedValue
}

// Definition is the display/metadata contract a BlockBuilder advertises.
type Definition struct {
	BlockID     string
	DisplayName string
	Description string
	Properties  []PropertyDef
	// ExternalPadNames lists the block's external pads when static;
	// dynamic blocks (e.g. N-channel mixers) compute them at expansion
	// time instead and leave this empty.
	ExternalPadNames []string
}

var (
	registryMu sync.RWMutex
	builders   = map[string]BlockBuilder{}
)

// Register adds a BlockBuilder under its definition's BlockID. Intended
// to be called from package init() of built-in and user block packages.
func Register(b BlockBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	builders[b.Definition().BlockID] = b
}

// Lookup returns the builder registered for blockID.
func Lookup(blockID string) (BlockBuilder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := builders[blockID]
	return b, ok
}

// Definitions returns all registered block definitions, sorted by id,
// for the GET /blocks listing.
func Definitions() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Definition, 0, len(builders))
	for _, b := range builders {
		out = append(out, b.Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockID < out[j].BlockID })
	return out
}

// Expander expands BlockNodes using the globally registered builders.
type Expander struct {
	registry *registry.Registry
}

// New creates an Expander backed by the given Element Registry.
func New(reg *registry.Registry) *Expander {
	return &Expander{registry: reg}
}

// Expand expands one block node into its element sub-graph and external
// pad map. Per the transactional contract, a returned error carries no
// partial state: the BlockBuildContext used internally is simply
// discarded.
func (e *Expander) Expand(node types.BlockNode) (Expansion, error) {
	builder, ok := Lookup(node.BlockID)
	if !ok {
		return Expansion{}, &flowerrors.UnknownBlockError{BlockID: node.BlockID}
	}
	ctx := newBuildContext(node.ID, e.registry)
	if err := builder.Expand(node, ctx); err != nil {
		return Expansion{}, err
	}
	return Expansion{
		Elements:      ctx.elements,
		InternalLinks: ctx.internalLinks,
		ExternalPads:  ctx.externalPads,
		Endpoints:     ctx.endpoints,
	}, nil
}

// ExpandAll expands every block in the flow, merging their sub-graphs
// and collecting an id-qualified external pad index
// ("{block_node_id}:{external_name}" -> target) the Pipeline Builder
// uses to resolve outer links that reference block boundaries.
func (e *Expander) ExpandAll(flow types.Flow) ([]types.ElementNode, []types.Link, map[string]ElementPadRef, []EndpointResource, error) {
	var allElements []types.ElementNode
	var allLinks []types.Link
	allExternal := make(map[string]ElementPadRef)
	var allEndpoints []EndpointResource

	for _, block := range flow.Blocks {
		exp, err := e.Expand(block)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("expanding block %q (%s): %w", block.ID, block.BlockID, err)
		}
		allElements = append(allElements, exp.Elements...)
		allLinks = append(allLinks, exp.InternalLinks...)
		for name, ref := range exp.ExternalPads {
			allExternal[block.ID+":"+name] = ref
		}
		allEndpoints = append(allEndpoints, exp.Endpoints...)
	}
	return allElements, allLinks, allExternal, allEndpoints, nil
}
