/*
Package types defines the Flow Runtime's data model: Flow documents and
their nodes and links, the typed-value encoding used for element and pad
properties, runtime-observable pipeline state, and the event envelope
published over the Event Broadcaster.

# Architecture

The types package is the foundation every other package builds on. It
defines:

  - Flow documents (elements, blocks, links, auto-restart, properties)
  - The typed-value discriminated union used to encode property values
    in a language-neutral, JSON-friendly form
  - Pipeline state and its transitions
  - The event envelope and payload shapes published to subscribers

All types are:
  - JSON-serializable (Flow documents round-trip through the Flow Store
    Gateway and the REST surface unchanged)
  - Read-safe for concurrent access; mutation is the owning Lifecycle
    Manager's responsibility, not this package's

# Core Types

Flow Document:
  - Flow: a user-authored document — ID, Name, Elements, Blocks, Links,
    AutoRestart, Properties, plus an Extra bag for forward-compatible
    fields the runtime doesn't understand yet
  - ElementNode: a node backed directly by a media-framework element
    factory, identified by FactoryName
  - BlockNode: a node backed by a registered block definition, expanded
    into one or more ElementNodes at build time
  - Link: connects one node's pad to another's; endpoints are encoded
    "<node_id>:<pad_name>" and split with Endpoint()

Typed Values:
  - TypedValue: a tagged union over bool, int64, uint64, float64,
    string, enum, fraction, caps, and array — the wire encoding for
    every element and pad property value
  - ValueKind: the Kind discriminator (KindBool, KindInt64, ...)
  - Constructors: Bool, Int64, UInt64, Float64, String, Caps, Enum, ...

Pipeline State:
  - PipelineState: FlowStopped, FlowStarting, FlowRunning, FlowStopping
  - Valid transitions are enforced by the Lifecycle Manager, not this
    package — types here are data, not a state machine

Events:
  - Event: the envelope published over the Event Broadcaster —
    FlowID, Sequence, Kind, Payload, Timestamp
  - EventKind: state_changed, error, warning, info, eos,
    property_changed, element_added, element_removed, metric_sample,
    lagged
  - Payload shapes: StateChangedPayload, ErrorPayload,
    PropertyChangedPayload, MetricSamplePayload, ElementMetrics

# Usage

Constructing a Flow document:

	flow := types.Flow{
		ID:   "flow-123",
		Name: "camera-to-whip",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "v4l2src"},
			{ID: "enc", FactoryName: "x264enc"},
		},
		Links: []types.Link{
			{From: "src:src", To: "enc:sink"},
		},
		AutoRestart: true,
	}

Encoding a property value:

	flow.Elements[0].Properties = map[string]types.TypedValue{
		"device": types.String("/dev/video0"),
	}

Splitting a link endpoint:

	nodeID, padName, err := types.Endpoint(link.From)

# Design Patterns

Discriminated Union via Unexported Fields:

	TypedValue carries one value per possible Kind in unexported fields,
	with typed constructors (Bool, Int64, ...) and typed accessors
	enforcing that callers can't construct an inconsistent value.

Forward-Compatible Documents:

	Flow.Extra preserves JSON fields this build doesn't recognize,
	so round-tripping through the Flow Store Gateway doesn't silently
	drop data a newer client wrote.

Typed String Enums:

	PipelineState, EventKind, and ValueKind are all typed string
	constants rather than ints, keeping persisted and wire
	representations self-describing.

# Integration Points

This package is imported by every other package in this module:

  - pkg/registry, pkg/blocks, pkg/pipeline: Build TypedValue-carrying
    ElementNode/BlockNode graphs from Flow documents
  - pkg/flow: Owns PipelineState transitions for a live flow
  - pkg/events: Publishes Event values built from this package's types
  - pkg/flowstore: Persists Flow and runtime-state checkpoints as JSON
  - pkg/api, pkg/mcptools: Marshal/unmarshal these types at the edges

# See Also

  - pkg/flow for the lifecycle that owns PipelineState transitions
  - pkg/events for how Event values are published and filtered
*/
package types
