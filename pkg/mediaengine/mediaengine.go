// Package mediaengine is the seam between the Flow Runtime core and the
// native streaming framework. Implementing a real binding to such a
// framework is explicitly out of scope; this package defines the
// interfaces the rest of the core programs against, plus a simulated
// implementation (sim.go) faithful enough to exercise every behavior the
// core must handle: asynchronous state changes, pads that appear only
// after negotiation, bus messages, and crash-prone factories.
package mediaengine

import "time"

// MediaClass tags a pad template by the kind of media it carries.
type MediaClass string

const (
	MediaAudio    MediaClass = "audio"
	MediaVideo    MediaClass = "video"
	MediaSubtitle MediaClass = "subtitle"
	MediaGeneric  MediaClass = "generic"
	MediaAny      MediaClass = "any"
)

// PadDirection is the direction of a pad relative to its element.
type PadDirection string

const (
	PadSrc  PadDirection = "src"
	PadSink PadDirection = "sink"
)

// PadPresence describes when a pad exists relative to element lifetime.
type PadPresence string

const (
	PadAlways   PadPresence = "always"   // static, exists on instantiation
	PadRequest  PadPresence = "request"  // allocated on demand from a template
	PadSometime PadPresence = "sometimes" // appears dynamically during negotiation
)

// PadTemplateInfo describes one pad template a factory's elements expose.
type PadTemplateInfo struct {
	NameTemplate string // e.g. "src", "sink_%u"
	Direction    PadDirection
	Presence     PadPresence
	MediaClass   MediaClass
	CapsString   string
}

// PropertyInfo describes one property a factory's elements expose.
type PropertyInfo struct {
	Name         string
	Kind         string // mirrors types.ValueKind as a string to avoid an import cycle
	Default      interface{}
	Min, Max     interface{}
	EnumName     string
	EnumValues   []string
	Writable     bool
	Readable     bool
}

// FactoryInfo is the static metadata the Element Registry caches per
// factory, readable without instantiating an element.
type FactoryInfo struct {
	Name         string
	LongName     string
	Description  string
	Klass        string // e.g. "Source/Video", "Codec/Encoder/Audio"
	Category     string // coarse category derived from Klass
	Rank         int
	PadTemplates []PadTemplateInfo
}

// State is a native element/pipeline state.
type State string

const (
	StateNull    State = "null"
	StateReady   State = "ready"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
)

// BusMessageKind enumerates the bus message kinds the Lifecycle Manager
// watches for.
type BusMessageKind string

const (
	BusStateChanged   BusMessageKind = "state-changed"
	BusError          BusMessageKind = "error"
	BusWarning        BusMessageKind = "warning"
	BusInfo           BusMessageKind = "info"
	BusEos            BusMessageKind = "eos"
	BusElementAdded   BusMessageKind = "element-added"
	BusElementRemoved BusMessageKind = "element-removed"
	BusQos            BusMessageKind = "qos"
	BusStreamStatus   BusMessageKind = "stream-status"
	BusLatency        BusMessageKind = "latency"
)

// BusMessage is one message delivered from the pipeline to its owner.
// Messages originate on framework-owned goroutines in the simulated
// engine, mirroring how a real framework delivers them from internal
// streaming threads; callers must not block the sender.
type BusMessage struct {
	Kind          BusMessageKind
	Timestamp     time.Time
	SourceElement string // element id, empty if pipeline-level
	Old, New      State  // for BusStateChanged
	Domain        string // for BusError/BusWarning
	Code          int
	Detail        string
	Metrics       map[string]ElementMetricSample // for BusQos/BusStreamStatus
}

// ElementMetricSample is the raw per-element sample a bus message may
// carry, folded into types.ElementMetrics by the Lifecycle Manager when
// a BusQos or BusStreamStatus message arrives.
type ElementMetricSample struct {
	BytesIn, BytesOut uint64
	QueueLevel        uint64
	BitrateBps        uint64
	JitterMs          float64
	ClockOffsetNs     int64
	NegotiatedCaps    string
}

// Pad is a directional connection point on an Element.
type Pad interface {
	Name() string
	Direction() PadDirection
	Presence() PadPresence
	MediaClass() MediaClass
	Caps() string // lazily stringified; empty until negotiated
	Peer() (Pad, bool)
	Link(peer Pad) error
	Unlink() error
	GetProperty(name string) (interface{}, error)
	SetProperty(name string, value interface{}) error
}

// Element is one instantiated node backed by a factory.
type Element interface {
	ID() string
	FactoryName() string
	StaticPad(name string) (Pad, bool)
	RequestPad(templateNamePattern string) (Pad, error)
	// OnPadAdded registers a callback invoked (on the engine's delivery
	// goroutine, never inline) when a "sometimes" pad appears. Used to
	// implement deferred links.
	OnPadAdded(func(Pad))
	GetProperty(name string) (interface{}, error)
	SetProperty(name string, value interface{}) error
	SetState(State) error
	State() State
}

// Pipeline is the top-level container Element, exclusively owned by one
// Lifecycle Manager.
type Pipeline interface {
	Add(el Element) error
	Remove(el Element) error
	Elements() []Element
	// LinkElements delegates pad allocation to the engine, for factories
	// flagged element-level-link-only (muxers with internal pad
	// ordering requirements).
	LinkElements(src, sink Element) error
	SetState(State) error
	State() State
	Bus() <-chan BusMessage
	Close() error
}

// Engine is the top-level entry point into the media framework: factory
// enumeration plus pipeline/element construction.
type Engine interface {
	ListFactories() []FactoryInfo
	LookupFactory(name string) (FactoryInfo, bool)
	// LoadElementProperties lazily introspects a factory's properties,
	// which may require instantiating a temporary element. Factories on
	// the skip-list are never instantiated by this call.
	LoadElementProperties(factoryName string) ([]PropertyInfo, error)
	LoadPadProperties(factoryName, padTemplate string) ([]PropertyInfo, error)
	NewPipeline(id string) Pipeline
	NewElement(factoryName, elementID string) (Element, error)
	// IsSkipListed reports whether factoryName is on the discovery-time
	// instantiation skip-list.
	IsSkipListed(factoryName string) bool
}
