// Package types defines the Flow Runtime's data model: Flow documents,
// their nodes and links, the typed-value encoding for element and pad
// properties, and the runtime-observable pipeline state.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flow is a user-authored Flow document.
type Flow struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Elements    []ElementNode              `json:"elements"`
	Blocks      []BlockNode                `json:"blocks"`
	Links       []Link                     `json:"links"`
	AutoRestart bool                       `json:"auto_restart"`
	Properties  map[string]TypedValue      `json:"properties,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// ElementNode is one node backed by a media-framework element factory.
type ElementNode struct {
	ID          string                `json:"id"`
	FactoryName string                `json:"factory_name"`
	Properties  map[string]TypedValue `json:"properties,omitempty"`
	UIPosition  map[string]float64    `json:"ui_position,omitempty"`
}

// BlockNode is one node backed by a registered block definition.
type BlockNode struct {
	ID         string                `json:"id"`
	BlockID    string                `json:"block_id"`
	Properties map[string]TypedValue `json:"properties,omitempty"`
	UIPosition map[string]float64    `json:"ui_position,omitempty"`
}

// Link connects one pad of one node to one pad of another. Endpoints are
// encoded "<node_id>:<pad_name>"; PadName may be a concrete name or a
// request-template name such as "sink_%u".
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Endpoint splits a Link endpoint string into its node and pad parts.
func Endpoint(s string) (nodeID, padName string, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed link endpoint %q: expected \"node_id:pad_name\"", s)
}

// ValueKind tags the discriminated variant carried by a TypedValue.
type ValueKind string

const (
	KindBool     ValueKind = "bool"
	KindInt64    ValueKind = "int64"
	KindUInt64   ValueKind = "uint64"
	KindFloat64  ValueKind = "float64"
	KindString   ValueKind = "string"
	KindEnum     ValueKind = "enum"
	KindFraction ValueKind = "fraction"
	KindCaps     ValueKind = "caps"
	KindArray    ValueKind = "array"
)

// TypedValue is the language-neutral, tagged-union representation of an
// element or pad property value.
type TypedValue struct {
	Kind ValueKind

	boolVal  bool
	i64Val   int64
	u64Val   uint64
	f64Val   float64
	strVal   string // String, Caps, and Enum.Value share this field
	enumName string // Enum's owning enum type name
	fracNum  int32
	fracDen  int32

	arrayElem ValueKind
	arrayVals []TypedValue
}

func Bool(v bool) TypedValue       { return TypedValue{Kind: KindBool, boolVal: v} }
func Int64(v int64) TypedValue     { return TypedValue{Kind: KindInt64, i64Val: v} }
func UInt64(v uint64) TypedValue   { return TypedValue{Kind: KindUInt64, u64Val: v} }
func Float64(v float64) TypedValue { return TypedValue{Kind: KindFloat64, f64Val: v} }
func String(v string) TypedValue   { return TypedValue{Kind: KindString, strVal: v} }
func Caps(v string) TypedValue     { return TypedValue{Kind: KindCaps, strVal: v} }

// Enum constructs an enum-typed value; name is the owning enum type's
// name (resolved against the element's own enum class, never a global
// registry) and value is the symbolic member name.
func Enum(name, value string) TypedValue {
	return TypedValue{Kind: KindEnum, enumName: name, strVal: value}
}

func Fraction(num, den int32) TypedValue {
	return TypedValue{Kind: KindFraction, fracNum: num, fracDen: den}
}

func Array(elemKind ValueKind, values []TypedValue) TypedValue {
	return TypedValue{Kind: KindArray, arrayElem: elemKind, arrayVals: values}
}

func (v TypedValue) AsBool() (bool, bool)       { return v.boolVal, v.Kind == KindBool }
func (v TypedValue) AsInt64() (int64, bool)     { return v.i64Val, v.Kind == KindInt64 }
func (v TypedValue) AsUInt64() (uint64, bool)   { return v.u64Val, v.Kind == KindUInt64 }
func (v TypedValue) AsFloat64() (float64, bool) { return v.f64Val, v.Kind == KindFloat64 }
func (v TypedValue) AsString() (string, bool)   { return v.strVal, v.Kind == KindString }
func (v TypedValue) AsCaps() (string, bool)     { return v.strVal, v.Kind == KindCaps }

func (v TypedValue) AsEnum() (enumName, value string, ok bool) {
	return v.enumName, v.strVal, v.Kind == KindEnum
}

func (v TypedValue) AsFraction() (num, den int32, ok bool) {
	return v.fracNum, v.fracDen, v.Kind == KindFraction
}

func (v TypedValue) AsArray() (elemKind ValueKind, values []TypedValue, ok bool) {
	return v.arrayElem, v.arrayVals, v.Kind == KindArray
}

type jsonTypedValue struct {
	Type     ValueKind       `json:"type"`
	Value    json.RawMessage `json:"value,omitempty"`
	Enum     string          `json:"enum,omitempty"`
	Num      int32           `json:"num,omitempty"`
	Den      int32           `json:"den,omitempty"`
	ElemType ValueKind       `json:"elem_type,omitempty"`
}

// MarshalJSON encodes a TypedValue as the tagged-JSON shape documented for
// the Flow document format: {"type":"enum","value":"bar"} and similar.
func (v TypedValue) MarshalJSON() ([]byte, error) {
	out := jsonTypedValue{Type: v.Kind}
	switch v.Kind {
	case KindBool:
		b, _ := json.Marshal(v.boolVal)
		out.Value = b
	case KindInt64:
		b, _ := json.Marshal(v.i64Val)
		out.Value = b
	case KindUInt64:
		b, _ := json.Marshal(v.u64Val)
		out.Value = b
	case KindFloat64:
		b, _ := json.Marshal(v.f64Val)
		out.Value = b
	case KindString, KindCaps:
		b, _ := json.Marshal(v.strVal)
		out.Value = b
	case KindEnum:
		out.Enum = v.enumName
		b, _ := json.Marshal(v.strVal)
		out.Value = b
	case KindFraction:
		out.Num, out.Den = v.fracNum, v.fracDen
	case KindArray:
		out.ElemType = v.arrayElem
		b, err := json.Marshal(v.arrayVals)
		if err != nil {
			return nil, err
		}
		out.Value = b
	default:
		return nil, fmt.Errorf("typed value: unknown kind %q", v.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged-JSON shape back into a TypedValue.
func (v *TypedValue) UnmarshalJSON(data []byte) error {
	var in jsonTypedValue
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v.Kind = in.Type
	switch in.Type {
	case KindBool:
		return json.Unmarshal(in.Value, &v.boolVal)
	case KindInt64:
		return json.Unmarshal(in.Value, &v.i64Val)
	case KindUInt64:
		return json.Unmarshal(in.Value, &v.u64Val)
	case KindFloat64:
		return json.Unmarshal(in.Value, &v.f64Val)
	case KindString, KindCaps:
		return json.Unmarshal(in.Value, &v.strVal)
	case KindEnum:
		v.enumName = in.Enum
		return json.Unmarshal(in.Value, &v.strVal)
	case KindFraction:
		v.fracNum, v.fracDen = in.Num, in.Den
		return nil
	case KindArray:
		v.arrayElem = in.ElemType
		return json.Unmarshal(in.Value, &v.arrayVals)
	default:
		return fmt.Errorf("typed value: unknown kind %q", in.Type)
	}
}

// PipelineState is the runtime-observable state of a flow's pipeline,
// mapped 1:1 to the media framework's element states plus a synthetic
// Error state for failed transitions.
type PipelineState string

const (
	StateNull    PipelineState = "null"
	StateReady   PipelineState = "ready"
	StatePaused  PipelineState = "paused"
	StatePlaying PipelineState = "playing"
	StateError   PipelineState = "error"

	// Flow-level lifecycle states (the Lifecycle Manager's own state
	// machine, distinct from the native element state above).
	FlowStopped  PipelineState = "stopped"
	FlowStarting PipelineState = "starting"
	FlowRunning  PipelineState = "running"
	FlowStopping PipelineState = "stopping"
)

// EventKind enumerates the kinds of Event the Event Broadcaster emits.
type EventKind string

const (
	EventStateChanged    EventKind = "state_changed"
	EventError           EventKind = "error"
	EventWarning         EventKind = "warning"
	EventInfo            EventKind = "info"
	EventEos             EventKind = "eos"
	EventPropertyChanged EventKind = "property_changed"
	EventElementAdded    EventKind = "element_added"
	EventElementRemoved  EventKind = "element_removed"
	EventMetricSample    EventKind = "metric_sample"
	EventLagged          EventKind = "lagged"
)

// Event is one item on a flow's event stream.
type Event struct {
	FlowID    string      `json:"flow_id"`
	Sequence  uint64      `json:"sequence"`
	Kind      EventKind   `json:"kind"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"ts"`
}

// StateChangedPayload is the payload of an EventStateChanged event.
type StateChangedPayload struct {
	From PipelineState `json:"from"`
	To   PipelineState `json:"to"`
}

// ErrorPayload is the payload of an EventError or EventWarning event.
type ErrorPayload struct {
	SourceElement string `json:"source_element,omitempty"`
	Domain        string `json:"domain,omitempty"`
	Code          int    `json:"code,omitempty"`
	Message       string `json:"message"`
	DebugHint     string `json:"debug_hint,omitempty"`
}

// PropertyChangedPayload is the payload of an EventPropertyChanged event.
type PropertyChangedPayload struct {
	ElementID string     `json:"element_id"`
	PadName   string     `json:"pad_name,omitempty"`
	Name      string     `json:"name"`
	Value     TypedValue `json:"value"`
}

// MetricSamplePayload is the payload of an EventMetricSample event.
type MetricSamplePayload struct {
	Elements map[string]ElementMetrics `json:"elements"`
}

// ElementMetrics holds the per-element counters pulled from framework
// element properties and bus side data at the sampling cadence.
type ElementMetrics struct {
	BytesIn        uint64  `json:"bytes_in,omitempty"`
	BytesOut       uint64  `json:"bytes_out,omitempty"`
	QueueLevel     uint64  `json:"queue_level,omitempty"`
	BitrateBps     uint64  `json:"bitrate_bps,omitempty"`
	JitterMs       float64 `json:"jitter_ms,omitempty"`
	ClockOffsetNs  int64   `json:"clock_offset_ns,omitempty"`
	NegotiatedCaps string  `json:"negotiated_caps,omitempty"`
}
