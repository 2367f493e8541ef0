// Package flowerrors defines the Flow Runtime's typed error taxonomy.
// Every error kind named in the component contracts gets its own struct
// so callers can recover structured detail with errors.As instead of
// parsing messages, and so REST handlers can map kind to status code by
// type switch.
package flowerrors

import "fmt"

// NotFoundError reports a lookup against an unknown factory, flow,
// element, pad, or block.
type NotFoundError struct {
	Kind string // "flow", "element", "factory", "block", "pad"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Kind, e.ID)
}

// IntrospectionFailedError reports a panic-guard-caught failure while
// loading factory, property, or pad metadata from the media framework.
type IntrospectionFailedError struct {
	FactoryName string
	Detail      string
	Cause       error
}

func (e *IntrospectionFailedError) Error() string {
	return fmt.Sprintf("introspection failed for factory %q: %s", e.FactoryName, e.Detail)
}

func (e *IntrospectionFailedError) Unwrap() error { return e.Cause }

// UnknownBlockError reports a BlockNode referencing an unregistered
// block_id.
type UnknownBlockError struct {
	BlockID string
}

func (e *UnknownBlockError) Error() string {
	return fmt.Sprintf("unknown block id %q", e.BlockID)
}

// BlockConfigInvalidError reports an invalid block property combination
// (e.g. num_channels=0).
type BlockConfigInvalidError struct {
	BlockID string
	Detail  string
}

func (e *BlockConfigInvalidError) Error() string {
	return fmt.Sprintf("invalid configuration for block %q: %s", e.BlockID, e.Detail)
}

// LinkError reports a pad-linking failure during pipeline build, or a
// deferred link that never resolved before its deadline.
type LinkError struct {
	From   string
	To     string
	Detail string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link error %s -> %s: %s", e.From, e.To, e.Detail)
}

// StartupTimeoutError reports a flow that failed to reach Running within
// its bounded start timeout.
type StartupTimeoutError struct {
	FlowID string
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("flow %q did not reach running state before the startup timeout", e.FlowID)
}

// InvalidStateError reports a rejected state transition request, e.g.
// stopping a flow that is not running, or replacing a flow document
// while it is running.
type InvalidStateError struct {
	FlowID string
	From   string
	To     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("flow %q: invalid transition %s -> %s", e.FlowID, e.From, e.To)
}

// NotRunningError reports a property or pad operation against a flow
// whose pipeline is not currently live.
type NotRunningError struct {
	FlowID string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("flow %q is not running", e.FlowID)
}

// UnknownElementError reports a property or pad operation against an
// element id absent from the running pipeline's element index.
type UnknownElementError struct {
	FlowID    string
	ElementID string
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("flow %q: unknown element %q", e.FlowID, e.ElementID)
}

// UnknownPadError reports a pad operation against a pad name absent from
// the target element.
type UnknownPadError struct {
	ElementID string
	PadName   string
}

func (e *UnknownPadError) Error() string {
	return fmt.Sprintf("element %q: unknown pad %q", e.ElementID, e.PadName)
}

// UnknownPropertyError reports a read or write against a property name
// the target element does not expose.
type UnknownPropertyError struct {
	ElementID string
	Name      string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("element %q: unknown property %q", e.ElementID, e.Name)
}

// TypeMismatchError reports a property write whose TypedValue kind does
// not match the target property's declared type.
type TypeMismatchError struct {
	ElementID string
	Name      string
	Expected  string
	Got       string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("element %q property %q: expected %s, got %s", e.ElementID, e.Name, e.Expected, e.Got)
}

// ValueOutOfRangeError reports a property write whose value falls
// outside the property's declared bounds.
type ValueOutOfRangeError struct {
	ElementID string
	Name      string
	Detail    string
}

func (e *ValueOutOfRangeError) Error() string {
	return fmt.Sprintf("element %q property %q out of range: %s", e.ElementID, e.Name, e.Detail)
}

// RuntimeError reports a bus-level error surfaced by the media engine
// during playback (decode failure, network loss, device error).
type RuntimeError struct {
	FlowID        string
	SourceElement string
	Domain        string
	Code          int
	Detail        string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("flow %q: runtime error from %q (%s/%d): %s", e.FlowID, e.SourceElement, e.Domain, e.Code, e.Detail)
}

// PropertyError is a generic wrapper for property-service failures that
// do not fit a more specific kind above.
type PropertyError struct {
	Detail string
	Cause  error
}

func (e *PropertyError) Error() string { return "property error: " + e.Detail }
func (e *PropertyError) Unwrap() error { return e.Cause }
