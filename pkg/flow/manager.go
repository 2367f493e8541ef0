// Package flow implements the Lifecycle Manager: one instance per flow,
// each the sole writer of its pipeline's state. Every external request
// (start, stop, property write, flow document replace) is serialized
// through a single command channel so no two goroutines ever touch the
// same mediaengine.Pipeline concurrently. Grounded on the teacher's
// worker pull->create->start->monitor->stop sequencing, generalized
// from one container's lifecycle to one flow's pipeline lifecycle.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/log"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/metrics"
	"github.com/flowforge/runtime/pkg/pipeline"
	"github.com/flowforge/runtime/pkg/types"
)

const (
	defaultStartTimeout = 10 * time.Second
	defaultStopTimeout  = 10 * time.Second
	deferredLinkWindow  = 5 * time.Second
)

// Manager is the Lifecycle Manager for one flow.
type Manager struct {
	flowID  string
	builder *pipeline.Builder
	broker  *events.Broker
	store   flowstore.Store

	cmdCh chan command
	done  chan struct{}

	// Owned exclusively by the run loop goroutine; never touched from
	// outside it.
	state  types.PipelineState
	flow   types.Flow
	result *pipeline.Result
	cancel context.CancelFunc
}

type command struct {
	kind   string // "get_state", "replace", "start", "stop", "read_property", "write_property", "get_element", "read_pad_property", "write_pad_property", "bus_error", "inject_bus_error"
	flow   *types.Flow
	result chan error
	reply  chan interface{}
	args   map[string]interface{}
}

// New creates a Manager for flowID and starts its run loop. The Manager
// begins in Stopped state with no flow document until Replace is called,
// or with the given initial flow if non-zero.
func New(flowID string, initial types.Flow, builder *pipeline.Builder, broker *events.Broker, store flowstore.Store) *Manager {
	m := &Manager{
		flowID:  flowID,
		builder: builder,
		broker:  broker,
		store:   store,
		cmdCh:   make(chan command, 16),
		done:    make(chan struct{}),
		state:   types.FlowStopped,
		flow:    initial,
	}
	metrics.FlowsTotal.WithLabelValues(string(types.FlowStopped)).Inc()
	go m.run()
	return m
}

// FlowID returns the flow this Manager owns.
func (m *Manager) FlowID() string { return m.flowID }

// State returns the current lifecycle state. Safe for concurrent use.
func (m *Manager) State() types.PipelineState {
	reply := make(chan interface{}, 1)
	m.cmdCh <- command{kind: "get_state", reply: reply}
	return (<-reply).(types.PipelineState)
}

// Replace installs a new flow document. Rejected while the flow is
// Running or transitioning, per the invariant that a live pipeline's
// document cannot change out from under it.
func (m *Manager) Replace(f types.Flow) error {
	result := make(chan error, 1)
	m.cmdCh <- command{kind: "replace", flow: &f, result: result}
	return <-result
}

// Start requests a transition to Running, building and playing the
// pipeline. Blocks until Running is reached, the start timeout elapses,
// or the build fails outright.
func (m *Manager) Start(ctx context.Context) error {
	result := make(chan error, 1)
	m.cmdCh <- command{kind: "start", result: result}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop requests a transition to Stopped. Blocks until Stopped is
// reached or the stop timeout forces release.
func (m *Manager) Stop(ctx context.Context) error {
	result := make(chan error, 1)
	m.cmdCh <- command{kind: "stop", result: result}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadElementProperty reads a live property from the running pipeline,
// serialized through the run loop.
func (m *Manager) ReadElementProperty(elementID, name string) (types.TypedValue, error) {
	reply := make(chan interface{}, 1)
	m.cmdCh <- command{kind: "read_property", reply: reply, args: map[string]interface{}{"element_id": elementID, "name": name}}
	res := (<-reply).(propResult)
	return res.value, res.err
}

// WriteElementProperty writes a live property on the running pipeline
// and publishes a PropertyChanged event on success.
func (m *Manager) WriteElementProperty(elementID, name string, value types.TypedValue) error {
	reply := make(chan interface{}, 1)
	m.cmdCh <- command{kind: "write_property", reply: reply, args: map[string]interface{}{"element_id": elementID, "name": name, "value": value}}
	res := (<-reply).(propResult)
	return res.err
}

// Element exposes the live element handle read-only, for the Property &
// Pad Service's factory-name and introspection lookups. Callers must not
// mutate the returned handle directly; use ReadPadProperty/
// WritePadProperty below, which serialize through this Manager's run
// loop the same way element property writes do.
func (m *Manager) Element(elementID string) (mediaengine.Element, bool, error) {
	reply := make(chan interface{}, 1)
	m.cmdCh <- command{kind: "get_element", reply: reply, args: map[string]interface{}{"element_id": elementID}}
	res := (<-reply).(elementResult)
	return res.element, res.running, res.err
}

// ReadPadProperty reads one property from a live pad, serialized through
// the run loop.
func (m *Manager) ReadPadProperty(elementID, padName, name string) (types.TypedValue, error) {
	reply := make(chan interface{}, 1)
	m.cmdCh <- command{kind: "read_pad_property", reply: reply, args: map[string]interface{}{"element_id": elementID, "pad_name": padName, "name": name}}
	res := (<-reply).(propResult)
	return res.value, res.err
}

// WritePadProperty writes one property on a live pad, serialized through
// the run loop, and publishes a PropertyChanged event carrying the pad
// name on success.
func (m *Manager) WritePadProperty(elementID, padName, name string, value types.TypedValue) error {
	reply := make(chan interface{}, 1)
	m.cmdCh <- command{kind: "write_pad_property", reply: reply, args: map[string]interface{}{"element_id": elementID, "pad_name": padName, "name": name, "value": value}}
	res := (<-reply).(propResult)
	return res.err
}

// Shutdown stops the run loop without tearing down a running pipeline;
// used only at process exit after Stop has already been called.
func (m *Manager) Shutdown() {
	close(m.done)
}

// InjectBusErrorForTest hands a synthetic fatal bus error to the Manager's
// bus-message handler, serialized through the run loop like any other
// command; the pipeline's bus channel is bypassed. It exists so tests can
// exercise the BusError handling path without a crash-prone factory; if
// the flow is not currently running it changes nothing and returns an error.
func (m *Manager) InjectBusErrorForTest(sourceElement, domain string, code int, detail string) error {
	result := make(chan error, 1)
	m.cmdCh <- command{kind: "inject_bus_error", result: result, args: map[string]interface{}{
		"source_element": sourceElement, "domain": domain, "code": code, "detail": detail,
	}}
	return <-result
}

type propResult struct {
	value types.TypedValue
	err   error
}

type elementResult struct {
	element mediaengine.Element
	running bool
	err     error
}

// run is the single-writer command loop: every field on Manager below
// this point is touched only from here.
func (m *Manager) run() {
	for {
		select {
		case cmd := <-m.cmdCh:
			m.handle(cmd)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handle(cmd command) {
	switch cmd.kind {
	case "get_state":
		cmd.reply <- m.state
	case "replace":
		cmd.result <- m.handleReplace(*cmd.flow)
	case "start":
		cmd.result <- m.handleStart()
	case "stop":
		cmd.result <- m.handleStop()
	case "read_property":
		cmd.reply <- m.handleReadProperty(cmd.args["element_id"].(string), cmd.args["name"].(string))
	case "write_property":
		cmd.reply <- m.handleWriteProperty(cmd.args["element_id"].(string), cmd.args["name"].(string), cmd.args["value"].(types.TypedValue))
	case "get_element":
		cmd.reply <- m.handleGetElement(cmd.args["element_id"].(string))
	case "read_pad_property":
		cmd.reply <- m.handleReadPadProperty(cmd.args["element_id"].(string), cmd.args["pad_name"].(string), cmd.args["name"].(string))
	case "write_pad_property":
		cmd.reply <- m.handleWritePadProperty(cmd.args["element_id"].(string), cmd.args["pad_name"].(string), cmd.args["name"].(string), cmd.args["value"].(types.TypedValue))
	case "bus_error":
		cmd.result <- m.handleBusError()
	case "inject_bus_error":
		cmd.result <- m.handleInjectBusErrorForTest(cmd.args["source_element"].(string), cmd.args["domain"].(string), cmd.args["code"].(int), cmd.args["detail"].(string))
	}
}

func (m *Manager) lookupPad(elementID, padName string) (mediaengine.Pad, error) {
	res := m.handleGetElement(elementID)
	if res.err != nil {
		return nil, res.err
	}
	pad, ok := res.element.StaticPad(padName)
	if !ok {
		return nil, &flowerrors.UnknownPadError{ElementID: elementID, PadName: padName}
	}
	return pad, nil
}

func (m *Manager) handleReadPadProperty(elementID, padName, name string) propResult {
	pad, err := m.lookupPad(elementID, padName)
	if err != nil {
		return propResult{err: err}
	}
	raw, err := pad.GetProperty(name)
	if err != nil {
		return propResult{err: &flowerrors.UnknownPropertyError{ElementID: elementID, Name: name}}
	}
	return propResult{value: goValueToTyped(raw)}
}

func (m *Manager) handleWritePadProperty(elementID, padName, name string, value types.TypedValue) propResult {
	pad, err := m.lookupPad(elementID, padName)
	if err != nil {
		return propResult{err: err}
	}
	native, err := nativeValueFor(value)
	if err != nil {
		metrics.PropertyErrorsTotal.WithLabelValues("type_mismatch").Inc()
		return propResult{err: err}
	}
	if err := pad.SetProperty(name, native); err != nil {
		metrics.PropertyErrorsTotal.WithLabelValues("write_failed").Inc()
		return propResult{err: &flowerrors.UnknownPropertyError{ElementID: elementID, Name: name}}
	}

	seq := m.broker.NextSequence(m.flowID)
	m.broker.Publish(types.Event{
		FlowID:   m.flowID,
		Sequence: seq,
		Kind:     types.EventPropertyChanged,
		Payload: types.PropertyChangedPayload{
			ElementID: elementID,
			PadName:   padName,
			Name:      name,
			Value:     value,
		},
	})
	return propResult{}
}

func (m *Manager) handleReplace(f types.Flow) error {
	if m.state != types.FlowStopped {
		return &flowerrors.InvalidStateError{FlowID: m.flowID, From: string(m.state), To: "document_replaced"}
	}
	m.flow = f
	return nil
}

func (m *Manager) handleGetElement(elementID string) elementResult {
	if m.state != types.FlowRunning || m.result == nil {
		return elementResult{err: &flowerrors.NotRunningError{FlowID: m.flowID}}
	}
	el, ok := m.result.ElementIndex[elementID]
	if !ok {
		return elementResult{err: &flowerrors.UnknownElementError{FlowID: m.flowID, ElementID: elementID}}
	}
	return elementResult{element: el, running: true}
}

func (m *Manager) handleReadProperty(elementID, name string) propResult {
	res := m.handleGetElement(elementID)
	if res.err != nil {
		return propResult{err: res.err}
	}
	raw, err := res.element.GetProperty(name)
	if err != nil {
		return propResult{err: &flowerrors.UnknownPropertyError{ElementID: elementID, Name: name}}
	}
	return propResult{value: goValueToTyped(raw)}
}

func (m *Manager) handleWriteProperty(elementID, name string, value types.TypedValue) propResult {
	res := m.handleGetElement(elementID)
	if res.err != nil {
		return propResult{err: res.err}
	}
	timer := metrics.NewTimer()
	native, err := nativeValueFor(value)
	if err != nil {
		metrics.PropertyErrorsTotal.WithLabelValues("type_mismatch").Inc()
		return propResult{err: err}
	}
	if err := res.element.SetProperty(name, native); err != nil {
		metrics.PropertyErrorsTotal.WithLabelValues("write_failed").Inc()
		return propResult{err: &flowerrors.UnknownPropertyError{ElementID: elementID, Name: name}}
	}
	timer.ObserveDuration(metrics.PropertyWriteDuration)

	seq := m.broker.NextSequence(m.flowID)
	m.broker.Publish(types.Event{
		FlowID:   m.flowID,
		Sequence: seq,
		Kind:     types.EventPropertyChanged,
		Payload: types.PropertyChangedPayload{
			ElementID: elementID,
			Name:      name,
			Value:     value,
		},
	})
	return propResult{}
}

// handleStart builds the pipeline, sets it playing, and blocks (inside
// the run loop, by design: only one start/stop is ever in flight for a
// given flow) until Running is observed on the bus or the start timeout
// elapses. Mirrors the teacher's pull-image-then-create-then-start
// sequence, generalized to build-then-play.
func (m *Manager) handleStart() error {
	if m.state != types.FlowStopped && m.state != types.StateError {
		return &flowerrors.InvalidStateError{FlowID: m.flowID, From: string(m.state), To: string(types.FlowStarting)}
	}
	m.transition(types.FlowStarting)

	timer := metrics.NewTimer()
	res, err := m.builder.Build(m.flow)
	if err != nil {
		m.transition(types.StateError)
		m.checkpoint(types.StateError)
		m.publishError("", "build", 0, err.Error())
		return err
	}

	if err := res.Pipeline.SetState(mediaengine.StatePlaying); err != nil {
		_ = res.Pipeline.Close()
		m.transition(types.StateError)
		m.checkpoint(types.StateError)
		m.publishError("", "start", 0, err.Error())
		return err
	}

	if err := pipeline.WaitForDeferredLinks(res.DeferredLinks, deferredLinkWindow); err != nil {
		_ = res.Pipeline.Close()
		m.transition(types.StateError)
		m.checkpoint(types.StateError)
		m.publishError("", "build", 0, err.Error())
		return err
	}

	// State changes on the bus are asynchronous: the engine confirms
	// Playing by emitting a BusStateChanged message on its own delivery
	// goroutine, not by blocking inside SetState. Watch for it here,
	// bounded by the start timeout, before declaring the flow Running.
	reachedPlaying := waitForPlaying(res.Pipeline.Bus(), defaultStartTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	m.result = res
	m.cancel = cancel
	go m.busWatch(ctx, res.Pipeline.Bus())

	if !reachedPlaying {
		cancel()
		_ = res.Pipeline.Close()
		m.result = nil
		m.cancel = nil
		m.transition(types.StateError)
		m.checkpoint(types.StateError)
		metrics.FlowStartTimeoutsTotal.Inc()
		timeoutErr := &flowerrors.StartupTimeoutError{FlowID: m.flowID}
		m.publishError("", "start", 0, timeoutErr.Error())
		return timeoutErr
	}

	m.transition(types.FlowRunning)
	timer.ObserveDuration(metrics.FlowStartDuration)
	m.checkpoint(types.FlowRunning)
	return nil
}

// waitForPlaying drains bus messages until a BusStateChanged to Playing
// appears or deadline elapses. Every other message read here, errors
// included, is discarded; busWatch sees only messages that arrive after
// it starts.
func waitForPlaying(bus <-chan mediaengine.BusMessage, deadline time.Duration) bool {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-bus:
			if !ok {
				return false
			}
			if msg.Kind == mediaengine.BusStateChanged && msg.New == mediaengine.StatePlaying {
				return true
			}
		case <-timer.C:
			return false
		}
	}
}

// handleStop tears the pipeline down: cancel the bus watcher, set Null
// (bounded by the stop timeout), close. Mirrors the teacher's
// stopContainer: send the stop signal, then unconditionally release
// resources even if the engine-level stop errors.
func (m *Manager) handleStop() error {
	if m.state == types.FlowStopped {
		return nil
	}
	m.transition(types.FlowStopping)
	timer := metrics.NewTimer()

	if m.cancel != nil {
		m.cancel()
	}
	if m.result != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), defaultStopTimeout)
		done := make(chan error, 1)
		go func() { done <- m.result.Pipeline.SetState(mediaengine.StateNull) }()
		select {
		case err := <-done:
			if err != nil {
				log.Logger.Warn().Str("flow_id", m.flowID).Err(err).Msg("pipeline did not reach null state cleanly, forcing release")
			}
		case <-stopCtx.Done():
			log.Logger.Warn().Str("flow_id", m.flowID).Msg("stop timeout elapsed, forcing release")
		}
		stopCancel()
		_ = m.result.Pipeline.Close()
		m.result = nil
	}

	m.transition(types.FlowStopped)
	timer.ObserveDuration(metrics.FlowStopDuration)
	m.checkpoint(types.FlowStopped)
	return nil
}

// handleBusError reacts to a fatal bus error observed while running:
// Error, then Stopping, then Stopped, per the runtime-error handling
// contract. A stale bus_error arriving after the flow already left
// Running (e.g. a concurrent Stop won the race) is a no-op once
// handleStop finds nothing left to tear down.
func (m *Manager) handleBusError() error {
	if m.state == types.FlowStopped {
		return nil
	}
	m.transition(types.StateError)
	m.checkpoint(types.StateError)
	err := m.handleStop()
	// handleStop checkpoints Stopped on its way out; record Error again so
	// the persisted runtime state shows the flow ended on a fatal error.
	m.checkpoint(types.StateError)
	return err
}

// handleInjectBusErrorForTest delivers the synthetic error directly to
// onBusMessage rather than round-tripping through the real bus channel,
// since busWatch runs on its own goroutine and a test shouldn't race it.
func (m *Manager) handleInjectBusErrorForTest(sourceElement, domain string, code int, detail string) error {
	if m.state != types.FlowRunning {
		return fmt.Errorf("flow %s is not running", m.flowID)
	}
	m.onBusMessage(mediaengine.BusMessage{
		Kind:          mediaengine.BusError,
		SourceElement: sourceElement,
		Domain:        domain,
		Code:          code,
		Detail:        detail,
	})
	return nil
}

func (m *Manager) transition(to types.PipelineState) {
	from := m.state
	m.state = to
	metrics.FlowStateTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	metrics.FlowsTotal.WithLabelValues(string(from)).Dec()
	metrics.FlowsTotal.WithLabelValues(string(to)).Inc()

	seq := m.broker.NextSequence(m.flowID)
	m.broker.Publish(types.Event{
		FlowID:   m.flowID,
		Sequence: seq,
		Kind:     types.EventStateChanged,
		Payload:  types.StateChangedPayload{From: from, To: to},
	})
}

func (m *Manager) publishError(sourceElement, domain string, code int, msg string) {
	seq := m.broker.NextSequence(m.flowID)
	m.broker.Publish(types.Event{
		FlowID:   m.flowID,
		Sequence: seq,
		Kind:     types.EventError,
		Payload: types.ErrorPayload{
			SourceElement: sourceElement,
			Domain:        domain,
			Code:          code,
			Message:       msg,
		},
	})
}

func (m *Manager) checkpoint(state types.PipelineState) {
	if m.store == nil {
		return
	}
	if err := m.store.PutRuntimeState(flowstore.RuntimeStateRecord{
		FlowID:    m.flowID,
		State:     state,
		UpdatedAt: time.Now(),
	}); err != nil {
		log.Logger.Error().Str("flow_id", m.flowID).Err(err).Msg("failed to checkpoint runtime state")
	}
}

// busWatch consumes bus messages on its own goroutine and marshals them
// onto the run loop's command channel as non-blocking enqueues, so the
// framework's delivery goroutine is never held up by our processing.
func (m *Manager) busWatch(ctx context.Context, bus <-chan mediaengine.BusMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-bus:
			if !ok {
				return
			}
			m.onBusMessage(msg)
		}
	}
}

func (m *Manager) onBusMessage(msg mediaengine.BusMessage) {
	switch msg.Kind {
	case mediaengine.BusError:
		metrics.BuildFailuresTotal.WithLabelValues("runtime").Inc()
		m.publishError(msg.SourceElement, msg.Domain, msg.Code, msg.Detail)
		// A fatal bus error must move the flow out of Running: transition
		// to Error then drive Stopping, same as the EOS case below. Both
		// touch m.state, which only the run loop may write, so enqueue a
		// command instead of mutating state from this goroutine.
		m.cmdCh <- command{kind: "bus_error", result: make(chan error, 1)}
	case mediaengine.BusWarning:
		seq := m.broker.NextSequence(m.flowID)
		m.broker.Publish(types.Event{
			FlowID: m.flowID, Sequence: seq, Kind: types.EventWarning,
			Payload: types.ErrorPayload{SourceElement: msg.SourceElement, Domain: msg.Domain, Code: msg.Code, Message: msg.Detail},
		})
	case mediaengine.BusInfo:
		seq := m.broker.NextSequence(m.flowID)
		m.broker.Publish(types.Event{
			FlowID: m.flowID, Sequence: seq, Kind: types.EventInfo,
			Payload: types.ErrorPayload{SourceElement: msg.SourceElement, Message: msg.Detail},
		})
	case mediaengine.BusEos:
		// Per the default auto-restart policy: EOS stops the flow rather
		// than restarting it, regardless of auto_restart.
		seq := m.broker.NextSequence(m.flowID)
		m.broker.Publish(types.Event{FlowID: m.flowID, Sequence: seq, Kind: types.EventEos})
		m.cmdCh <- command{kind: "stop", result: make(chan error, 1)}
	case mediaengine.BusElementAdded:
		seq := m.broker.NextSequence(m.flowID)
		m.broker.Publish(types.Event{FlowID: m.flowID, Sequence: seq, Kind: types.EventElementAdded, Payload: msg.SourceElement})
	case mediaengine.BusElementRemoved:
		seq := m.broker.NextSequence(m.flowID)
		m.broker.Publish(types.Event{FlowID: m.flowID, Sequence: seq, Kind: types.EventElementRemoved, Payload: msg.SourceElement})
	case mediaengine.BusQos, mediaengine.BusStreamStatus:
		m.publishMetricSample(msg.Metrics)
	}
}

func (m *Manager) publishMetricSample(raw map[string]mediaengine.ElementMetricSample) {
	elements := make(map[string]types.ElementMetrics, len(raw))
	for id, s := range raw {
		elements[id] = types.ElementMetrics{
			BytesIn:        s.BytesIn,
			BytesOut:       s.BytesOut,
			QueueLevel:     s.QueueLevel,
			BitrateBps:     s.BitrateBps,
			JitterMs:       s.JitterMs,
			ClockOffsetNs:  s.ClockOffsetNs,
			NegotiatedCaps: s.NegotiatedCaps,
		}
	}
	if len(elements) == 0 {
		return
	}
	seq := m.broker.NextSequence(m.flowID)
	m.broker.Publish(types.Event{
		FlowID:   m.flowID,
		Sequence: seq,
		Kind:     types.EventMetricSample,
		Payload:  types.MetricSamplePayload{Elements: elements},
	})
}

func goValueToTyped(raw interface{}) types.TypedValue {
	switch v := raw.(type) {
	case bool:
		return types.Bool(v)
	case int64:
		return types.Int64(v)
	case uint64:
		return types.UInt64(v)
	case float64:
		return types.Float64(v)
	case string:
		return types.String(v)
	default:
		return types.String(fmt.Sprintf("%v", v))
	}
}

func nativeValueFor(v types.TypedValue) (interface{}, error) {
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
	case types.KindString, types.KindCaps:
		s, _ := v.AsString()
		return s, nil
	case types.KindEnum:
		_, sym, _ := v.AsEnum()
		return sym, nil
	default:
		return nil, fmt.Errorf("property write: unsupported value kind %q", v.Kind)
	}
}
