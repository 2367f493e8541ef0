package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/pipeline"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

type memStore struct {
	mu     sync.Mutex
	flows  map[string]types.Flow
	states map[string]flowstore.RuntimeStateRecord
}

func newMemStore() *memStore {
	return &memStore{flows: make(map[string]types.Flow), states: make(map[string]flowstore.RuntimeStateRecord)}
}
func (s *memStore) ListFlows() ([]types.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f)
	}
	return out, nil
}
func (s *memStore) GetFlow(id string) (types.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return types.Flow{}, &flowstore.ErrNotFound{Kind: "flow", ID: id}
	}
	return f, nil
}
func (s *memStore) PutFlow(f types.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.ID] = f
	return nil
}
func (s *memStore) DeleteFlow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
	return nil
}
func (s *memStore) GetRuntimeState(flowID string) (flowstore.RuntimeStateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.states[flowID]
	if !ok {
		return flowstore.RuntimeStateRecord{}, &flowstore.ErrNotFound{Kind: "runtime_state", ID: flowID}
	}
	return rec, nil
}
func (s *memStore) PutRuntimeState(rec flowstore.RuntimeStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[rec.FlowID] = rec
	return nil
}
func (s *memStore) Close() error { return nil }

func twoElementFlow(id string) types.Flow {
	return types.Flow{
		ID:   id,
		Name: "test-flow",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "videotestsrc"},
			{ID: "sink", FactoryName: "fakesink"},
		},
		Links: []types.Link{
			{From: "src:src", To: "sink:sink"},
		},
	}
}

func newTestManager(t *testing.T, f types.Flow) *Manager {
	t.Helper()
	engine := mediaengine.NewSimEngine(nil)
	elements := registry.New(engine)
	builder := pipeline.New(elements)
	broker := events.NewBroker()
	store := newMemStore()
	return New(f.ID, f, builder, broker, store)
}

func TestManager_StartsTwoElementFlowToRunning(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-1"))
	assert.Equal(t, types.FlowStopped, m.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, types.FlowRunning, m.State())
}

func TestManager_StopReturnsToStopped(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-2"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, types.FlowStopped, m.State())
}

func TestManager_StopIsSafeWhenAlreadyStopped(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-3"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, types.FlowStopped, m.State())
}

func TestManager_WritePropertyRequiresRunningFlow(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-4"))
	err := m.WriteElementProperty("src", "is-live", types.Bool(true))
	assert.Error(t, err, "writing a property on a stopped flow should fail: no live element to validate against")
}

func TestManager_WriteAndReadPropertyWhileRunning(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-5"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	require.NoError(t, m.WriteElementProperty("src", "is-live", types.Bool(true)))

	got, err := m.ReadElementProperty("src", "is-live")
	require.NoError(t, err)
	v, ok := got.AsBool()
	require.True(t, ok)
	assert.True(t, v)
}

func TestManager_ReplaceRejectedWhileRunning(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-6"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	err := m.Replace(twoElementFlow("flow-6"))
	assert.Error(t, err, "a live flow's document must not change out from under it")
}

func TestManager_BusErrorTransitionsToErrorThenStopped(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-8"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	require.NoError(t, m.InjectBusErrorForTest("src", "stream", 42, "simulated decoder fault"))

	require.Eventually(t, func() bool {
		return m.State() == types.FlowStopped
	}, 2*time.Second, 10*time.Millisecond, "a fatal bus error must drive the flow through Error to Stopped")

	rec, err := m.store.GetRuntimeState(m.flowID)
	require.NoError(t, err)
	assert.Equal(t, types.StateError, rec.State, "the persisted runtime state must reflect the error, not a stale Running")
}

func TestManager_InjectBusErrorForTestIsNoOpWhenNotRunning(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-9"))
	err := m.InjectBusErrorForTest("src", "stream", 42, "simulated decoder fault")
	assert.Error(t, err)
	assert.Equal(t, types.FlowStopped, m.State())
}

func TestManager_UnknownElementPropertyErrors(t *testing.T) {
	m := newTestManager(t, twoElementFlow("flow-7"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	_, err := m.ReadElementProperty("does-not-exist", "whatever")
	assert.Error(t, err)
}
