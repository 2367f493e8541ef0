package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowregistry"
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
	return &memStore{
		flows:  make(map[string]types.Flow),
		states: make(map[string]flowstore.RuntimeStateRecord),
	}
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

func newTestRegistry(store *memStore) *flowregistry.Registry {
	engine := mediaengine.NewSimEngine(nil)
	elements := registry.New(engine)
	broker := events.NewBroker()
	builder := pipeline.New(elements)
	return flowregistry.New(elements, builder, broker, store)
}

func twoElementFlow(id string, autoRestart bool) types.Flow {
	return types.Flow{
		ID:          id,
		Name:        "test-flow",
		AutoRestart: autoRestart,
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "videotestsrc"},
			{ID: "sink", FactoryName: "fakesink"},
		},
		Links: []types.Link{
			{From: "src:src", To: "sink:sink"},
		},
	}
}

func TestReconcile_AdoptsPersistedFlowsNotInRegistry(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutFlow(twoElementFlow("flow-1", false)))

	reg := newTestRegistry(store)
	rec := New(reg, store)

	require.NoError(t, rec.Reconcile(context.Background()))

	m, err := reg.Get("flow-1")
	require.NoError(t, err)
	assert.Equal(t, types.FlowStopped, m.State())
}

func TestReconcile_IsIdempotent(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutFlow(twoElementFlow("flow-1", false)))

	reg := newTestRegistry(store)
	rec := New(reg, store)

	require.NoError(t, rec.Reconcile(context.Background()))
	require.NoError(t, rec.Reconcile(context.Background()))

	assert.Equal(t, []string{"flow-1"}, reg.List())
}

func TestReconcile_RestartsAutoRestartFlowsLeftRunning(t *testing.T) {
	store := newMemStore()
	f := twoElementFlow("flow-auto", true)
	require.NoError(t, store.PutFlow(f))
	require.NoError(t, store.PutRuntimeState(flowstore.RuntimeStateRecord{
		FlowID:    "flow-auto",
		State:     types.FlowRunning,
		UpdatedAt: time.Now(),
	}))

	reg := newTestRegistry(store)
	rec := New(reg, store)

	require.NoError(t, rec.Reconcile(context.Background()))

	m, err := reg.Get("flow-auto")
	require.NoError(t, err)
	assert.Equal(t, types.FlowRunning, m.State())
}

func TestReconcile_DoesNotRestartWithoutAutoRestart(t *testing.T) {
	store := newMemStore()
	f := twoElementFlow("flow-norestart", false)
	require.NoError(t, store.PutFlow(f))
	require.NoError(t, store.PutRuntimeState(flowstore.RuntimeStateRecord{
		FlowID:    "flow-norestart",
		State:     types.FlowRunning,
		UpdatedAt: time.Now(),
	}))

	reg := newTestRegistry(store)
	rec := New(reg, store)

	require.NoError(t, rec.Reconcile(context.Background()))

	m, err := reg.Get("flow-norestart")
	require.NoError(t, err)
	assert.Equal(t, types.FlowStopped, m.State())
}

func TestReconcile_DoesNotRestartWithNoCheckpoint(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutFlow(twoElementFlow("flow-fresh", true)))

	reg := newTestRegistry(store)
	rec := New(reg, store)

	require.NoError(t, rec.Reconcile(context.Background()))

	m, err := reg.Get("flow-fresh")
	require.NoError(t, err)
	assert.Equal(t, types.FlowStopped, m.State())
}

func TestStartStop_SafetyNetLoopCanBeStoppedCleanly(t *testing.T) {
	store := newMemStore()
	reg := newTestRegistry(store)
	rec := New(reg, store)

	rec.Start()
	rec.Stop()
}
