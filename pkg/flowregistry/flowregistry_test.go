package flowregistry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/pipeline"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

// memStore is a minimal in-memory flowstore.Store used only by tests.
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

func newTestRegistry() (*Registry, *memStore) {
	engine := mediaengine.NewSimEngine(nil)
	elements := registry.New(engine)
	broker := events.NewBroker()
	builder := pipeline.New(elements)
	store := newMemStore()
	return New(elements, builder, broker, store), store
}

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

func TestRegistry_CreateGetList(t *testing.T) {
	reg, store := newTestRegistry()
	f := twoElementFlow("flow-1")

	m, err := reg.Create(f)
	require.NoError(t, err)
	assert.Equal(t, types.FlowStopped, m.State())

	got, err := reg.Get("flow-1")
	require.NoError(t, err)
	assert.Same(t, m, got)

	assert.Equal(t, []string{"flow-1"}, reg.List())

	persisted, err := store.GetFlow("flow-1")
	require.NoError(t, err)
	assert.Equal(t, "test-flow", persisted.Name)
}

func TestRegistry_CreateDuplicateRejected(t *testing.T) {
	reg, _ := newTestRegistry()
	f := twoElementFlow("flow-dup")

	_, err := reg.Create(f)
	require.NoError(t, err)

	_, err = reg.Create(f)
	assert.Error(t, err)
}

func TestRegistry_GetUnknownFlow(t *testing.T) {
	reg, _ := newTestRegistry()
	_, err := reg.Get("does-not-exist")
	assert.Error(t, err)
}

func TestRegistry_Delete(t *testing.T) {
	reg, store := newTestRegistry()
	f := twoElementFlow("flow-del")
	_, err := reg.Create(f)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(context.Background(), "flow-del"))

	_, err = reg.Get("flow-del")
	assert.Error(t, err)

	_, err = store.GetFlow("flow-del")
	assert.Error(t, err)
}

func TestRegistry_UpdateReplacesStoppedFlow(t *testing.T) {
	reg, store := newTestRegistry()
	f := twoElementFlow("flow-upd")
	_, err := reg.Create(f)
	require.NoError(t, err)

	f.Name = "renamed"
	require.NoError(t, reg.Update(f))

	persisted, err := store.GetFlow("flow-upd")
	require.NoError(t, err)
	assert.Equal(t, "renamed", persisted.Name)
}
