package propsvc

import (
	"context"
	"sync"
	"testing"

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

func newTestService(t *testing.T) (*Service, *flowregistry.Registry) {
	t.Helper()
	engine := mediaengine.NewSimEngine(nil)
	elements := registry.New(engine)
	broker := events.NewBroker()
	builder := pipeline.New(elements)
	store := newMemStore()
	runtime := flowregistry.New(elements, builder, broker, store)
	return New(runtime, elements), runtime
}

func twoElementFlow(id string) types.Flow {
	return types.Flow{
		ID:   id,
		Name: "test-flow",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "videotestsrc"},
			{ID: "sink", FactoryName: "fakesink"},
		},
		Links: []types.Link{{From: "src:src", To: "sink:sink"}},
	}
}

func TestService_ReadWriteElementPropertyDelegatesToManager(t *testing.T) {
	svc, runtime := newTestService(t)
	m, err := runtime.Create(twoElementFlow("flow-1"))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, svc.WriteElementProperty("flow-1", "src", "is-live", types.Bool(true)))

	v, err := svc.ReadElementProperty("flow-1", "src", "is-live")
	require.NoError(t, err)
	got, ok := v.AsBool()
	require.True(t, ok)
	assert.True(t, got)
}

func TestService_ReadElementPropertyUnknownFlowErrors(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ReadElementProperty("nope", "src", "is-live")
	assert.Error(t, err)
}

func TestService_WritePadPropertyDelegatesToManager(t *testing.T) {
	svc, runtime := newTestService(t)
	m, err := runtime.Create(twoElementFlow("flow-2"))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	err = svc.WritePadProperty("flow-2", "sink", "sink", "some-pad-property", types.Bool(true))
	assert.Error(t, err, "fakesink's static sink pad does not expose a pad property of this name")
}
