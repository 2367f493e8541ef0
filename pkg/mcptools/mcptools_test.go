package mcptools

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowregistry"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/pipeline"
	"github.com/flowforge/runtime/pkg/propsvc"
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

func newTestTools() *Registry {
	engine := mediaengine.NewSimEngine(nil)
	elements := registry.New(engine)
	broker := events.NewBroker()
	builder := pipeline.New(elements)
	store := newMemStore()
	runtime := flowregistry.New(elements, builder, broker, store)
	props := propsvc.New(runtime, elements)
	return New(runtime, elements, props)
}

func TestRegistry_ListsAllElevenTools(t *testing.T) {
	r := newTestTools()
	names := make(map[string]bool)
	for _, tool := range r.List() {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"list_flows", "get_flow", "create_flow", "update_flow", "delete_flow",
		"start_flow", "stop_flow", "list_elements", "get_element",
		"read_property", "write_property",
	} {
		assert.True(t, names[want], "expected tool %q to be registered", want)
	}
}

func TestRegistry_LookupUnknownTool(t *testing.T) {
	r := newTestTools()
	_, err := r.Lookup("does_not_exist")
	assert.Error(t, err)
}

func TestCreateFlowTool_AssignsIDAndRegisters(t *testing.T) {
	r := newTestTools()
	tool, err := r.Lookup("create_flow")
	require.NoError(t, err)

	flow := types.Flow{
		Name: "test-flow",
		Elements: []types.ElementNode{
			{ID: "src", FactoryName: "videotestsrc"},
			{ID: "sink", FactoryName: "fakesink"},
		},
		Links: []types.Link{{From: "src:src", To: "sink:sink"}},
	}
	args, err := json.Marshal(map[string]interface{}{"flow": flow})
	require.NoError(t, err)

	result, err := tool.Call(context.Background(), args)
	require.NoError(t, err)

	created, ok := result.(types.Flow)
	require.True(t, ok)
	assert.NotEmpty(t, created.ID)

	listTool, err := r.Lookup("list_flows")
	require.NoError(t, err)
	listed, err := listTool.Call(context.Background(), nil)
	require.NoError(t, err)
	rows, ok := listed.([]map[string]interface{})
	require.True(t, ok)
	assert.Len(t, rows, 1)
}

func TestGetFlowTool_UnknownFlowErrors(t *testing.T) {
	r := newTestTools()
	tool, err := r.Lookup("get_flow")
	require.NoError(t, err)

	args, _ := json.Marshal(map[string]string{"flow_id": "nope"})
	_, err = tool.Call(context.Background(), args)
	assert.Error(t, err)
}
