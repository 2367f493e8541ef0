// Package flowregistry implements the Runtime Registry: the process-wide
// directory of every flow's Lifecycle Manager, plus a derived index of
// endpoint resources (WHIP/WHEP, RTP sessions) surfaced during block
// expansion. One instance is shared by the REST/WebSocket surface, the
// MCP tool surface, and the reconciler.
package flowregistry

import (
	"context"
	"sync"

	"github.com/flowforge/runtime/pkg/blocks"
	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flow"
	"github.com/flowforge/runtime/pkg/flowerrors"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/pipeline"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

// Registry is the Runtime Registry: a flow_id -> Manager map with a
// registry-scoped lock strictly ordered before any per-flow lock a
// Manager holds internally. Callers never acquire a Manager's own
// serialization and this registry's lock in the reverse order.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*flow.Manager

	endpointsMu sync.RWMutex
	endpoints   map[string]endpointEntry // endpoint_id -> owning flow + detail

	builder  *pipeline.Builder
	broker   *events.Broker
	store    flowstore.Store
	elements *registry.Registry
}

type endpointEntry struct {
	FlowID string
	blocks.EndpointResource
}

// New creates an empty Runtime Registry.
func New(elements *registry.Registry, builder *pipeline.Builder, broker *events.Broker, store flowstore.Store) *Registry {
	return &Registry{
		managers:  make(map[string]*flow.Manager),
		endpoints: make(map[string]endpointEntry),
		builder:   builder,
		broker:    broker,
		store:     store,
		elements:  elements,
	}
}

// Create inserts a new Lifecycle Manager for f, which must not already
// be registered. The flow document is persisted before the Manager is
// inserted, so a crash between the two never leaves a Manager without a
// backing record.
func (r *Registry) Create(f types.Flow) (*flow.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.managers[f.ID]; exists {
		return nil, &flowerrors.InvalidStateError{FlowID: f.ID, From: "exists", To: "created"}
	}
	if err := r.store.PutFlow(f); err != nil {
		return nil, err
	}
	m := flow.New(f.ID, f, r.builder, r.broker, r.store)
	r.managers[f.ID] = m
	r.indexEndpoints(f)
	return m, nil
}

// Adopt registers a Manager constructed elsewhere (used by the
// reconciler, which must create Managers for every persisted flow
// before deciding which ones to start).
func (r *Registry) Adopt(m *flow.Manager, f types.Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[m.FlowID()] = m
	r.indexEndpoints(f)
}

// Get returns the Manager for flowID.
func (r *Registry) Get(flowID string) (*flow.Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[flowID]
	if !ok {
		return nil, &flowerrors.NotFoundError{Kind: "flow", ID: flowID}
	}
	return m, nil
}

// List returns every registered flow id, in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	return ids
}

// Update replaces the flow document for an existing, stopped Manager.
func (r *Registry) Update(f types.Flow) error {
	m, err := r.Get(f.ID)
	if err != nil {
		return err
	}
	if err := m.Replace(f); err != nil {
		return err
	}
	if err := r.store.PutFlow(f); err != nil {
		return err
	}
	r.reindexEndpoints(f)
	return nil
}

// Delete stops (if running) and removes a flow entirely.
func (r *Registry) Delete(ctx context.Context, flowID string) error {
	m, err := r.Get(flowID)
	if err != nil {
		return err
	}
	if m.State() != types.FlowStopped {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}
	m.Shutdown()

	r.mu.Lock()
	delete(r.managers, flowID)
	r.mu.Unlock()

	r.endpointsMu.Lock()
	for id, e := range r.endpoints {
		if e.FlowID == flowID {
			delete(r.endpoints, id)
		}
	}
	r.endpointsMu.Unlock()

	return r.store.DeleteFlow(flowID)
}

// ResolveEndpoint looks up the flow and endpoint detail registered under
// endpointID, for the WHIP/WHEP-style external routing surface.
func (r *Registry) ResolveEndpoint(endpointID string) (flowID string, res blocks.EndpointResource, err error) {
	r.endpointsMu.RLock()
	defer r.endpointsMu.RUnlock()
	e, ok := r.endpoints[endpointID]
	if !ok {
		return "", blocks.EndpointResource{}, &flowerrors.NotFoundError{Kind: "endpoint", ID: endpointID}
	}
	return e.FlowID, e.EndpointResource, nil
}

func (r *Registry) indexEndpoints(f types.Flow) {
	expander := blocks.New(r.elements)
	_, _, _, endpoints, err := expander.ExpandAll(f)
	if err != nil {
		return
	}
	r.endpointsMu.Lock()
	defer r.endpointsMu.Unlock()
	for _, e := range endpoints {
		r.endpoints[e.EndpointID] = endpointEntry{FlowID: f.ID, EndpointResource: e}
	}
}

func (r *Registry) reindexEndpoints(f types.Flow) {
	r.endpointsMu.Lock()
	for id, e := range r.endpoints {
		if e.FlowID == f.ID {
			delete(r.endpoints, id)
		}
	}
	r.endpointsMu.Unlock()
	r.indexEndpoints(f)
}
