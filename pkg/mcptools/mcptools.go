// Package mcptools defines the AI-assistant (MCP) tool surface: a fixed
// set of named tools that map 1:1 to REST operations (list/get/create/
// update/delete a flow, start/stop, list/get elements, read/write
// property). Each tool shapes its arguments straight into the same
// Runtime Registry, Element Registry, and Property & Pad Service calls
// pkg/api's handlers use — no HTTP round-trip, and no semantics beyond
// argument shaping, matching spec.md's description of this surface.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowforge/runtime/pkg/flowregistry"
	"github.com/flowforge/runtime/pkg/propsvc"
	"github.com/flowforge/runtime/pkg/registry"
	"github.com/flowforge/runtime/pkg/types"
)

// Tool is one named, schema-described MCP tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON-schema-shaped
	Call        func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Registry is the fixed MCP tool set bound to a running Flow Runtime.
type Registry struct {
	runtime  *flowregistry.Registry
	elements *registry.Registry
	props    *propsvc.Service
	tools    []Tool
}

// New builds the tool set. Construction wires every tool's Call closure
// over the given services; the returned Registry is immutable afterward.
func New(runtime *flowregistry.Registry, elements *registry.Registry, props *propsvc.Service) *Registry {
	r := &Registry{runtime: runtime, elements: elements, props: props}
	r.tools = []Tool{
		r.listFlowsTool(),
		r.getFlowTool(),
		r.createFlowTool(),
		r.updateFlowTool(),
		r.deleteFlowTool(),
		r.startFlowTool(),
		r.stopFlowTool(),
		r.listElementsTool(),
		r.getElementTool(),
		r.readPropertyTool(),
		r.writePropertyTool(),
	}
	return r
}

// List returns every tool, for exposing a tool manifest to a client.
func (r *Registry) List() []Tool { return r.tools }

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (Tool, error) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("unknown tool %q", name)
}

func decode(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

func (r *Registry) listFlowsTool() Tool {
	return Tool{
		Name:        "list_flows",
		Description: "List every flow known to the runtime, with its current state.",
		Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			ids := r.runtime.List()
			out := make([]map[string]interface{}, 0, len(ids))
			for _, id := range ids {
				m, err := r.runtime.Get(id)
				if err != nil {
					continue
				}
				out = append(out, map[string]interface{}{"id": id, "state": m.State()})
			}
			return out, nil
		},
	}
}

func (r *Registry) getFlowTool() Tool {
	return Tool{
		Name:        "get_flow",
		Description: "Get a flow's current state by id.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"flow_id": map[string]interface{}{"type": "string"}},
			"required":   []string{"flow_id"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID string `json:"flow_id"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			m, err := r.runtime.Get(in.FlowID)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": in.FlowID, "state": m.State()}, nil
		},
	}
}

func (r *Registry) createFlowTool() Tool {
	return Tool{
		Name:        "create_flow",
		Description: "Create a new flow document.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"flow": map[string]interface{}{"type": "object"}},
			"required":   []string{"flow"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				Flow types.Flow `json:"flow"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			in.Flow.ID = uuid.NewString()
			if _, err := r.runtime.Create(in.Flow); err != nil {
				return nil, err
			}
			return in.Flow, nil
		},
	}
}

func (r *Registry) updateFlowTool() Tool {
	return Tool{
		Name:        "update_flow",
		Description: "Replace an existing flow's document.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"flow_id": map[string]interface{}{"type": "string"},
				"flow":    map[string]interface{}{"type": "object"},
			},
			"required": []string{"flow_id", "flow"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID string     `json:"flow_id"`
				Flow   types.Flow `json:"flow"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			in.Flow.ID = in.FlowID
			if err := r.runtime.Update(in.Flow); err != nil {
				return nil, err
			}
			return in.Flow, nil
		},
	}
}

func (r *Registry) deleteFlowTool() Tool {
	return Tool{
		Name:        "delete_flow",
		Description: "Stop (if running) and delete a flow.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"flow_id": map[string]interface{}{"type": "string"}},
			"required":   []string{"flow_id"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID string `json:"flow_id"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := r.runtime.Delete(ctx, in.FlowID); err != nil {
				return nil, err
			}
			return map[string]string{"status": "deleted"}, nil
		},
	}
}

func (r *Registry) startFlowTool() Tool {
	return Tool{
		Name:        "start_flow",
		Description: "Start a flow's pipeline, blocking until it reaches Running or fails.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"flow_id": map[string]interface{}{"type": "string"}},
			"required":   []string{"flow_id"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID string `json:"flow_id"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			m, err := r.runtime.Get(in.FlowID)
			if err != nil {
				return nil, err
			}
			if err := m.Start(ctx); err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": in.FlowID, "state": m.State()}, nil
		},
	}
}

func (r *Registry) stopFlowTool() Tool {
	return Tool{
		Name:        "stop_flow",
		Description: "Stop a flow's pipeline, blocking until it reaches Stopped.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"flow_id": map[string]interface{}{"type": "string"}},
			"required":   []string{"flow_id"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID string `json:"flow_id"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			m, err := r.runtime.Get(in.FlowID)
			if err != nil {
				return nil, err
			}
			if err := m.Stop(ctx); err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": in.FlowID, "state": m.State()}, nil
		},
	}
}

func (r *Registry) listElementsTool() Tool {
	return Tool{
		Name:        "list_elements",
		Description: "List every element factory known to the registry.",
		Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			return r.elements.List(), nil
		},
	}
}

func (r *Registry) getElementTool() Tool {
	return Tool{
		Name:        "get_element",
		Description: "Get introspected metadata for one element factory.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"factory": map[string]interface{}{"type": "string"}},
			"required":   []string{"factory"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				Factory string `json:"factory"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			return r.elements.Lookup(in.Factory)
		},
	}
}

func (r *Registry) readPropertyTool() Tool {
	return Tool{
		Name:        "read_property",
		Description: "Read one live property value from an element in a running flow.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"flow_id":    map[string]interface{}{"type": "string"},
				"element_id": map[string]interface{}{"type": "string"},
				"name":       map[string]interface{}{"type": "string"},
			},
			"required": []string{"flow_id", "element_id", "name"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID    string `json:"flow_id"`
				ElementID string `json:"element_id"`
				Name      string `json:"name"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			return r.props.ReadElementProperty(in.FlowID, in.ElementID, in.Name)
		},
	}
}

func (r *Registry) writePropertyTool() Tool {
	return Tool{
		Name:        "write_property",
		Description: "Write one live property value on an element in a running flow.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"flow_id":    map[string]interface{}{"type": "string"},
				"element_id": map[string]interface{}{"type": "string"},
				"name":       map[string]interface{}{"type": "string"},
				"value":      map[string]interface{}{"type": "object"},
			},
			"required": []string{"flow_id", "element_id", "name", "value"},
		},
		Call: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				FlowID    string           `json:"flow_id"`
				ElementID string           `json:"element_id"`
				Name      string           `json:"name"`
				Value     types.TypedValue `json:"value"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := r.props.WriteElementProperty(in.FlowID, in.ElementID, in.Name, in.Value); err != nil {
				return nil, err
			}
			return map[string]string{"status": "ok"}, nil
		},
	}
}
