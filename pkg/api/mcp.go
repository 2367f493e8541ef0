package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowforge/runtime/pkg/mcptools"
)

// handleListTools serves the MCP tool manifest: name, description, and
// JSON-schema-shaped parameters for every fixed tool, so a client can
// discover what it may call without prior knowledge of this module.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.tools.List()
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCallTool invokes one named tool with a raw JSON argument body,
// shaping the result into the same envelope a REST caller would see.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	tool, err := s.tools.Lookup(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := tool.Call(r.Context(), json.RawMessage(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
