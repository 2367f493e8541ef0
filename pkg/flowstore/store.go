// Package flowstore implements the Flow Store Gateway: CRUD on Flow
// documents against an abstract store (file or relational), with the
// concrete backend injected at startup. Grounded on the
// bucket-per-entity JSON blob pattern the teacher's bbolt-backed store
// uses, generalized here to one bucket of Flow documents plus one
// bucket of advisory runtime-state rows.
package flowstore

import (
	"time"

	"github.com/flowforge/runtime/pkg/types"
)

// RuntimeStateRecord is the advisory, crash-tolerant persisted state for
// one flow: the last observed runtime state at a safe checkpoint
// (create/update/start/stop). A process that crashes mid-run may leave
// this reporting Running when the runtime is actually absent;
// reconciliation treats that as "requested to run".
type RuntimeStateRecord struct {
	FlowID    string              `json:"flow_id"`
	State     types.PipelineState `json:"state"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store is the abstract contract the Flow Runtime core depends on. The
// core never depends on a concrete backend directly.
type Store interface {
	ListFlows() ([]types.Flow, error)
	GetFlow(id string) (types.Flow, error)
	PutFlow(flow types.Flow) error
	DeleteFlow(id string) error

	GetRuntimeState(flowID string) (RuntimeStateRecord, error)
	PutRuntimeState(rec RuntimeStateRecord) error

	Close() error
}

// ErrNotFound is returned by Get* when no record exists for the given id.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string { return e.Kind + " not found: " + e.ID }
