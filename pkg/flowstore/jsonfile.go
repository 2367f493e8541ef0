package flowstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/flowforge/runtime/pkg/types"
)

// jsonFileDocument is the on-disk shape: all flows grouped under a
// "flows" key with a version integer, per the persisted-state layout
// spec.md describes as the alternative to a relational store.
type jsonFileDocument struct {
	Version       int                            `json:"version"`
	Flows         map[string]types.Flow          `json:"flows"`
	RuntimeStates map[string]RuntimeStateRecord  `json:"runtime_states"`
}

const jsonFileVersion = 1

// JSONFileStore is a single-file JSON Store, safe for concurrent use
// within one process. Every mutation rewrites the whole file; this
// module's deployment target is a single flow-count in the low
// thousands, so whole-file rewrites stay cheap.
type JSONFileStore struct {
	mu   sync.Mutex
	path string
	doc  jsonFileDocument
}

// NewJSONFileStore loads (or initializes) the file at path.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	s := &JSONFileStore{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.doc = jsonFileDocument{
			Version:       jsonFileVersion,
			Flows:         map[string]types.Flow{},
			RuntimeStates: map[string]RuntimeStateRecord{},
		}
		return s, s.saveLocked()
	}
	if err != nil {
		return nil, fmt.Errorf("reading flow store file: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parsing flow store file: %w", err)
	}
	if s.doc.Flows == nil {
		s.doc.Flows = map[string]types.Flow{}
	}
	if s.doc.RuntimeStates == nil {
		s.doc.RuntimeStates = map[string]RuntimeStateRecord{}
	}
	return s, nil
}

func (s *JSONFileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONFileStore) Close() error { return nil }

func (s *JSONFileStore) PutFlow(flow types.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Flows[flow.ID] = flow
	return s.saveLocked()
}

func (s *JSONFileStore) GetFlow(id string) (types.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.doc.Flows[id]
	if !ok {
		return types.Flow{}, &ErrNotFound{Kind: "flow", ID: id}
	}
	return f, nil
}

func (s *JSONFileStore) ListFlows() ([]types.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Flow, 0, len(s.doc.Flows))
	for _, f := range s.doc.Flows {
		out = append(out, f)
	}
	return out, nil
}

func (s *JSONFileStore) DeleteFlow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Flows, id)
	delete(s.doc.RuntimeStates, id)
	return s.saveLocked()
}

func (s *JSONFileStore) GetRuntimeState(flowID string) (RuntimeStateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.RuntimeStates[flowID]
	if !ok {
		return RuntimeStateRecord{}, &ErrNotFound{Kind: "runtime_state", ID: flowID}
	}
	return rec, nil
}

func (s *JSONFileStore) PutRuntimeState(rec RuntimeStateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.RuntimeStates[rec.FlowID] = rec
	return s.saveLocked()
}
