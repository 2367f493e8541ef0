package flowstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/flowforge/runtime/pkg/types"
)

var (
	bucketFlows        = []byte("flows")
	bucketRuntimeState = []byte("runtime_state")
)

// BoltStore is a bbolt-backed Store: one bucket of Flow documents keyed
// by id, one bucket of advisory runtime-state rows keyed by flow id.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "flowforge.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening flow store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFlows, bucketRuntimeState} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) PutFlow(flow types.Flow) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(flow)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFlows).Put([]byte(flow.ID), data)
	})
}

func (s *BoltStore) GetFlow(id string) (types.Flow, error) {
	var flow types.Flow
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFlows).Get([]byte(id))
		if data == nil {
			return &ErrNotFound{Kind: "flow", ID: id}
		}
		return json.Unmarshal(data, &flow)
	})
	return flow, err
}

func (s *BoltStore) ListFlows() ([]types.Flow, error) {
	var flows []types.Flow
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFlows).ForEach(func(k, v []byte) error {
			var flow types.Flow
			if err := json.Unmarshal(v, &flow); err != nil {
				return err
			}
			flows = append(flows, flow)
			return nil
		})
	})
	return flows, err
}

func (s *BoltStore) DeleteFlow(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFlows).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketRuntimeState).Delete([]byte(id))
	})
}

func (s *BoltStore) GetRuntimeState(flowID string) (RuntimeStateRecord, error) {
	var rec RuntimeStateRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuntimeState).Get([]byte(flowID))
		if data == nil {
			return &ErrNotFound{Kind: "runtime_state", ID: flowID}
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

func (s *BoltStore) PutRuntimeState(rec RuntimeStateRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRuntimeState).Put([]byte(rec.FlowID), data)
	})
}
