package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/fieldref/syncore/internal/client/storage"
	"github.com/fieldref/syncore/internal/crdt"
	"github.com/fieldref/syncore/internal/models"
)

var (
	// bucketIncidents and bucketScratchpads each hold one key per SKU,
	// the JSON-encoded crdt.ConsistentMap for that event.
	bucketIncidents   = []byte("incidents")
	bucketScratchpads = []byte("scratchpads")
	// bucketMembership holds one accepted models.Invitation per SKU.
	bucketMembership = []byte("membership")
	// bucketOutbound holds queued storage.OutboundMutation values,
	// keyed "<sku>/<id>" so ListOutbound can prefix-scan a SKU.
	bucketOutbound = []byte("outbound")
)

func (s *Storage) initReplicaBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIncidents, bucketScratchpads, bucketMembership, bucketOutbound} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

func (s *Storage) LoadIncidents(ctx context.Context, sku string) (*crdt.ConsistentMap, error) {
	return s.loadMap(bucketIncidents, sku)
}

func (s *Storage) SaveIncidents(ctx context.Context, sku string, m *crdt.ConsistentMap) error {
	return s.saveMap(bucketIncidents, sku, m)
}

func (s *Storage) LoadScratchpads(ctx context.Context, sku string) (*crdt.ConsistentMap, error) {
	return s.loadMap(bucketScratchpads, sku)
}

func (s *Storage) SaveScratchpads(ctx context.Context, sku string, m *crdt.ConsistentMap) error {
	return s.saveMap(bucketScratchpads, sku, m)
}

func (s *Storage) loadMap(bucketName []byte, sku string) (*crdt.ConsistentMap, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	m := crdt.NewConsistentMap()
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(sku))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, m)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", bucketName, sku, err)
	}
	return m, nil
}

func (s *Storage) saveMap(bucketName []byte, sku string, m *crdt.ConsistentMap) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", bucketName, sku, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(sku), data)
	})
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", bucketName, sku, err)
	}
	return nil
}

func (s *Storage) SaveMembership(ctx context.Context, sku string, inv *models.Invitation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal membership: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketMembership)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(sku), data)
	})
	if err != nil {
		return fmt.Errorf("save membership: %w", err)
	}
	return nil
}

func (s *Storage) GetMembership(ctx context.Context, sku string) (*models.Invitation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	var inv *models.Invitation
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMembership)
		if bucket == nil {
			return storage.ErrMembershipNotFound
		}
		data := bucket.Get([]byte(sku))
		if data == nil {
			return storage.ErrMembershipNotFound
		}
		inv = &models.Invitation{}
		return json.Unmarshal(data, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Storage) ListMemberships(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	var skus []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMembership)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			skus = append(skus, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return skus, nil
}

func outboundKey(sku, id string) []byte {
	return []byte(sku + "/" + id)
}

func (s *Storage) EnqueueOutbound(ctx context.Context, m storage.OutboundMutation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal outbound mutation: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketOutbound)
		if err != nil {
			return err
		}
		return bucket.Put(outboundKey(m.SKU, m.ID), data)
	})
	if err != nil {
		return fmt.Errorf("enqueue outbound: %w", err)
	}
	return nil
}

func (s *Storage) ListOutbound(ctx context.Context, sku string) ([]storage.OutboundMutation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	prefix := []byte(sku + "/")
	var out []storage.OutboundMutation
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbound)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var m storage.OutboundMutation
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("unmarshal outbound entry: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list outbound: %w", err)
	}
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s *Storage) DequeueOutbound(ctx context.Context, sku, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbound)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(outboundKey(sku, id))
	})
	if err != nil {
		return fmt.Errorf("dequeue outbound: %w", err)
	}
	return nil
}

func (s *Storage) TouchOutbound(ctx context.Context, sku, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbound)
		if bucket == nil {
			return nil
		}
		key := outboundKey(sku, id)
		data := bucket.Get(key)
		if data == nil {
			return nil
		}
		var m storage.OutboundMutation
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("unmarshal outbound entry: %w", err)
		}
		m.Attempts++
		updated, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal outbound entry: %w", err)
		}
		return bucket.Put(key, updated)
	})
	if err != nil {
		return fmt.Errorf("touch outbound: %w", err)
	}
	return nil
}
