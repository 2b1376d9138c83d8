package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/fieldref/syncore/internal/client/storage"
)

var _ storage.ReplicaStorage = (*Storage)(nil)

// Storage is the client's local bbolt-backed replica store: one
// consistent map per SKU for incidents and scratchpads, the accepted
// membership record per SKU, and the outbound mutation queue.
type Storage struct {
	db *bbolt.DB
}

// New opens (creating if absent) the bbolt database at dbPath and
// initializes every bucket the replica store needs.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initReplicaBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
