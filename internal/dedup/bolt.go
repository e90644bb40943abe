// Package dedup provides a BoltDB-backed store of already-persisted article
// ids, used to skip duplicates across runs. The append-only output files are
// never read back, so without this store idempotence only holds within one
// process lifetime.
package dedup

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const persistedBucket = "persisted"

// BoltStore implements harvest.DedupStore on top of bbolt.
type BoltStore struct {
	db *bolt.DB
}

// Open initializes the store at path, creating parent directories as needed.
func Open(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dedup directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(persistedBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Seen reports whether the key was marked by any previous run.
func (s *BoltStore) Seen(key string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(persistedBucket))
		if bucket == nil {
			return fmt.Errorf("persisted bucket missing")
		}
		exists = bucket.Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return exists, nil
}

// Mark records the key with the current timestamp.
func (s *BoltStore) Mark(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(persistedBucket))
		if bucket == nil {
			return fmt.Errorf("persisted bucket missing")
		}
		var value [8]byte
		binary.BigEndian.PutUint64(value[:], uint64(time.Now().Unix()))
		return bucket.Put([]byte(key), value[:])
	})
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
